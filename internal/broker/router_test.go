package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/domain"
)

type fakeSink struct{ events []Event }

func (f *fakeSink) Emit(e Event) { f.events = append(f.events, e) }

func fakeConnector(id string, connected bool) *Connector {
	return &Connector{
		ID:          id,
		IsEnabled:   true,
		IsConnected: func() bool { return connected },
		GetAccountInfo: func(ctx context.Context) (AccountInfo, error) {
			return AccountInfo{Broker: id, Balance: 10000}, nil
		},
		GetPositions: func(ctx context.Context) ([]domain.Trade, error) { return nil, nil },
		OpenPosition: func(ctx context.Context, order domain.OrderEnvelope) (domain.Trade, error) {
			pair, _ := domain.NewPair(order.Pair)
			return domain.Trade{ID: "t1", Pair: pair, Broker: id, Status: domain.TradeOpen}, nil
		},
		ClosePosition:  func(ctx context.Context, id string) error { return nil },
		ModifyPosition: func(ctx context.Context, order domain.OrderEnvelope) error { return nil },
	}
}

func TestOpenPositionUsesDefaultConnector(t *testing.T) {
	sink := &fakeSink{}
	r := NewRouter(sink)
	r.Register(fakeConnector("mt5", true))

	trade, err := r.OpenPosition(context.Background(), domain.OrderEnvelope{Pair: "EURUSD", Direction: domain.Buy, Volume: 0.1})
	require.NoError(t, err)
	require.Equal(t, "mt5", trade.Broker)

	var sawAttempt, sawOpened bool
	for _, e := range sink.events {
		if e.Type == "auto_trade_attempt" {
			sawAttempt = true
		}
		if e.Type == "trade_opened" {
			sawOpened = true
		}
	}
	require.True(t, sawAttempt)
	require.True(t, sawOpened)
}

func TestOpenPositionFallsBackWhenPreferredDisconnected(t *testing.T) {
	r := NewRouter(nil)
	r.Register(fakeConnector("mt4", false))
	r.Register(fakeConnector("mt5", true))

	trade, err := r.OpenPosition(context.Background(), domain.OrderEnvelope{Pair: "EURUSD", Direction: domain.Buy, Volume: 0.1, Broker: "mt4"})
	require.NoError(t, err)
	require.Equal(t, "mt5", trade.Broker)
}

func TestOpenPositionNoConnectedBrokers(t *testing.T) {
	r := NewRouter(nil)
	r.Register(fakeConnector("mt5", false))

	_, err := r.OpenPosition(context.Background(), domain.OrderEnvelope{Pair: "EURUSD", Direction: domain.Buy, Volume: 0.1})
	require.ErrorIs(t, err, ErrNoConnectedBrokers)
}

func TestKillSwitchBlocksOpenAndModify(t *testing.T) {
	sink := &fakeSink{}
	r := NewRouter(sink)
	r.Register(fakeConnector("mt5", true))
	r.EngageKillSwitch("manual halt")

	_, err := r.OpenPosition(context.Background(), domain.OrderEnvelope{Pair: "EURUSD", Direction: domain.Buy})
	require.ErrorIs(t, err, ErrKillSwitchEngaged)

	err = r.ModifyPosition(context.Background(), domain.OrderEnvelope{Pair: "EURUSD", TradeID: "t1"})
	require.ErrorIs(t, err, ErrKillSwitchEngaged)

	var sawRejected bool
	for _, e := range sink.events {
		if e.Type == "auto_trade_rejected" && e.Status == "kill_switch" {
			sawRejected = true
		}
	}
	require.True(t, sawRejected)
}

func TestReconcileDetectsMissingRemotePosition(t *testing.T) {
	r := NewRouter(nil)
	c := fakeConnector("mt5", true)
	r.Register(c)

	trade, err := r.OpenPosition(context.Background(), domain.OrderEnvelope{Pair: "EURUSD", Direction: domain.Buy, Volume: 0.1})
	require.NoError(t, err)
	require.NotEmpty(t, trade.ID)

	drift := r.Reconcile(context.Background())
	require.Len(t, drift, 1)
	require.Equal(t, "missing_remote", drift[0].Reason)
}

func TestNormalizeEnvelopeMapsAliasFields(t *testing.T) {
	o := NormalizeEnvelope(domain.OrderEnvelope{
		Symbol: "USDJPY",
		Type:   domain.Sell,
		Ticket: "mt5-9001",
	})
	require.Equal(t, "USDJPY", o.Pair)
	require.Equal(t, domain.Sell, o.Direction)
	require.Equal(t, "mt5-9001", o.ID)
}

func TestNormalizeEnvelopePrefersCanonicalOverAlias(t *testing.T) {
	o := NormalizeEnvelope(domain.OrderEnvelope{
		Pair:      "EURUSD",
		Symbol:    "USDJPY",
		Direction: domain.Buy,
		Type:      domain.Sell,
		ID:        "canonical-id",
		Ticket:    "alias-ticket",
	})
	require.Equal(t, "EURUSD", o.Pair)
	require.Equal(t, domain.Buy, o.Direction)
	require.Equal(t, "canonical-id", o.ID)
}

func TestOpenPositionAcceptsAliasOnlyEnvelope(t *testing.T) {
	r := NewRouter(nil)
	r.Register(fakeConnector("mt5", true))

	trade, err := r.OpenPosition(context.Background(), domain.OrderEnvelope{
		Symbol: "GBPUSD",
		Type:   domain.Buy,
		Volume: 0.1,
	})
	require.NoError(t, err)
	require.Equal(t, "GBPUSD", trade.Pair.Symbol)
}
