package connectors

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fxrunner/engine/internal/broker"
	"github.com/fxrunner/engine/internal/domain"
)

// OandaClient wraps the v20 REST API; OANDA uses units (positive=long,
// negative=short) instead of a separate side field.
type OandaClient interface {
	AccountDetails(ctx context.Context) (nav, balance, marginUsed float64, err error)
	OpenTrades(ctx context.Context) ([]OandaTrade, error)
	CreateOrder(ctx context.Context, instrument string, units float64, sl, tp float64) (tradeID string, price float64, err error)
	CloseTrade(ctx context.Context, tradeID string) error
	SetTradeOrders(ctx context.Context, tradeID string, sl, tp float64) error
}

type OandaTrade struct {
	ID            string
	Instrument    string
	CurrentUnits  float64
	Price         float64
	StopLossPrice float64
	TakeProfitPrice float64
}

func NewOandaConnector(client OandaClient) *broker.Connector {
	s := &oandaState{client: client}
	return &broker.Connector{
		ID:             "oanda",
		IsEnabled:      true,
		IsConnected:    s.connected,
		AccountMode:    func() string { return "live" },
		GetAccountInfo: s.getAccountInfo,
		GetPositions:   s.getPositions,
		OpenPosition:   s.openPosition,
		ClosePosition:  s.closePosition,
		ModifyPosition: s.modifyPosition,
	}
}

type oandaState struct {
	client       OandaClient
	lastOKUnixNs int64
}

// connected treats any account-details call within the last 30s as a
// live heartbeat rather than running a dedicated probe endpoint.
func (s *oandaState) connected() bool {
	if last := atomic.LoadInt64(&s.lastOKUnixNs); last > 0 && time.Since(time.Unix(0, last)) < 30*time.Second {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, _, err := s.client.AccountDetails(ctx)
	if err != nil {
		return false
	}
	atomic.StoreInt64(&s.lastOKUnixNs, time.Now().UnixNano())
	return true
}

func (s *oandaState) getAccountInfo(ctx context.Context) (broker.AccountInfo, error) {
	nav, balance, marginUsed, err := s.client.AccountDetails(ctx)
	if err != nil {
		return broker.AccountInfo{}, err
	}
	atomic.StoreInt64(&s.lastOKUnixNs, time.Now().UnixNano())
	return broker.AccountInfo{Broker: "oanda", Balance: balance, Equity: nav, Margin: marginUsed, Mode: "live"}, nil
}

func (s *oandaState) getPositions(ctx context.Context) ([]domain.Trade, error) {
	oandaTrades, err := s.client.OpenTrades(ctx)
	if err != nil {
		return nil, err
	}
	trades := make([]domain.Trade, 0, len(oandaTrades))
	for _, t := range oandaTrades {
		pair, perr := domain.NewPair(t.Instrument)
		if perr != nil {
			continue
		}
		dir := domain.Buy
		volume := t.CurrentUnits
		if volume < 0 {
			dir = domain.Sell
			volume = -volume
		}
		sl, tp := t.StopLossPrice, t.TakeProfitPrice
		trades = append(trades, domain.Trade{
			ID: t.ID, Pair: pair, Direction: dir, PositionSize: volume,
			EntryPrice: t.Price, StopLoss: &sl, TakeProfit: &tp,
			Status: domain.TradeOpen, Broker: "oanda",
		})
	}
	return trades, nil
}

func (s *oandaState) openPosition(ctx context.Context, order domain.OrderEnvelope) (domain.Trade, error) {
	units := order.Volume
	if order.Direction == domain.Sell {
		units = -units
	}
	tradeID, price, err := s.client.CreateOrder(ctx, order.Pair, units, order.StopLoss, order.TakeProfit)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("oanda create order: %w", err)
	}
	pair, err := domain.NewPair(order.Pair)
	if err != nil {
		return domain.Trade{}, err
	}
	sl, tp := order.StopLoss, order.TakeProfit
	return domain.Trade{
		ID: tradeID, Pair: pair, Direction: order.Direction, PositionSize: order.Volume,
		EntryPrice: price, StopLoss: &sl, TakeProfit: &tp,
		OpenTime: time.Now(), Status: domain.TradeOpen, Broker: "oanda",
	}, nil
}

func (s *oandaState) closePosition(ctx context.Context, id string) error {
	return s.client.CloseTrade(ctx, id)
}

func (s *oandaState) modifyPosition(ctx context.Context, order domain.OrderEnvelope) error {
	return s.client.SetTradeOrders(ctx, order.TradeID, order.StopLoss, order.TakeProfit)
}
