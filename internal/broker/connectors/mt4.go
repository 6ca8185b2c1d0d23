package connectors

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fxrunner/engine/internal/broker"
	"github.com/fxrunner/engine/internal/domain"
)

// MT4Client is the legacy MT4 bridge surface, DLL/socket-backed in
// production. MT4 has no native hedging-account "mode" concept so
// AccountSummary omits it.
type MT4Client interface {
	Heartbeat(ctx context.Context) error
	AccountSummary(ctx context.Context) (balance, equity, margin float64, err error)
	OpenOrders(ctx context.Context) ([]MT4Order, error)
	Send(ctx context.Context, symbol string, lots float64, side string, sl, tp float64) (ticket string, fillPrice float64, err error)
	Close(ctx context.Context, ticket string) error
	Modify(ctx context.Context, ticket string, sl, tp float64) error
}

type MT4Order struct {
	Ticket    string
	Symbol    string
	Side      string
	Lots      float64
	OpenPrice float64
	SL, TP    float64
}

func NewMT4Connector(client MT4Client) *broker.Connector {
	s := &mt4State{client: client}
	s.probe()

	return &broker.Connector{
		ID:             "mt4",
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

type mt4State struct {
	client    MT4Client
	connected32 int32
}

func (s *mt4State) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.client.Heartbeat(ctx) == nil {
		atomic.StoreInt32(&s.connected32, 1)
	}
}

func (s *mt4State) connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ok := s.client.Heartbeat(ctx) == nil
	if ok {
		atomic.StoreInt32(&s.connected32, 1)
	} else {
		atomic.StoreInt32(&s.connected32, 0)
	}
	return atomic.LoadInt32(&s.connected32) == 1
}

func (s *mt4State) getAccountInfo(ctx context.Context) (broker.AccountInfo, error) {
	balance, equity, margin, err := s.client.AccountSummary(ctx)
	if err != nil {
		return broker.AccountInfo{}, err
	}
	return broker.AccountInfo{Broker: "mt4", Balance: balance, Equity: equity, Margin: margin, Mode: "live"}, nil
}

func (s *mt4State) getPositions(ctx context.Context) ([]domain.Trade, error) {
	orders, err := s.client.OpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	trades := make([]domain.Trade, 0, len(orders))
	for _, o := range orders {
		pair, perr := domain.NewPair(o.Symbol)
		if perr != nil {
			continue
		}
		dir := domain.Buy
		if o.Side == "sell" {
			dir = domain.Sell
		}
		sl, tp := o.SL, o.TP
		trades = append(trades, domain.Trade{
			ID: o.Ticket, Pair: pair, Direction: dir, PositionSize: o.Lots,
			EntryPrice: o.OpenPrice, StopLoss: &sl, TakeProfit: &tp,
			Status: domain.TradeOpen, Broker: "mt4",
		})
	}
	return trades, nil
}

func (s *mt4State) openPosition(ctx context.Context, order domain.OrderEnvelope) (domain.Trade, error) {
	side := "buy"
	if order.Direction == domain.Sell {
		side = "sell"
	}
	ticket, fillPrice, err := s.client.Send(ctx, order.Pair, order.Volume, side, order.StopLoss, order.TakeProfit)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("mt4 send order: %w", err)
	}
	pair, err := domain.NewPair(order.Pair)
	if err != nil {
		return domain.Trade{}, err
	}
	sl, tp := order.StopLoss, order.TakeProfit
	return domain.Trade{
		ID: ticket, Pair: pair, Direction: order.Direction, PositionSize: order.Volume,
		EntryPrice: fillPrice, StopLoss: &sl, TakeProfit: &tp,
		OpenTime: time.Now(), Status: domain.TradeOpen, Broker: "mt4",
	}, nil
}

func (s *mt4State) closePosition(ctx context.Context, id string) error {
	return s.client.Close(ctx, id)
}

func (s *mt4State) modifyPosition(ctx context.Context, order domain.OrderEnvelope) error {
	return s.client.Modify(ctx, order.TradeID, order.StopLoss, order.TakeProfit)
}
