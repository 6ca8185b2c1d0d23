// Package connectors provides concrete broker Connector implementations:
// MT4, MT5, OANDA, and Interactive Brokers, each a thin adapter over its own
// wire protocol normalized onto the shape internal/broker.Connector expects.
package connectors

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxrunner/engine/internal/broker"
	"github.com/fxrunner/engine/internal/domain"
)

// MT5Client is the minimal wire surface this connector needs from an MT5
// terminal bridge (gRPC or named-pipe backed in production).
type MT5Client interface {
	Ping(ctx context.Context) error
	AccountSummary(ctx context.Context) (balance, equity, margin float64, mode string, err error)
	OpenPositions(ctx context.Context) ([]MT5Position, error)
	PlaceOrder(ctx context.Context, symbol string, volume float64, side string, sl, tp float64) (ticket string, fillPrice float64, err error)
	ClosePosition(ctx context.Context, ticket string) error
	ModifyPosition(ctx context.Context, ticket string, sl, tp float64) error
}

// MT5Position is the broker-native open position shape returned by
// MT5Client.OpenPositions.
type MT5Position struct {
	Ticket     string
	Symbol     string
	Side       string
	Volume     float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
}

// NewMT5Connector adapts an MT5Client into a broker.Connector, tracking
// connectivity via a background ping loop.
func NewMT5Connector(client MT5Client) *broker.Connector {
	state := &mt5State{client: client}
	state.startPingLoop()

	return &broker.Connector{
		ID:             "mt5",
		IsEnabled:      true,
		IsConnected:    state.connected,
		AccountMode:    state.mode,
		GetAccountInfo: state.getAccountInfo,
		GetPositions:   state.getPositions,
		OpenPosition:   state.openPosition,
		ClosePosition:  state.closePosition,
		ModifyPosition: state.modifyPosition,
	}
}

type mt5State struct {
	client    MT5Client
	connectedFlag int32
	lastMode  sync.Map
}

func (s *mt5State) startPingLoop() {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := s.client.Ping(ctx)
			cancel()
			if err == nil {
				atomic.StoreInt32(&s.connectedFlag, 1)
			} else {
				atomic.StoreInt32(&s.connectedFlag, 0)
			}
		}
	}()
	// probe once synchronously so IsConnected is meaningful immediately.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.client.Ping(ctx) == nil {
		atomic.StoreInt32(&s.connectedFlag, 1)
	}
}

func (s *mt5State) connected() bool { return atomic.LoadInt32(&s.connectedFlag) == 1 }

func (s *mt5State) mode() string {
	v, ok := s.lastMode.Load("mode")
	if !ok {
		return "unknown"
	}
	return v.(string)
}

func (s *mt5State) getAccountInfo(ctx context.Context) (broker.AccountInfo, error) {
	balance, equity, margin, mode, err := s.client.AccountSummary(ctx)
	if err != nil {
		return broker.AccountInfo{}, err
	}
	s.lastMode.Store("mode", mode)
	return broker.AccountInfo{Broker: "mt5", Balance: balance, Equity: equity, Margin: margin, Mode: mode}, nil
}

func (s *mt5State) getPositions(ctx context.Context) ([]domain.Trade, error) {
	positions, err := s.client.OpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	trades := make([]domain.Trade, 0, len(positions))
	for _, p := range positions {
		pair, perr := domain.NewPair(p.Symbol)
		if perr != nil {
			continue
		}
		dir := domain.Buy
		if p.Side == "sell" {
			dir = domain.Sell
		}
		sl, tp := p.StopLoss, p.TakeProfit
		trades = append(trades, domain.Trade{
			ID: p.Ticket, Pair: pair, Direction: dir, PositionSize: p.Volume,
			EntryPrice: p.OpenPrice, StopLoss: &sl, TakeProfit: &tp,
			Status: domain.TradeOpen, Broker: "mt5",
		})
	}
	return trades, nil
}

func (s *mt5State) openPosition(ctx context.Context, order domain.OrderEnvelope) (domain.Trade, error) {
	side := "buy"
	if order.Direction == domain.Sell {
		side = "sell"
	}
	ticket, fillPrice, err := s.client.PlaceOrder(ctx, order.Pair, order.Volume, side, order.StopLoss, order.TakeProfit)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("mt5 place order: %w", err)
	}
	pair, err := domain.NewPair(order.Pair)
	if err != nil {
		return domain.Trade{}, err
	}
	sl, tp := order.StopLoss, order.TakeProfit
	return domain.Trade{
		ID: ticket, Pair: pair, Direction: order.Direction, PositionSize: order.Volume,
		EntryPrice: fillPrice, StopLoss: &sl, TakeProfit: &tp,
		OpenTime: time.Now(), Status: domain.TradeOpen, Broker: "mt5",
	}, nil
}

func (s *mt5State) closePosition(ctx context.Context, id string) error {
	return s.client.ClosePosition(ctx, id)
}

func (s *mt5State) modifyPosition(ctx context.Context, order domain.OrderEnvelope) error {
	return s.client.ModifyPosition(ctx, order.TradeID, order.StopLoss, order.TakeProfit)
}
