package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/fxrunner/engine/internal/broker"
	"github.com/fxrunner/engine/internal/domain"
)

// IBKRClient wraps the Client Portal Gateway REST surface. IBKR's contract
// IDs (conids) stand in for the symbol string used elsewhere, so this
// connector needs a symbol->conid resolver.
type IBKRClient interface {
	ResolveConid(ctx context.Context, symbol string) (conid int64, err error)
	AccountSummary(ctx context.Context) (netLiq, buyingPower, margin float64, err error)
	Positions(ctx context.Context) ([]IBKRPosition, error)
	PlaceOrder(ctx context.Context, conid int64, side string, quantity float64, sl, tp float64) (orderID string, avgPrice float64, err error)
	CancelPosition(ctx context.Context, orderID string) error
	ModifyOrder(ctx context.Context, orderID string, sl, tp float64) error
	IsAuthenticated(ctx context.Context) bool
}

type IBKRPosition struct {
	OrderID  string
	Symbol   string
	Side     string
	Quantity float64
	AvgPrice float64
	SL, TP   float64
}

func NewIBKRConnector(client IBKRClient) *broker.Connector {
	s := &ibkrState{client: client}
	return &broker.Connector{
		ID:             "ibkr",
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

type ibkrState struct{ client IBKRClient }

func (s *ibkrState) connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.IsAuthenticated(ctx)
}

func (s *ibkrState) getAccountInfo(ctx context.Context) (broker.AccountInfo, error) {
	netLiq, buyingPower, margin, err := s.client.AccountSummary(ctx)
	if err != nil {
		return broker.AccountInfo{}, err
	}
	return broker.AccountInfo{Broker: "ibkr", Balance: buyingPower, Equity: netLiq, Margin: margin, Mode: "live"}, nil
}

func (s *ibkrState) getPositions(ctx context.Context) ([]domain.Trade, error) {
	positions, err := s.client.Positions(ctx)
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
		sl, tp := p.SL, p.TP
		trades = append(trades, domain.Trade{
			ID: p.OrderID, Pair: pair, Direction: dir, PositionSize: p.Quantity,
			EntryPrice: p.AvgPrice, StopLoss: &sl, TakeProfit: &tp,
			Status: domain.TradeOpen, Broker: "ibkr",
		})
	}
	return trades, nil
}

func (s *ibkrState) openPosition(ctx context.Context, order domain.OrderEnvelope) (domain.Trade, error) {
	conid, err := s.client.ResolveConid(ctx, order.Pair)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("ibkr resolve conid: %w", err)
	}
	side := "buy"
	if order.Direction == domain.Sell {
		side = "sell"
	}
	orderID, avgPrice, err := s.client.PlaceOrder(ctx, conid, side, order.Volume, order.StopLoss, order.TakeProfit)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("ibkr place order: %w", err)
	}
	pair, err := domain.NewPair(order.Pair)
	if err != nil {
		return domain.Trade{}, err
	}
	sl, tp := order.StopLoss, order.TakeProfit
	return domain.Trade{
		ID: orderID, Pair: pair, Direction: order.Direction, PositionSize: order.Volume,
		EntryPrice: avgPrice, StopLoss: &sl, TakeProfit: &tp,
		OpenTime: time.Now(), Status: domain.TradeOpen, Broker: "ibkr",
	}, nil
}

func (s *ibkrState) closePosition(ctx context.Context, id string) error {
	return s.client.CancelPosition(ctx, id)
}

func (s *ibkrState) modifyPosition(ctx context.Context, order domain.OrderEnvelope) error {
	return s.client.ModifyOrder(ctx, order.TradeID, order.StopLoss, order.TakeProfit)
}
