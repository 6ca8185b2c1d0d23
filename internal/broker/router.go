// Package broker implements the broker router (C10): a connector registry
// with alias-normalized order envelopes, kill-switch enforcement,
// preferred-broker routing with automatic fallback, and periodic
// reconciliation against each connector's live position set.
package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fxrunner/engine/internal/domain"
)

var ErrNoConnectedBrokers = errors.New("no_connected_brokers")
var ErrKillSwitchEngaged = errors.New("kill switch engaged")

// AccountInfo is the normalized account snapshot every connector returns.
type AccountInfo struct {
	Broker  string
	Balance float64
	Equity  float64
	Margin  float64
	Mode    string // "demo" | "live"
}

// Connector is the pluggable broker capability set (MT4, MT5, OANDA, IBKR).
type Connector struct {
	ID            string
	IsEnabled     bool
	IsConnected   func() bool
	AccountMode   func() string
	GetAccountInfo func(ctx context.Context) (AccountInfo, error)
	GetPositions  func(ctx context.Context) ([]domain.Trade, error)
	OpenPosition  func(ctx context.Context, order domain.OrderEnvelope) (domain.Trade, error)
	ClosePosition func(ctx context.Context, id string) error
	ModifyPosition func(ctx context.Context, order domain.OrderEnvelope) error
}

// Event is the WebSocket-shaped observability frame the router emits for
// every call.
type Event struct {
	Type      string
	Broker    string
	TradeID   string
	Status    string
	SlippagePips float64
	Timestamp time.Time
	Details   map[string]interface{}
}

// EventSink receives every router event; the orchestrator wires this to
// the WebSocket broadcaster.
type EventSink interface {
	Emit(Event)
}

// DriftEvent is raised when reconciliation finds a local/remote mismatch.
type DriftEvent struct {
	Broker    string
	TradeID   string
	Reason    string
	DetectedAt time.Time
}

// Router owns the connector registry and the kill switch.
type Router struct {
	mu         sync.RWMutex
	connectors map[string]*Connector
	defaultID  string

	killSwitch       bool
	killSwitchReason string

	sink EventSink

	localPositions map[string]domain.Trade
}

func NewRouter(sink EventSink) *Router {
	return &Router{connectors: make(map[string]*Connector), sink: sink, localPositions: make(map[string]domain.Trade)}
}

// Register adds a connector to the registry; the first registered
// connector becomes the default unless overridden.
func (r *Router) Register(c *Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.ID] = c
	if r.defaultID == "" {
		r.defaultID = c.ID
	}
}

// SetDefault overrides which connector id is used when no preferredBroker
// is specified.
func (r *Router) SetDefault(id string) { r.mu.Lock(); r.defaultID = id; r.mu.Unlock() }

// EngageKillSwitch blocks all new orders and modifications.
func (r *Router) EngageKillSwitch(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.killSwitch = true
	r.killSwitchReason = reason
}

func (r *Router) DisengageKillSwitch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.killSwitch = false
	r.killSwitchReason = ""
}

// ConnectedBrokerIDs returns the ids of every registered connector that
// reports itself connected, for callers (e.g. the close-all REST endpoint)
// that need to fan a call out across the whole registry rather than a
// single resolved connector.
func (r *Router) ConnectedBrokerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.connectors))
	for id, c := range r.connectors {
		if c.IsEnabled && c.IsConnected != nil && c.IsConnected() {
			ids = append(ids, id)
		}
	}
	return ids
}

// resolve picks preferredBroker if connected, else the default, else any
// connected connector.
func (r *Router) resolve(preferredBroker string) (*Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if preferredBroker != "" {
		if c, ok := r.connectors[preferredBroker]; ok && c.IsEnabled && c.IsConnected() {
			return c, nil
		}
	}
	if c, ok := r.connectors[r.defaultID]; ok && c.IsEnabled && c.IsConnected() {
		return c, nil
	}
	for _, c := range r.connectors {
		if c.IsEnabled && c.IsConnected() {
			return c, nil
		}
	}
	return nil, ErrNoConnectedBrokers
}

// OpenPosition normalizes the envelope, resolves a connected connector, and
// dispatches the order, emitting the full attempt/result event pair.
func (r *Router) OpenPosition(ctx context.Context, order domain.OrderEnvelope) (domain.Trade, error) {
	order = NormalizeEnvelope(order)

	r.mu.RLock()
	killed, reason := r.killSwitch, r.killSwitchReason
	r.mu.RUnlock()
	if killed {
		r.emit(Event{Type: "auto_trade_rejected", Broker: order.Broker, Status: "kill_switch", Timestamp: time.Now(),
			Details: map[string]interface{}{"reason": reason}})
		return domain.Trade{}, ErrKillSwitchEngaged
	}

	r.emit(Event{Type: "auto_trade_attempt", Broker: order.Broker, Timestamp: time.Now()})

	connector, err := r.resolve(order.Broker)
	if err != nil {
		r.emit(Event{Type: "auto_trade_rejected", Broker: order.Broker, Status: "no_connected_brokers", Timestamp: time.Now()})
		return domain.Trade{}, err
	}

	trade, err := connector.OpenPosition(ctx, order)
	if err != nil {
		r.emit(Event{Type: "auto_trade_rejected", Broker: connector.ID, Status: "connector_error", Timestamp: time.Now(),
			Details: map[string]interface{}{"error": err.Error()}})
		return domain.Trade{}, err
	}

	r.mu.Lock()
	r.localPositions[trade.ID] = trade
	r.mu.Unlock()

	r.emit(Event{Type: "trade_opened", Broker: connector.ID, TradeID: trade.ID, Status: "ok", Timestamp: time.Now()})
	return trade, nil
}

// ClosePosition dispatches a close to the connector owning the position.
func (r *Router) ClosePosition(ctx context.Context, broker, id string) error {
	connector, err := r.resolve(broker)
	if err != nil {
		return err
	}
	if err := connector.ClosePosition(ctx, id); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.localPositions, id)
	r.mu.Unlock()
	r.emit(Event{Type: "trade_closed", Broker: connector.ID, TradeID: id, Status: "ok", Timestamp: time.Now()})
	return nil
}

// ModifyPosition is rejected outright when the kill switch is engaged,
// never reaching the connector.
func (r *Router) ModifyPosition(ctx context.Context, order domain.OrderEnvelope) error {
	order = NormalizeEnvelope(order)

	r.mu.RLock()
	killed := r.killSwitch
	r.mu.RUnlock()
	if killed {
		r.emit(Event{Type: "trade_stop_modify_failed", Broker: order.Broker, TradeID: order.TradeID, Status: "kill_switch", Timestamp: time.Now()})
		return ErrKillSwitchEngaged
	}

	connector, err := r.resolve(order.Broker)
	if err != nil {
		return err
	}
	if err := connector.ModifyPosition(ctx, order); err != nil {
		r.emit(Event{Type: "trade_stop_modify_failed", Broker: connector.ID, TradeID: order.TradeID, Status: "connector_error", Timestamp: time.Now()})
		return err
	}
	r.emit(Event{Type: "trade_stop_modified", Broker: connector.ID, TradeID: order.TradeID, Status: "ok", Timestamp: time.Now()})
	return nil
}

// GetPositions returns the resolved connector's live position set.
func (r *Router) GetPositions(ctx context.Context, broker string) ([]domain.Trade, error) {
	connector, err := r.resolve(broker)
	if err != nil {
		return nil, err
	}
	return connector.GetPositions(ctx)
}

// GetAccountInfo returns the resolved connector's account snapshot.
func (r *Router) GetAccountInfo(ctx context.Context, broker string) (AccountInfo, error) {
	connector, err := r.resolve(broker)
	if err != nil {
		return AccountInfo{}, err
	}
	return connector.GetAccountInfo(ctx)
}

// Reconcile compares the locally tracked open-position set against each
// connected connector's live positions and returns any drift found.
func (r *Router) Reconcile(ctx context.Context) []DriftEvent {
	r.mu.RLock()
	local := make(map[string]domain.Trade, len(r.localPositions))
	for k, v := range r.localPositions {
		local[k] = v
	}
	connectors := make([]*Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		connectors = append(connectors, c)
	}
	r.mu.RUnlock()

	var drift []DriftEvent
	now := time.Now()

	for _, c := range connectors {
		if !c.IsEnabled || !c.IsConnected() {
			continue
		}
		remote, err := c.GetPositions(ctx)
		if err != nil {
			continue
		}
		remoteByID := make(map[string]domain.Trade, len(remote))
		for _, t := range remote {
			remoteByID[t.ID] = t
		}
		for id, lt := range local {
			if lt.Broker != c.ID {
				continue
			}
			rt, ok := remoteByID[id]
			if !ok {
				drift = append(drift, DriftEvent{Broker: c.ID, TradeID: id, Reason: "missing_remote", DetectedAt: now})
				continue
			}
			if rt.Status != lt.Status {
				drift = append(drift, DriftEvent{Broker: c.ID, TradeID: id, Reason: "status_mismatch", DetectedAt: now})
			}
		}
	}
	return drift
}

func (r *Router) emit(e Event) {
	if r.sink != nil {
		r.sink.Emit(e)
	}
}

// NormalizeEnvelope maps alias fields (pair|symbol, direction|type,
// id?|ticket?) onto the canonical OrderEnvelope fields before dispatch, so
// every downstream reader — connectors, persistence, event emission — only
// ever has to look at Pair/Direction/ID. A canonical field already set by
// the caller wins over its alias.
func NormalizeEnvelope(o domain.OrderEnvelope) domain.OrderEnvelope {
	if o.Pair == "" && o.Symbol != "" {
		o.Pair = o.Symbol
	}
	if o.Direction == "" && o.Type != "" {
		o.Direction = o.Type
	}
	if o.ID == "" && o.Ticket != "" {
		o.ID = o.Ticket
	}
	return o
}
