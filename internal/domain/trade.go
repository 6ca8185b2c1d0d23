package domain

import "time"

// TradeStatus is the monotone lifecycle state of a Trade.
type TradeStatus string

const (
	TradeOpen      TradeStatus = "OPEN"
	TradeClosed    TradeStatus = "CLOSED"
	TradeCancelled TradeStatus = "CANCELLED"
	TradeError     TradeStatus = "ERROR"
)

// Trade is a broker position opened on behalf of a signal.
type Trade struct {
	ID           string
	Pair         Pair
	Direction    Direction
	PositionSize float64
	EntryPrice   float64
	StopLoss     *float64
	TakeProfit   *float64
	OpenTime     time.Time
	CloseTime    *time.Time
	Status       TradeStatus
	CloseReason  string
	Broker       string
	CurrentPnL   float64
	FinalPnL     *float64
}

// allowedTransitions enumerates the monotone state machine; OPEN is the only
// state with onward transitions, everything else is terminal.
var allowedTransitions = map[TradeStatus]map[TradeStatus]bool{
	TradeOpen: {TradeClosed: true, TradeCancelled: true, TradeError: true},
}

// Transition moves the trade to a new status, refusing any transition out of
// a terminal state.
func (t *Trade) Transition(to TradeStatus) bool {
	if !allowedTransitions[t.Status][to] {
		return false
	}
	t.Status = to
	return true
}

// OrderEnvelope is the router's order input. It carries both the canonical
// field set and the wire-facing alias fields a caller may populate instead
// (pair|symbol, direction|type, id?|ticket?) — e.g. a REST client that binds
// JSON using the broker-native names. NormalizeEnvelope maps any populated
// alias onto its canonical counterpart before the router dispatches the
// order; everything downstream of normalization reads only the canonical
// fields.
type OrderEnvelope struct {
	Broker     string
	Pair       string
	Direction  Direction
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	ID         string
	Comment    string
	Source     string
	TradeID    string
	Reason     string

	// Alias fields: populated instead of (never alongside) the canonical
	// field they map to. Zero value means "not supplied via this alias".
	Symbol string    // alias for Pair
	Type   Direction // alias for Direction
	Ticket string    // alias for ID
}
