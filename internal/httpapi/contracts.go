package httpapi

import "time"

// envelope is the common success/error JSON wrapper every REST handler
// writes, matching the teacher's {success, data|error} contract.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details []string    `json:"details,omitempty"`
}

// HealthzResponse answers GET /api/healthz.
type HealthzResponse struct {
	OK              bool           `json:"ok"`
	Status          string         `json:"status"`
	RequireRealTime bool           `json:"requireRealTime"`
	Modules         []ModuleStatus `json:"modules"`
}

// ModuleStatus is one component's liveness entry in HealthzResponse.
type ModuleStatus struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// ProviderHealthResponse answers GET /api/health/providers.
type ProviderHealthResponse struct {
	Success        bool                   `json:"success"`
	Providers      []ProviderHealthEntry  `json:"providers"`
	Timeframes     []string               `json:"timeframes"`
	Classification string                 `json:"classification"`
	History        []AvailabilityHistory  `json:"history"`
	HistoryLimit   int                    `json:"historyLimit"`
}

// ProviderHealthEntry is one provider's rolling health snapshot.
type ProviderHealthEntry struct {
	Provider       string  `json:"provider"`
	SuccessRatePct float64 `json:"successRatePct"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
	QualityScore   float64 `json:"qualityScore"`
	CircuitState   string  `json:"circuitState"`
	RemainingQuota int     `json:"remainingQuota"`
}

// AvailabilityHistory is one classifier tick in the provider health history.
type AvailabilityHistory struct {
	CapturedAt       time.Time `json:"capturedAt"`
	State            string    `json:"state"`
	Reason           string    `json:"reason"`
	AggregateQuality float64   `json:"aggregateQuality"`
}

// RuntimeHealthResponse answers GET /api/health/runtime.
type RuntimeHealthResponse struct {
	Success bool        `json:"success"`
	Runtime RuntimeInfo `json:"runtime"`
}

type RuntimeInfo struct {
	Environment  string       `json:"environment"`
	Server       ServerInfo   `json:"server"`
	TradingScope TradingScope `json:"tradingScope"`
}

type ServerInfo struct {
	Port int `json:"port"`
}

type TradingScope struct {
	Mode string `json:"mode"`
}

// GenerateSignalRequest is the POST /api/signal/generate body.
type GenerateSignalRequest struct {
	Pair        string `json:"pair"`
	Broker      string `json:"broker,omitempty"`
	Broadcast   bool   `json:"broadcast,omitempty"`
	AnalysisMode string `json:"analysisMode,omitempty"`
	EAOnly      bool   `json:"eaOnly,omitempty"`
	AutoExecute bool   `json:"autoExecute,omitempty"`
}

// GenerateSignalResponse is the POST /api/signal/generate success body.
type GenerateSignalResponse struct {
	Success   bool        `json:"success"`
	Signal    interface{} `json:"signal"`
	Timestamp time.Time   `json:"timestamp"`
}

// AutoTraderConfigRequest is the PUT /api/auto-trader/config body.
type AutoTraderConfigRequest struct {
	PreferredBroker string `json:"preferredBroker,omitempty"`
	AutoExecute     *bool  `json:"autoExecute,omitempty"`
}

// QuotesResponse answers GET /api/broker/bridge/:broker/market/quotes.
type QuotesResponse struct {
	Success bool        `json:"success"`
	Broker  string      `json:"broker"`
	Quote   interface{} `json:"quote,omitempty"`
}

// wsFrame is the closed-set frame shape for /ws/trading.
type wsFrame struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}
