package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/fxrunner/engine/internal/broker"
	"github.com/fxrunner/engine/internal/config"
	"github.com/fxrunner/engine/internal/domain"
	"github.com/fxrunner/engine/internal/metrics"
	"github.com/fxrunner/engine/internal/orchestrator"
	"github.com/fxrunner/engine/internal/providers"
	"github.com/fxrunner/engine/internal/providers/health"
)

// Handlers bundles every collaborator the REST/WebSocket surface dispatches
// into, each held as the component's concrete type.
type Handlers struct {
	Log zerolog.Logger
	Cfg config.Config

	Coordinator *orchestrator.Coordinator
	Router      *broker.Router
	Fetcher     *providers.Fetcher
	Classifier    *health.Classifier
	MetricsRegistry *metrics.Registry
	Gatherer      prometheus.Gatherer
	Hub         *Hub

	autoTradeEnabled bool
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Healthz answers GET /api/healthz: an overall liveness probe across the
// components that can independently fail.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	modules := []ModuleStatus{
		{ID: "orchestrator", State: "up"},
		{ID: "broker_router", State: "up"},
		{ID: "provider_fetcher", State: "up"},
	}
	status := "ok"
	ok := true
	for _, m := range modules {
		if m.State != "up" {
			status = "degraded"
			ok = false
		}
	}
	resp := HealthzResponse{OK: ok, Status: status, RequireRealTime: h.Cfg.RequireRealtimeData, Modules: modules}
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// ProviderHealth answers GET /api/health/providers?timeframes=CSV.
func (h *Handlers) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("timeframes")
	var timeframes []string
	if raw != "" {
		timeframes = strings.Split(raw, ",")
	}

	metricsByProvider := h.Fetcher.Metrics()
	entries := make([]ProviderHealthEntry, 0, len(metricsByProvider))
	var breakerOpen []string
	for name, m := range metricsByProvider {
		entries = append(entries, ProviderHealthEntry{
			Provider:       name,
			SuccessRatePct: m.SuccessRatePct,
			AvgLatencyMs:   m.AvgLatencyMs,
			QualityScore:   m.QualityScore,
			CircuitState:   string(m.CircuitState),
			RemainingQuota: m.RemainingQuota,
		})
		if m.CircuitState == domain.BreakerOpen {
			breakerOpen = append(breakerOpen, name)
		}
	}

	sample := h.Classifier.Classify(health.FleetInput{
		Now:                  time.Now(),
		ProviderMetrics:      metricsByProvider,
		BreakerOpenProviders: breakerOpen,
		TotalTimeframes:      len(timeframes),
	})

	history := h.Classifier.History()
	histOut := make([]AvailabilityHistory, 0, len(history))
	for _, s := range history {
		histOut = append(histOut, AvailabilityHistory{
			CapturedAt:       s.CapturedAt,
			State:            string(s.State),
			Reason:           s.Reason,
			AggregateQuality: s.AggregateQuality,
		})
	}

	writeJSON(w, http.StatusOK, ProviderHealthResponse{
		Success:        true,
		Providers:      entries,
		Timeframes:     timeframes,
		Classification: string(sample.State),
		History:        histOut,
		HistoryLimit:   len(history),
	})
}

// RuntimeHealth answers GET /api/health/runtime.
func (h *Handlers) RuntimeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RuntimeHealthResponse{
		Success: true,
		Runtime: RuntimeInfo{
			Environment:  h.Cfg.Environment,
			Server:       ServerInfo{Port: h.Cfg.Port},
			TradingScope: TradingScope{Mode: h.Cfg.TradingScope},
		},
	})
}

// Metrics answers GET /metrics and GET /api/metrics.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics.Handler(h.Gatherer).ServeHTTP(w, r)
}

// GenerateSignal answers POST /api/signal/generate.
func (h *Handlers) GenerateSignal(w http.ResponseWriter, r *http.Request) {
	var req GenerateSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
		return
	}

	pair, err := domain.NewPair(req.Pair)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "Invalid pair", Details: []string{err.Error()}})
		return
	}

	start := time.Now()
	result, err := h.Coordinator.GenerateSignal(r.Context(), orchestrator.GenerateRequest{
		Pair:        pair,
		AutoExecute: req.AutoExecute && h.autoTradeEnabled,
		Broker:      req.Broker,
	})
	if h.MetricsRegistry != nil {
		h.MetricsRegistry.SignalDuration.WithLabelValues(pair.Symbol).Observe(time.Since(start).Seconds())
		h.MetricsRegistry.SignalsGenerated.WithLabelValues(pair.Symbol, string(result.Signal.Direction)).Inc()
		if !result.Signal.Validity.IsValid {
			h.MetricsRegistry.SignalsBlocked.WithLabelValues(result.Signal.Validity.Reason).Inc()
		}
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: err.Error()})
		return
	}

	if req.Broadcast && h.Hub != nil {
		h.Hub.Broadcast("signal", result.Signal)
	}

	writeJSON(w, http.StatusOK, GenerateSignalResponse{Success: true, Signal: result.Signal, Timestamp: time.Now()})
}

// AutoTraderEnable answers POST /api/auto-trader/enable.
func (h *Handlers) AutoTraderEnable(w http.ResponseWriter, r *http.Request) {
	h.autoTradeEnabled = true
	h.Router.DisengageKillSwitch()
	if h.MetricsRegistry != nil {
		h.MetricsRegistry.AutoTradingEnabled.Set(1)
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

// AutoTraderDisable answers POST /api/auto-trader/disable.
func (h *Handlers) AutoTraderDisable(w http.ResponseWriter, r *http.Request) {
	h.autoTradeEnabled = false
	h.Router.EngageKillSwitch("auto_trader_disabled_via_api")
	if h.MetricsRegistry != nil {
		h.MetricsRegistry.AutoTradingEnabled.Set(0)
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

// AutoTraderCloseAll answers POST /api/auto-trader/close-all: fans a close
// request out across every connected connector's open position set.
func (h *Handlers) AutoTraderCloseAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var closed, failed int
	for _, brokerID := range h.Router.ConnectedBrokerIDs() {
		positions, err := h.Router.GetPositions(ctx, brokerID)
		if err != nil {
			failed++
			continue
		}
		for _, p := range positions {
			if err := h.Router.ClosePosition(ctx, brokerID, p.ID); err != nil {
				failed++
				continue
			}
			closed++
		}
	}
	writeJSON(w, http.StatusOK, envelope{Success: failed == 0, Data: map[string]int{"closed": closed, "failed": failed}})
}

// AutoTraderConfig answers PUT /api/auto-trader/config.
func (h *Handlers) AutoTraderConfig(w http.ResponseWriter, r *http.Request) {
	var req AutoTraderConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
		return
	}
	if req.PreferredBroker != "" {
		h.Router.SetDefault(req.PreferredBroker)
	}
	if req.AutoExecute != nil {
		h.autoTradeEnabled = *req.AutoExecute
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

// BrokerBridgeQuotes answers GET /api/broker/bridge/:broker/market/quotes?maxAgeMs=N.
func (h *Handlers) BrokerBridgeQuotes(w http.ResponseWriter, r *http.Request) {
	brokerID := mux.Vars(r)["broker"]
	maxAgeMs, _ := strconv.ParseInt(r.URL.Query().Get("maxAgeMs"), 10, 64)

	pairRaw := r.URL.Query().Get("pair")
	pair, err := domain.NewPair(pairRaw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "Invalid pair", Details: []string{err.Error()}})
		return
	}

	quote, err := h.Fetcher.FetchQuote(r.Context(), pair, providers.FetchOptions{Purpose: "broker_bridge"})
	if err != nil || quote == nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "broker unavailable"})
		return
	}
	if maxAgeMs > 0 && quote.AgeMs(time.Now()) > maxAgeMs {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "quote stale"})
		return
	}
	writeJSON(w, http.StatusOK, QuotesResponse{Success: true, Broker: brokerID, Quote: quote})
}
