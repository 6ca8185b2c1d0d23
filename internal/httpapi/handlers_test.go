package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fxrunner/engine/internal/broker"
	"github.com/fxrunner/engine/internal/config"
	"github.com/fxrunner/engine/internal/domain"
)

func newTestHandlers() *Handlers {
	return &Handlers{
		Log:    zerolog.Nop(),
		Cfg:    config.Config{Environment: "test", Port: 9999, RequireRealtimeData: true, TradingScope: "signals"},
		Router: broker.NewRouter(nil),
		Hub:    NewHub(zerolog.Nop(), nil),
	}
}

func TestHealthzReportsUp(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()

	h.Healthz(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.Equal(t, "ok", resp.Status)
	require.True(t, resp.RequireRealTime)
}

func TestRuntimeHealthReflectsConfig(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/api/health/runtime", nil)
	rec := httptest.NewRecorder()

	h.RuntimeHealth(rec, req)

	var resp RuntimeHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "test", resp.Runtime.Environment)
	require.Equal(t, 9999, resp.Runtime.Server.Port)
	require.Equal(t, "signals", resp.Runtime.TradingScope.Mode)
}

func TestAutoTraderDisableEngagesKillSwitch(t *testing.T) {
	h := newTestHandlers()

	rec := httptest.NewRecorder()
	h.AutoTraderEnable(rec, httptest.NewRequest(http.MethodPost, "/api/auto-trader/enable", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, h.autoTradeEnabled)

	rec = httptest.NewRecorder()
	h.AutoTraderDisable(rec, httptest.NewRequest(http.MethodPost, "/api/auto-trader/disable", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, h.autoTradeEnabled)

	_, err := h.Router.OpenPosition(context.Background(), domain.OrderEnvelope{Pair: "EURUSD", Direction: domain.Buy, Volume: 0.1})
	require.ErrorIs(t, err, broker.ErrKillSwitchEngaged)
}

func TestAutoTraderCloseAllWithNoConnectorsReportsZero(t *testing.T) {
	h := newTestHandlers()
	rec := httptest.NewRecorder()

	h.AutoTraderCloseAll(rec, httptest.NewRequest(http.MethodPost, "/api/auto-trader/close-all", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, map[string]interface{}{"closed": 0.0, "failed": 0.0}, resp.Data)
}

func TestGenerateSignalRejectsInvalidPair(t *testing.T) {
	h := newTestHandlers()
	body := strings.NewReader(`{"pair":"NOTAPAIR"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/signal/generate", body)
	rec := httptest.NewRecorder()

	h.GenerateSignal(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
}

func TestAutoTraderConfigUpdatesPreferredBrokerAndAutoExecute(t *testing.T) {
	h := newTestHandlers()
	h.Router.Register(&broker.Connector{ID: "oanda", IsEnabled: true, IsConnected: func() bool { return true }})

	enabled := true
	reqBody, err := json.Marshal(AutoTraderConfigRequest{PreferredBroker: "oanda", AutoExecute: &enabled})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/auto-trader/config", strings.NewReader(string(reqBody)))
	rec := httptest.NewRecorder()

	h.AutoTraderConfig(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, h.autoTradeEnabled)
}
