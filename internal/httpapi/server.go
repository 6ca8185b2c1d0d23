// Package httpapi exposes the engine's REST and WebSocket surface: signal
// generation, provider/runtime health, Prometheus metrics, and auto-trader
// control, all behind a gorilla/mux router with the same middleware chain
// (request id, structured access log, timeout, CORS, JSON content type) the
// platform uses for every HTTP-facing component.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ServerConfig controls the listener and timeouts.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server owns the mux router and the underlying http.Server.
type Server struct {
	cfg    ServerConfig
	log    zerolog.Logger
	router *mux.Router
	http   *http.Server
	deps   *Handlers
}

// NewServer probes the configured port is free, wires the route table, and
// returns a Server ready for Start.
func NewServer(cfg ServerConfig, log zerolog.Logger, deps *Handlers) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", cfg.Port, err)
	}
	ln.Close()

	s := &Server{cfg: cfg, log: log, deps: deps}
	s.router = mux.NewRouter()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(jsonContentTypeMiddleware)

	s.router.HandleFunc("/api/healthz", s.deps.Healthz).Methods(http.MethodGet)
	s.router.HandleFunc("/api/health/providers", s.deps.ProviderHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/health/runtime", s.deps.RuntimeHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	s.router.HandleFunc("/api/metrics", s.deps.Metrics).Methods(http.MethodGet)
	s.router.HandleFunc("/api/signal/generate", s.deps.GenerateSignal).Methods(http.MethodPost)
	s.router.HandleFunc("/api/auto-trader/enable", s.deps.AutoTraderEnable).Methods(http.MethodPost)
	s.router.HandleFunc("/api/auto-trader/disable", s.deps.AutoTraderDisable).Methods(http.MethodPost)
	s.router.HandleFunc("/api/auto-trader/close-all", s.deps.AutoTraderCloseAll).Methods(http.MethodPost)
	s.router.HandleFunc("/api/auto-trader/config", s.deps.AutoTraderConfig).Methods(http.MethodPut)
	s.router.HandleFunc("/api/broker/bridge/{broker}/market/quotes", s.deps.BrokerBridgeQuotes).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/trading", s.deps.ServeWS)

	s.router.NotFoundHandler = jsonContentTypeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "not_found"})
	}))
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) GetAddress() string { return s.http.Addr }

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()[:8]
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("http request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.TimeoutHandler(next, 5*time.Second, `{"success":false,"error":"timeout"}`)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "http://localhost:3000" || origin == "http://127.0.0.1:3000" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
