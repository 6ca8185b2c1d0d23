package main

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fxrunner/engine/internal/alerts"
	"github.com/fxrunner/engine/internal/analysis"
	"github.com/fxrunner/engine/internal/backtest"
	"github.com/fxrunner/engine/internal/broker"
	"github.com/fxrunner/engine/internal/config"
	"github.com/fxrunner/engine/internal/domain"
	"github.com/fxrunner/engine/internal/featurestore"
	"github.com/fxrunner/engine/internal/httpapi"
	"github.com/fxrunner/engine/internal/metrics"
	"github.com/fxrunner/engine/internal/net/circuit"
	"github.com/fxrunner/engine/internal/orchestrator"
	"github.com/fxrunner/engine/internal/persistence"
	"github.com/fxrunner/engine/internal/persistence/postgres"
	"github.com/fxrunner/engine/internal/providers"
	"github.com/fxrunner/engine/internal/providers/adapters"
	"github.com/fxrunner/engine/internal/providers/health"
	"github.com/fxrunner/engine/internal/quality"
	"github.com/fxrunner/engine/internal/risk"
	"github.com/fxrunner/engine/internal/scoring"
	"github.com/fxrunner/engine/internal/signalengine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// fetcherBarSource adapts the multi-provider fetcher's FetchBars (which
// takes a FetchOptions bag) to the plain three-package-local BarSource
// shape that the technical analyzer, quality guard, and backtest validator
// each declare independently.
type fetcherBarSource struct {
	fetcher *providers.Fetcher
	purpose string
}

func (a fetcherBarSource) FetchBars(ctx context.Context, pair domain.Pair, tf domain.Timeframe, n int) ([]domain.Bar, error) {
	return a.fetcher.FetchBars(ctx, pair, tf, n, providers.FetchOptions{Purpose: a.purpose})
}

// fetcherSpreadFn adapts the fetcher's current quote into the quality
// guard's pip-spread callback.
func fetcherSpreadFn(fetcher *providers.Fetcher) quality.SpreadFn {
	return func(ctx context.Context, pair domain.Pair) (float64, error) {
		quote, err := fetcher.FetchQuote(ctx, pair, providers.FetchOptions{Purpose: "spread_check"})
		if err != nil || quote == nil {
			return 0, err
		}
		return quote.SpreadPips(pair), nil
	}
}

// storeFeaturePersister adapts the C12 persistence.Store (context-aware,
// record-typed) onto the feature store's narrow, context-free Persister.
type storeFeaturePersister struct {
	store persistence.Store
}

func (p storeFeaturePersister) RecordFeatureSnapshot(pair, timeframe string, sample featurestore.Sample) bool {
	return p.store.RecordFeatureSnapshot(context.Background(), persistence.FeatureSnapshotRecord{
		Pair:        pair,
		Timeframe:   timeframe,
		FeatureHash: sample.Hash,
		Price:       sample.Price,
		Score:       sample.Score,
		Direction:   sample.Direction,
		CapturedAt:  time.UnixMilli(sample.Ts),
	})
}

// app bundles every constructed collaborator the serve command needs to
// start the HTTP/WebSocket surface and the background schedulers.
type app struct {
	cfg   config.Config
	log   zerolog.Logger
	hub   *httpapi.Hub
	bus   *alerts.Bus
	registry *prometheus.Registry
	metrics  *metrics.Registry

	router      *broker.Router
	fetcher     *providers.Fetcher
	classifier  *health.Classifier
	coordinator *orchestrator.Coordinator
	riskEngine  *risk.Engine
	riskMonitor *risk.Monitor
	store       persistence.Store
}

// correlationUniverse is the static pair set the risk monitor tracks
// correlation/VaR over, independent of whatever pair a given signal request
// names; it mirrors domain.Pair.SpreadCategory's own "majors" list.
var correlationUniverse = []string{"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "USDCAD", "AUDUSD", "NZDUSD"}

func correlationPairs() []domain.Pair {
	pairs := make([]domain.Pair, 0, len(correlationUniverse))
	for _, symbol := range correlationUniverse {
		if pair, err := domain.NewPair(symbol); err == nil {
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

// buildApp wires C1-C13 from cfg, grounded on the teacher's direct
// constructor-call wiring style (no DI container).
func buildApp(cfg config.Config, log zerolog.Logger) (*app, error) {
	bus := alerts.NewBus(log, alerts.DefaultConfig())
	bus.RegisterSender(alerts.LogSender{Log: log})
	publisher := alerts.ClassifierPublisher{Bus: bus}

	registry := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(registry)

	hub := httpapi.NewHub(log, metricsRegistry)

	var store persistence.Store
	if cfg.DB.Host != "" {
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = cfg.DB.DSN()
		pgCfg.MaxOpenConns = cfg.DB.MaxConns
		pgCfg.MaxIdleConns = cfg.DB.MinConns
		pgStore, err := postgres.Connect(pgCfg)
		if err != nil {
			log.Warn().Err(err).Msg("postgres unavailable, persistence disabled")
		} else {
			store = persistence.NewSelfDisablingStore(pgStore, log)
		}
	}

	fetcher := providers.NewFetcher(providers.FetcherConfig{
		AllowSynthetic:      cfg.AllowSyntheticData,
		RequireRealtimeData: cfg.RequireRealtimeData,
		DefaultRateRPS:      5,
		DefaultBurst:        10,
		BreakerConfig:       gobreaker.Settings{Name: "provider", Timeout: 30 * time.Second},
	})
	fetcher.Register(adapters.NewAlphaVantage())
	fetcher.Register(adapters.NewFinnhub())
	fetcher.Register(adapters.NewPolygon())
	fetcher.Register(adapters.NewTwelveData())

	breakers := circuit.NewManager(circuit.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          10 * time.Minute,
		RequestTimeout:   5 * time.Second,
	})
	guard := quality.NewGuard(fetcherBarSource{fetcher, "quality_check"}, fetcherSpreadFn(fetcher), quality.DefaultConfig(), breakers)

	technical := analysis.NewTechnicalAnalyzer(fetcherBarSource{fetcher, "technical_analysis"}, analysis.DefaultTimeframeWeights())
	// No macro-data or news/sentiment vendor exists in the reference corpus;
	// both analyzers run with a nil source and fall back to their
	// documented synthetic path until a concrete MacroSource/HeadlineSource
	// is wired in.
	economic := analysis.NewEconomicAnalyzer(nil, nil)
	news := analysis.NewNewsAnalyzer(nil, nil)

	scorer := scoring.NewScorer(scoring.DefaultWeights(), 8.0, nil)
	combiner := signalengine.NewCombiner(signalengine.DefaultEntryParams(), signalengine.DefaultValidityParams())

	riskEngine := risk.NewEngine(100000, risk.DefaultConfig())
	validator := backtest.NewValidator(fetcherBarSource{fetcher, "backtest_validation"}, backtest.DefaultConfig())

	var persister featurestore.Persister
	if store != nil {
		persister = storeFeaturePersister{store: store}
	}
	features := featurestore.NewStore(featurestore.DefaultConfig(), persister)

	router := broker.NewRouter(hub)

	coordinator := orchestrator.NewCoordinator(
		log, features, technical, economic, news, fetcher, guard, scorer, combiner,
		riskEngine, validator, router, orchestrator.DefaultOptions(),
	)

	classifier := health.NewClassifier(health.DefaultConfig(), publisher)

	riskMonitor := risk.NewMonitor(riskEngine, fetcherBarSource{fetcher, "risk_monitor"}, router, risk.DefaultMonitorConfig(correlationPairs()))

	return &app{
		cfg: cfg, log: log, hub: hub, bus: bus, registry: registry, metrics: metricsRegistry,
		router: router, fetcher: fetcher, classifier: classifier, coordinator: coordinator,
		riskEngine: riskEngine, riskMonitor: riskMonitor, store: store,
	}, nil
}

func (a *app) handlers() *httpapi.Handlers {
	return &httpapi.Handlers{
		Log:         a.log,
		Cfg:         a.cfg,
		Coordinator: a.coordinator,
		Router:      a.router,
		Fetcher:     a.fetcher,
		Classifier:  a.classifier,
		MetricsRegistry: a.metrics,
		Gatherer:    a.registry,
		Hub:         a.hub,
	}
}
