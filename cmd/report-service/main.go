package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	dbconnector "reportengine-backend"
	"reportengine-backend/internal/bus"
	"reportengine-backend/internal/datasource"
	"reportengine-backend/internal/generator"
	"reportengine-backend/internal/monitor"
	"reportengine-backend/internal/query"
	"reportengine-backend/internal/quality"
	"reportengine-backend/internal/reportcfg"
	"reportengine-backend/internal/security"
	"reportengine-backend/internal/storage"
)

func main() {
	cfg, err := loadConfig(getenv("CONFIG_FILE", "config.yaml"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := buildLogger(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("metadata store unavailable", zap.Error(err))
	}
	defer store.Close()
	repo := storage.NewRepository(store)

	var publisher *bus.Publisher
	if cfg.NatsURL != "" {
		publisher, err = bus.NewPublisher(cfg.NatsURL)
		if err != nil {
			logger.Warn("nats unavailable, notify and email alert actions disabled", zap.Error(err))
		} else {
			defer publisher.Close()
		}
	}

	var resolver datasource.Resolver
	if cfg.EncryptionKey != "" {
		enc, err := datasource.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			logger.Fatal("bad encryption key", zap.Error(err))
		}
		resolver = datasource.NewResolver(datasource.NewPostgresStore(store.Pool, enc))
	} else {
		logger.Warn("ENCRYPTION_KEY not set, stored data source lookup disabled")
		resolver = datasource.NewResolver(nil)
	}

	source, ok := cfg.dataSource(cfg.DefaultDataSource)
	if !ok {
		logger.Fatal("default data source not configured", zap.String("name", cfg.DefaultDataSource))
	}
	conn, err := dbconnector.NewConnector(dbconnector.ConnectionConfig{
		Type:     source.Type,
		Host:     source.Host,
		Port:     source.Port,
		User:     source.User,
		Password: source.Password,
		Database: source.Database,
		SSLMode:  source.SSLMode,
	})
	if err != nil {
		logger.Fatal("connector init failed", zap.Error(err))
	}
	defer conn.Close()

	engine := query.NewEngine(conn, logger, query.Config{
		CacheTTL:         cfg.Engine.CacheTTL(),
		MaxCacheSize:     cfg.Engine.MaxCacheSize,
		QueriesPerSecond: cfg.Engine.QueriesPerSecond,
		Allowlist:        security.Allowlist{Tables: cfg.Engine.AllowedTables},
	})
	defer engine.Close()

	qualityEngine := quality.NewEngine(conn, quality.NewRegistry(quality.BuiltinRules()...), logger)

	thresholds := monitor.DefaultThresholds()
	if cfg.Engine.SlowQueryMs > 0 {
		thresholds.SlowQueryMs = cfg.Engine.SlowQueryMs
	}
	if cfg.Engine.CooldownSeconds > 0 {
		thresholds.Cooldown = cfg.Engine.Cooldown()
	}
	if cfg.Engine.BufferSize > 0 {
		thresholds.BufferSize = cfg.Engine.BufferSize
	}
	if cfg.Engine.FlushIntervalSeconds > 0 {
		thresholds.FlushInterval = cfg.Engine.FlushInterval()
	}
	mon := monitor.New(repo, repo, thresholds, logger)

	manager := reportcfg.NewManager(repo, repo, logger)
	if err := manager.SeedBuiltinTemplates(ctx); err != nil {
		logger.Warn("template seeding failed", zap.Error(err))
	}

	gen := generator.New(manager, engine, qualityEngine, mon, logger)

	handlers := map[generator.ActionType]generator.ActionHandler{
		generator.ActionLog:     &generator.LogActionHandler{Logger: logger},
		generator.ActionWebhook: generator.NewWebhookActionHandler(),
	}
	if publisher != nil {
		handlers[generator.ActionNotify] = generator.NewNotifyActionHandler(publisher)
		handlers[generator.ActionEmail] = generator.NewEmailActionHandler(publisher)
	}
	checker := generator.NewAlertChecker(gen, repo, handlers, logger)
	scheduler := generator.NewScheduler(checker, manager, logger)

	go mon.Run(ctx)
	go scheduler.Run(ctx)

	h := &Handler{
		Generator: gen,
		Engine:    engine,
		Quality:   qualityEngine,
		Manager:   manager,
		Monitor:   mon,
		Cleaning:  repo,
		Config:    cfg,
		Factory:   dbconnector.NewConnector,
		Resolver:  resolver,
		Logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metricsMiddleware)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("report-service listening", zap.String("addr", cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(mode string) (*zap.Logger, error) {
	if mode == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
