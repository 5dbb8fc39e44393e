package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adtarget/internal/analytics"
	"github.com/patrickwarner/adtarget/internal/api"
	"github.com/patrickwarner/adtarget/internal/config"
	"github.com/patrickwarner/adtarget/internal/customer"
	"github.com/patrickwarner/adtarget/internal/db"
	"github.com/patrickwarner/adtarget/internal/geoip"
	"github.com/patrickwarner/adtarget/internal/logic/selectors"
	"github.com/patrickwarner/adtarget/internal/middleware"
	"github.com/patrickwarner/adtarget/internal/models"
	"github.com/patrickwarner/adtarget/internal/observability"
	"github.com/patrickwarner/adtarget/internal/targeting"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer store.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer analyticsSvc.Close()

	geoSvc, err := geoip.Init(cfg.GeoIPDB)
	if err != nil {
		return fmt.Errorf("failed to load geoip db: %w", err)
	}
	defer func() { _ = geoSvc.Close() }()

	profiles := customer.NewProfileClient(cfg.ProfileServiceURL, cfg.CustomerClientTimeout, cfg.CustomerCacheTTL, logger, metricsRegistry)
	spend := customer.NewSpendClient(cfg.SpendServiceURL, cfg.CustomerClientTimeout, cfg.CustomerCacheTTL, logger, metricsRegistry)
	benefits := customer.NewBenefitClient(cfg.BenefitServiceURL, cfg.CustomerClientTimeout, cfg.CustomerCacheTTL, logger, metricsRegistry)
	factory := targeting.NewFactory(profiles, spend, benefits)

	dataStore := models.NewInMemoryContentDataStore()
	evaluator := targeting.NewEvaluator(cfg.EvaluatorWorkers, cfg.PredicateTimeout, logger)
	selector := selectors.NewRuleBasedSelector(dataStore, evaluator, metricsRegistry, logger)

	srvDeps := api.NewServer(logger, store, pg, analyticsSvc, geoSvc, selector, dataStore, factory, metricsRegistry, cfg)
	if err := srvDeps.Reload(); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(logger))
	r.HandleFunc("/ad", srvDeps.SelectAdHandler).Methods("POST")
	r.HandleFunc("/impression", srvDeps.ImpressionHandler).Methods("GET")
	r.HandleFunc("/click", srvDeps.ClickHandler).Methods("GET")
	r.HandleFunc("/health", srvDeps.HealthHandler).Methods("GET")
	r.HandleFunc("/reload", srvDeps.ReloadHandler).Methods("POST")

	crud := r.PathPrefix("/api").Subrouter()
	crud.HandleFunc("/content", srvDeps.ListContent).Methods("GET")
	crud.HandleFunc("/content", srvDeps.CreateContent).Methods("POST")
	crud.HandleFunc("/content/{id}", srvDeps.GetContent).Methods("GET")
	crud.HandleFunc("/content/{id}", srvDeps.UpdateContent).Methods("PUT")
	crud.HandleFunc("/content/{id}", srvDeps.DeleteContent).Methods("DELETE")
	crud.HandleFunc("/content/{id}/targeting_groups", srvDeps.DeleteContentGroups).Methods("DELETE")

	crud.HandleFunc("/targeting_groups", srvDeps.ListTargetingGroups).Methods("GET")
	crud.HandleFunc("/targeting_groups", srvDeps.CreateTargetingGroup).Methods("POST")
	crud.HandleFunc("/targeting_groups/{id}", srvDeps.GetTargetingGroup).Methods("GET")
	crud.HandleFunc("/targeting_groups/{id}", srvDeps.DeleteTargetingGroup).Methods("DELETE")
	crud.HandleFunc("/targeting_groups/{id}/ctr", srvDeps.UpdateTargetingGroupCTR).Methods("PUT")

	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port

	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "adtarget"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Ad targeting server running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srvDeps.Reload(); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	if cfg.CTRUpdateInterval > 0 {
		ticker := time.NewTicker(cfg.CTRUpdateInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					srvDeps.UpdateCTR()
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
