// Command server runs the workflow execution core's Control API: it
// wires storage, the observability fan-out, the node executor and its
// handler set, the transaction/compensation/rollback/replay machinery,
// and the engine's lease-driven run loop behind a gin HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/wfcore/engine/internal/compensation"
	"github.com/wfcore/engine/internal/config"
	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/engine"
	"github.com/wfcore/engine/internal/executor"
	"github.com/wfcore/engine/internal/executor/handlers"
	"github.com/wfcore/engine/internal/infrastructure/api/rest"
	"github.com/wfcore/engine/internal/infrastructure/storage"
	"github.com/wfcore/engine/internal/logger"
	"github.com/wfcore/engine/internal/observability"
	"github.com/wfcore/engine/internal/replay"
	"github.com/wfcore/engine/internal/rollback"
	"github.com/wfcore/engine/internal/ruleadapter"
	"github.com/wfcore/engine/internal/servicecatalog"
	"github.com/wfcore/engine/internal/tracing"
	"github.com/wfcore/engine/internal/txn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(
		logger.WithLevel(cfg.Logging.Level),
		logger.WithFormat(cfg.Logging.Format),
	)
	appLogger.Info("starting wfcore engine", "port", cfg.Server.Port)

	db, err := storage.NewDB(&storage.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.Database.MaxConnLifetime,
		ConnMaxIdleTime: cfg.Database.MaxIdleTime,
		Debug:           cfg.Database.Debug,
	})
	if err != nil {
		appLogger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer storage.Close(db)
	appLogger.Info("database connected")

	var redisClient *redis.Client
	if cfg.Observer.EnableRedis {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			appLogger.Error("redis url invalid, continuing without redis observer", "error", err)
		} else {
			opts.Password = cfg.Redis.Password
			opts.DB = cfg.Redis.DB
			opts.PoolSize = cfg.Redis.PoolSize
			redisClient = redis.NewClient(opts)
			if err := redisClient.Ping(context.Background()).Err(); err != nil {
				appLogger.Error("redis ping failed, continuing without redis observer", "error", err)
				redisClient = nil
			} else {
				appLogger.Info("redis connected")
			}
		}
	}

	var metrics *observability.Metrics
	if cfg.Telemetry.Enabled {
		exporter, err := otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(cfg.Telemetry.OTLPEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			appLogger.Error("otlp metric exporter setup failed, continuing without metrics", "error", err)
		} else {
			provider := sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
					sdkmetric.WithInterval(cfg.Telemetry.ExportInterval))),
			)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					appLogger.Error("meter provider shutdown failed", "error", err)
				}
			}()
			meter := provider.Meter(cfg.Telemetry.ServiceName)
			metrics, err = observability.NewMetrics(meter)
			if err != nil {
				appLogger.Error("metric instrument registration failed, continuing without metrics", "error", err)
				metrics = nil
			}
			appLogger.Info("otlp metrics configured", "endpoint", cfg.Telemetry.OTLPEndpoint)
		}
	}

	traceProvider, err := tracing.NewProvider(context.Background(), tracing.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		appLogger.Error("otlp trace provider setup failed, continuing without tracing", "error", err)
		traceProvider = nil
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("trace provider shutdown failed", "error", err)
		}
	}()
	tracer := traceProvider.Tracer()

	// Domain-stack services a SERVICE_TASK / BUSINESS_RULE_TASK node can
	// dispatch into. Registration here is a placeholder seam: operators
	// wire real callables and rule sources for their deployment.
	catalog := servicecatalog.New()
	rules := ruleadapter.New(func(ruleFile, ruleflowGroup string) (string, error) {
		return "", fmt.Errorf("no rule source configured for %s/%s", ruleFile, ruleflowGroup)
	})

	var hub *observability.WebSocketHub
	obsManager := observability.NewManager(
		observability.WithLogger(appLogger),
		observability.WithBufferSize(cfg.Observer.BufferSize),
	)
	if cfg.Observer.EnableLogger {
		if err := obsManager.Register(observability.NewLoggerObserver(
			observability.WithLoggerInstance(appLogger),
		)); err != nil {
			appLogger.Error("logger observer registration failed", "error", err)
		}
	}
	if cfg.Observer.EnableWebSocket {
		hub = observability.NewWebSocketHub(appLogger)
		if err := obsManager.Register(observability.NewWebSocketObserver(hub)); err != nil {
			appLogger.Error("websocket observer registration failed", "error", err)
		}
	}
	if cfg.Observer.EnableRedis && redisClient != nil {
		if err := obsManager.Register(observability.NewRedisObserver(redisClient)); err != nil {
			appLogger.Error("redis observer registration failed", "error", err)
		}
	}
	appLogger.Info("observability configured", "observers", obsManager.Count())

	definitions := storage.NewDefinitionRepository(db)
	instances := storage.NewInstanceRepository(db)
	rawEvents := storage.NewEventRepository(db)
	events := observability.NewObservingEventStore(rawEvents, obsManager)

	handlerSet := []executor.Handler{
		handlers.NewServiceTaskHandler(catalog, metrics),
		handlers.NewBusinessRuleTaskHandler(rules),
		handlers.NewUserTaskHandler(instances),
		handlers.NewNoopHandler(
			domain.NodeStartEvent,
			domain.NodeEndEvent,
			domain.NodeIntermediateEvent,
			domain.NodeTask,
			domain.NodeScriptTask,
			domain.NodeManualTask,
			domain.NodeSubprocess,
			domain.NodeCallActivity,
			domain.NodeExclusiveGateway,
			domain.NodeParallelGateway,
			domain.NodeInclusiveGateway,
			domain.NodeEventBasedGateway,
		),
	}
	compensations := compensation.New(events, appLogger)
	rollbackCoordinator := rollback.New(compensations, events, instances)
	replayEngine := replay.New(events)
	txnManager := txn.New(db, events, compensations, cfg.Engine.TransactionTimeout).WithTracer(tracer)

	exec := executor.New(instances, events, handlerSet, appLogger,
		executor.WithMetrics(metrics),
		executor.WithTracer(tracer),
		executor.WithTxnManager(txnManager),
	)

	eng := engine.New(instances, exec, replayEngine, appLogger,
		engine.WithLeaseTTL(cfg.Engine.LeaseTTL),
		engine.WithOwner(hostOwnerID()),
		engine.WithMetrics(metrics),
		engine.WithTracer(tracer),
	)
	if err := eng.StartLeaseReaper(cfg.Engine.LeaseReaperPeriod); err != nil {
		appLogger.Error("lease reaper failed to start", "error", err)
	} else {
		appLogger.Info("lease reaper started", "schedule", cfg.Engine.LeaseReaperPeriod)
	}
	defer eng.StopLeaseReaper()

	h := rest.NewHandlers(definitions, instances, events, eng, rollbackCoordinator, replayEngine, appLogger)
	router := rest.NewRouter(h, db, appLogger, cfg.Server.CORS)

	if hub != nil {
		router.GET("/ws/executions/:executionId", rest.HandleWebSocket(hub, appLogger))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("http server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		appLogger.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		appLogger.Info("server shutdown initiated", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				appLogger.Error("server close failed", "error", err)
			}
		}
		appLogger.Info("server stopped")
	}
}

func hostOwnerID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "engine"
}
