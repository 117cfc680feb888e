package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/decisionstack/decision-engine/internal/api"
	"github.com/decisionstack/decision-engine/internal/cache"
	"github.com/decisionstack/decision-engine/internal/config"
	"github.com/decisionstack/decision-engine/internal/dispatch"
	"github.com/decisionstack/decision-engine/internal/engine"
	"github.com/decisionstack/decision-engine/internal/metrics"
	"github.com/decisionstack/decision-engine/internal/queue"
	"github.com/decisionstack/decision-engine/internal/registry"
	"github.com/decisionstack/decision-engine/internal/services"
	"github.com/decisionstack/decision-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting decision-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("failed to open job registry", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	workQueue, err := newQueue(cfg.Queue)
	if err != nil {
		logger.Error("failed to open work queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer workQueue.Close()

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(ctx, cache.RedisConfig{
			Addr:        cfg.Cache.Addr,
			Username:    cfg.Cache.Username,
			Password:    cfg.Cache.Password,
			DB:          cfg.Cache.DB,
			DialTimeout: cfg.Cache.DialTimeout,
		})
		if err != nil {
			logger.Warn("redis cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	policyPack, err := engine.LoadPolicyPack(cfg.Governance.Path, logger)
	if err != nil {
		logger.Error("failed to load policy pack", slog.Any("error", err))
		os.Exit(1)
	}

	pipeline := engine.NewPipeline(logger, policyPack, nil)
	dispatcher := dispatch.NewDispatcher(logger, store, workQueue)
	pool := dispatch.NewPool(logger, store, workQueue, pipeline, dispatch.PoolConfig{
		Workers:           cfg.Workers.Count,
		HeartbeatInterval: cfg.Workers.HeartbeatInterval,
		ReapInterval:      cfg.Workers.ReapInterval,
	}, nil)

	decisionService := services.NewDecisionService(logger, dispatcher, store, cacheProvider, cfg.Cache.ListTTL)

	server, err := api.NewServer(cfg.Server, api.NewRouter(decisionService, logger))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		pool.Run(ctx)
	}()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	workers.Wait()
	logger.Info("decision-engine stopped")
}

func newStore(ctx context.Context, cfg config.StoreConfig) (registry.Store, error) {
	switch cfg.Kind {
	case "postgres":
		return registry.NewPostgresStore(ctx, cfg.DSN, cfg.LeaseTTL)
	default:
		return registry.NewMemoryStore(cfg.LeaseTTL, nil), nil
	}
}

func newQueue(cfg config.QueueConfig) (queue.Queue, error) {
	switch cfg.Kind {
	case "redis":
		return queue.NewRedisQueue(queue.RedisConfig{
			Addr:        cfg.Addr,
			Username:    cfg.Username,
			Password:    cfg.Password,
			DB:          cfg.DB,
			Key:         cfg.Key,
			DialTimeout: cfg.DialTimeout,
			PopTimeout:  cfg.PopTimeout,
		})
	default:
		return queue.NewMemoryQueue(cfg.Buffer), nil
	}
}
