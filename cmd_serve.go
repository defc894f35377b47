package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"auction-agent/config"
	httpLayer "auction-agent/http"
	"auction-agent/metrics"
	"auction-agent/repository"
	"auction-agent/service"
	"auction-agent/stream"
)

const redisPingTimeout = 3 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the calculator and progress HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(loaded)
		},
	}
}

func newCache(cfg config.RedisConfig) (repository.CacheRepository, func()) {
	if !cfg.Enabled {
		return repository.NewMemoryCache(), func() {}
	}

	cache := repository.NewRedisCache(cfg.Addr, cfg.DB, cfg.Prefix, cfg.TTL)
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable; falling back to in-memory cache")
		cache.Close()
		return repository.NewMemoryCache(), func() {}
	}
	log.Info().Str("addr", cfg.Addr).Msg("using redis cache")
	return cache, func() { cache.Close() }
}

func newHub(ctx context.Context, cfg config.BackendConfig, cache repository.CacheRepository, m *metrics.Registry) *stream.Hub {
	sub := stream.NewSubscriber(cfg.WSBaseURL, cfg.HandshakeTimeout, cfg.ReadTimeout)
	poller := stream.NewStatusPoller(stream.PollerConfig{
		BaseURL:   cfg.APIBaseURL,
		Interval:  cfg.PollInterval,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.PollRateLimit,
		Burst:     1,
	}, m)
	return stream.NewHub(ctx, stream.DefaultFactory(sub, poller, m), cache)
}

func serve(cfg config.Config) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	m := metrics.NewRegistry()

	cache, closeCache := newCache(cfg.Redis)
	defer closeCache()

	scenarioRepo := repository.NewScenarioRepositoryMemory(cfg.Calculator.HistoryLimit)
	calculatorService := service.NewCalculatorService(scenarioRepo, cache, m, cfg.Calculator.LegalFee)

	hub := newHub(ctx, cfg.Backend, cache, m)
	defer hub.Close()

	rateLimiter := httpLayer.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	router := httpLayer.NewRouter(httpLayer.RouterConfig{
		Calculator: httpLayer.NewCalculatorHandler(calculatorService),
		Progress:   httpLayer.NewProgressHandler(hub),
		Metrics:    m,
		Limiter:    rateLimiter,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-quit:
		log.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	log.Info().Msg("server exited")
	return nil
}
