package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pulse/internal/api"
	"pulse/internal/batch"
	"pulse/internal/client"
	"pulse/internal/config"
	"pulse/internal/perf"
	"pulse/internal/websocket"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)

	log.Info().
		Int("port", cfg.Server.Port).
		Str("version", version).
		Str("upstream", cfg.Upstream.BaseURL).
		Msg("Starting telemetry gateway")

	// Performance collector; samples arrive over HTTP, memory is read
	// from the Go runtime
	collector := perf.NewCollector(perf.NoopProvider{},
		perf.WithThresholds(perf.Thresholds{
			APIResponseTime:  cfg.Perf.APIResponseTimeMS,
			MemoryUsage:      cfg.Perf.MemoryUsageBytes,
			RenderTime:       cfg.Perf.RenderTimeMS,
			InteractionDelay: cfg.Perf.InteractionDelayMS,
			BundleSize:       cfg.Perf.BundleSizeBytes,
		}),
		perf.WithMemoryReader(perf.RuntimeMemoryReader{}),
		perf.WithMemoryInterval(cfg.Perf.MemoryInterval),
		perf.WithLogger(log.With().Str("component", "collector").Logger()),
	)
	collector.Start()

	// Upstream client; every outbound call feeds the collector
	upstream := client.NewClient(cfg.Upstream.BaseURL,
		client.WithAPIKey(cfg.Upstream.APIKey),
		client.WithTimeout(cfg.Upstream.Timeout),
		client.WithMaxRetries(cfg.Upstream.MaxRetries),
		client.WithRateLimit(cfg.Upstream.RateLimit, cfg.Upstream.RateBurst),
		client.WithRecorder(func(endpoint, method string, start, end time.Time, status int, size int64, retried bool) {
			collector.RecordAPICall(endpoint, method, start, end, perf.APICallOptions{
				Status:       status,
				TransferSize: size,
				Retried:      retried,
			})
		}),
	)

	// Batcher coalesces lookups to the upstream batch endpoints
	batchOpts := []batch.Option{
		batch.WithDefaultMaxSize(cfg.Batch.MaxSize),
		batch.WithDefaultTimeout(cfg.Batch.Timeout),
		batch.WithLogger(log.With().Str("component", "batcher").Logger()),
	}
	if len(cfg.Batch.Rules) > 0 {
		rules := make([]batch.Rule, len(cfg.Batch.Rules))
		for i, r := range cfg.Batch.Rules {
			rules[i] = batch.Rule{Pattern: r.Pattern, BatchEndpoint: r.Endpoint}
		}
		batchOpts = append(batchOpts, batch.WithRules(rules))
	}
	batcher := batch.NewBatcher(upstream, batchOpts...)

	// Alert hub streams bottleneck alerts to WebSocket subscribers
	hub := websocket.NewHub(
		websocket.WithLogger(log.With().Str("component", "hub").Logger()),
	)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	unsubscribe := collector.OnAlert(func(alert perf.Alert) {
		hub.Publish(alert)
	})
	defer unsubscribe()

	server, err := api.NewServer(api.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Version:         version,
		APIKey:          cfg.Security.RequiredAPIKey,
		AllowedOrigins:  cfg.Security.AllowedOrigins,
		RateLimit:       cfg.Security.RateLimit,
		RateLimitWindow: cfg.Security.RateLimitWindow,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
	}, api.Dependencies{
		Collector:  collector,
		Dispatcher: batcher,
		Streamer:   hub,
		Logger:     log.With().Str("component", "server").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown server gracefully")
		}

		// Flush pending batches before tearing the pipeline down
		batcher.FlushAll()
		batcher.Destroy()
		hub.Close()
		collector.Stop()

		log.Info().Msg("Shutdown complete")
	}
}

// setupLogger configures the global zerolog logger
func setupLogger(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
