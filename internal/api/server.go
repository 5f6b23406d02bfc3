package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pulse/internal/handlers"
	"pulse/internal/models"
)

// Config holds the HTTP server configuration
type Config struct {
	Host            string
	Port            int
	Version         string
	APIKey          string
	AllowedOrigins  []string
	RateLimit       int
	RateLimitWindow time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// Dependencies are the components the server exposes over HTTP
type Dependencies struct {
	Collector  handlers.Collector
	Dispatcher handlers.Dispatcher
	Streamer   handlers.AlertStreamer
	Logger     zerolog.Logger
}

// Server is the telemetry gateway HTTP server
type Server struct {
	config     Config
	deps       Dependencies
	router     *gin.Engine
	httpServer *http.Server
	logger     zerolog.Logger
	startTime  time.Time
}

// NewServer creates a new gateway server
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if deps.Collector == nil {
		return nil, fmt.Errorf("collector is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Streamer == nil {
		return nil, fmt.Errorf("streamer is required")
	}

	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:    config,
		deps:      deps,
		router:    gin.New(),
		logger:    deps.Logger,
		startTime: time.Now(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

func validateConfig(config *Config) error {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", config.Port)
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 300
	}
	if config.RateLimitWindow == 0 {
		config.RateLimitWindow = time.Minute
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 15 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 15 * time.Second
	}
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware(s.config.AllowedOrigins))
	s.router.Use(ValidationMiddleware())
	if s.config.RateLimit > 0 {
		s.router.Use(RateLimitMiddleware(s.config.RateLimit, s.config.RateLimitWindow))
	}
	s.router.Use(TelemetryMiddleware(s.deps.Collector))
}

func (s *Server) setupRoutes() {
	health := handlers.NewHealthHandlers(s.config.Version, s.startTime)
	telemetry := handlers.NewTelemetryHandlers(s.deps.Collector)
	batches := handlers.NewBatchHandlers(s.deps.Dispatcher)
	alerts := handlers.NewAlertHandlers(s.deps.Streamer, s.logger)

	s.router.GET("/health", health.HealthCheck())
	s.router.GET("/ready", health.Readiness(s))

	v1 := s.router.Group("/v1")
	v1.Use(AuthMiddleware(s.config.APIKey))
	{
		v1.POST("/batch", batches.Execute())
		v1.GET("/batch/stats", batches.Stats())
		v1.POST("/batch/flush", batches.Flush())

		v1.POST("/samples", telemetry.IngestSamples())
		v1.GET("/report", telemetry.Report())
		v1.GET("/report/export", telemetry.ExportReport())
		v1.GET("/thresholds", telemetry.GetThresholds())
		v1.PUT("/thresholds", telemetry.UpdateThresholds())
		v1.DELETE("/metrics", telemetry.ClearMetrics())

		v1.GET("/alerts/ws", alerts.Stream())
	}
}

// Check implements the readiness contract: the gateway is ready when the
// collector is running
func (s *Server) Check() (map[string]models.HealthCheck, bool, error) {
	checks := make(map[string]models.HealthCheck)
	ready := true

	if s.deps.Collector.Active() {
		checks["collector"] = models.HealthCheck{Status: "healthy"}
	} else {
		checks["collector"] = models.HealthCheck{Status: "unhealthy", Message: "collector is stopped"}
		ready = false
	}

	stats := s.deps.Dispatcher.GetStats()
	checks["batcher"] = models.HealthCheck{
		Status:  "healthy",
		Message: fmt.Sprintf("%d pending in %d batches", stats.TotalPending, stats.ActiveBatches),
	}

	return checks, ready, nil
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving requests; it blocks until the server stops
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting gateway server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down gateway server")
	return s.httpServer.Shutdown(ctx)
}
