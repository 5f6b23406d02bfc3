package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pulse/internal/models"
	"pulse/internal/perf"
)

// RequestIDMiddleware assigns every request an id, reusing the client's
// X-Request-ID when present
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// LoggerMiddleware logs every request with its latency and status
func LoggerMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}

		event.
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}

// RecoveryMiddleware converts panics into 500 responses
func RecoveryMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Str("request_id", c.GetString("request_id")).
					Str("path", c.Request.URL.Path).
					Interface("panic", r).
					Msg("handler panicked")

				c.AbortWithStatusJSON(http.StatusInternalServerError, models.NewErrorResponse(
					"INTERNAL_ERROR",
					"Internal server error",
					c.GetString("request_id"),
				))
			}
		}()
		c.Next()
	}
}

// AuthMiddleware validates the API key from the X-API-Key header or,
// for WebSocket clients that cannot set headers, the api_key query
// parameter. An empty configured key disables authentication.
func AuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("X-API-Key")
		if provided == "" {
			provided = c.Query("api_key")
		}

		if provided != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewErrorResponse(
				"UNAUTHORIZED",
				"Invalid or missing API key",
				c.GetString("request_id"),
			))
			return
		}

		c.Next()
	}
}

// CORSMiddleware handles cross-origin requests from browser clients
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Request-ID")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ValidationMiddleware rejects write requests without a JSON content type
func ValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			contentType := c.GetHeader("Content-Type")
			if c.Request.ContentLength > 0 && !strings.HasPrefix(contentType, "application/json") {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, models.NewErrorResponse(
					"UNSUPPORTED_MEDIA_TYPE",
					"Content-Type must be application/json",
					c.GetString("request_id"),
				))
				return
			}
		}
		c.Next()
	}
}

// clientBucket tracks request timestamps for one client IP
type clientBucket struct {
	requests []time.Time
}

// RateLimitMiddleware limits each client IP to maxRequests per window
func RateLimitMiddleware(maxRequests int, window time.Duration) gin.HandlerFunc {
	var mu sync.Mutex
	buckets := make(map[string]*clientBucket)

	// Drop idle buckets so the map does not grow without bound
	go func() {
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			cutoff := time.Now().Add(-window)
			for ip, bucket := range buckets {
				if len(bucket.requests) == 0 || bucket.requests[len(bucket.requests)-1].Before(cutoff) {
					delete(buckets, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()
		cutoff := now.Add(-window)

		mu.Lock()
		bucket, ok := buckets[ip]
		if !ok {
			bucket = &clientBucket{}
			buckets[ip] = bucket
		}

		kept := bucket.requests[:0]
		for _, ts := range bucket.requests {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		bucket.requests = kept

		if len(bucket.requests) >= maxRequests {
			mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.NewErrorResponse(
				"RATE_LIMITED",
				"Too many requests",
				c.GetString("request_id"),
			))
			return
		}

		bucket.requests = append(bucket.requests, now)
		mu.Unlock()

		c.Next()
	}
}

// RequestRecorder receives one timing record per handled request
type RequestRecorder interface {
	RecordAPICall(endpoint, method string, start, end time.Time, opts perf.APICallOptions) perf.APISample
}

// TelemetryMiddleware feeds every handled request into the performance
// collector, so the gateway monitors itself with the same pipeline it
// serves
func TelemetryMiddleware(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		recorder.RecordAPICall(path, c.Request.Method, start, time.Now(), perf.APICallOptions{
			Status:       c.Writer.Status(),
			TransferSize: int64(c.Writer.Size()),
		})
	}
}
