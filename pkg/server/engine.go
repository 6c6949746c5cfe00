package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EngineConfig configures NewEngine.
type EngineConfig struct {
	// CORSOrigins are allowed cross-origin callers. Empty allows all, which
	// suits the public discovery endpoints.
	CORSOrigins []string

	// RateLimitRPS enables per-IP rate limiting when positive.
	RateLimitRPS float64

	// MaxBodyBytes bounds request bodies. Zero means 1 MB.
	MaxBodyBytes int64

	// Metrics mounts GET /metrics.
	Metrics bool

	Logger *zap.Logger
}

// NewEngine returns a gin engine carrying the standard middleware stack and
// GET /healthz, with rt registered on it.
// ctx bounds background work started by the middleware.
func NewEngine(ctx context.Context, rt *Router, cfg EngineConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 || containsWildcard(cfg.CORSOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	engine.Use(cors.New(corsConfig))

	engine.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		c.Next()
	})

	if cfg.RateLimitRPS > 0 {
		engine.Use(RateLimiter(ctx, cfg.RateLimitRPS, int(cfg.RateLimitRPS*2)+1))
	}
	engine.Use(PrometheusMiddleware())
	engine.Use(requestLogger(logger))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics {
		engine.GET("/metrics", MetricsHandler())
	}
	rt.Register(engine)
	return engine
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
