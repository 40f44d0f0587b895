package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/service"
	"github.com/jmerrifield20/ChainOfCustody/internal/health"
	"github.com/jmerrifield20/ChainOfCustody/internal/identity"
	"github.com/jmerrifield20/ChainOfCustody/internal/webhooks"
	"go.uber.org/zap"
)

// RouterConfig holds the HTTP-level settings of the API server.
type RouterConfig struct {
	CORSOrigins  []string
	RateLimitRPS int                         // 0 disables rate limiting
	Tokens       *identity.CallerTokenIssuer // nil = X-Caller-Identity header mode
	Health       HealthReporter              // nil = /healthz always reports ok
	Webhooks     *webhooks.Service           // nil = webhook routes not mounted
}

// HealthReporter supplies the /healthz body. *health.Checker satisfies this
// interface.
type HealthReporter interface {
	Status() health.Status
}

// NewRouter builds the complete API router.
func NewRouter(reg *service.Registry, ev *service.EvidenceService, q *service.QueryService, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", identity.CallerHeader, RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
			AllowCredentials: !containsWildcard(cfg.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitRPS*2))
	}
	router.Use(PrometheusMiddleware())
	router.Use(RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		if cfg.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		st := cfg.Health.Status()
		code := http.StatusOK
		if !st.Healthy() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, st)
	})
	router.GET("/metrics", MetricsHandler())

	v1 := router.Group("/api/v1")
	NewUserHandler(reg, cfg.Tokens, logger).Register(v1)
	NewEvidenceHandler(ev, q, cfg.Tokens, logger).Register(v1)
	NewLedgerHandler(q, logger).Register(v1)
	if cfg.Webhooks != nil {
		NewWebhookHandler(cfg.Webhooks, cfg.Tokens, logger).Register(v1)
	}

	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
