package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PratikDhanave/call-intake-service/internal/auth"
	"github.com/PratikDhanave/call-intake-service/internal/cache"
	"github.com/PratikDhanave/call-intake-service/internal/config"
	"github.com/PratikDhanave/call-intake-service/internal/handlers"
	"github.com/PratikDhanave/call-intake-service/internal/logger"
	"github.com/PratikDhanave/call-intake-service/internal/metrics"
)

// Store is everything the HTTP layer reads or writes directly.
type Store interface {
	Ping(ctx context.Context) error
	handlers.RequestStore
	handlers.RequestCounter
	handlers.UnresolvedRecorder
}

// Deps are the collaborators the router wires together.
type Deps struct {
	Store    Store
	Gate     handlers.Ingester
	Cache    *cache.Cache
	Metrics  *metrics.IntakeMetrics
	Gatherer prometheus.Gatherer // nil uses the default registry
	Logger   *logger.Logger
}

// NewRouter wires public endpoints, the provider webhook and operator APIs.
// Public: /health, /ready, /metrics
// Provider: /mango/webhook (IP allowlist + signature)
// Operator: /requests, /reports (X-API-Key)
func NewRouter(cfg config.Config, d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := d.Logger
	if log == nil {
		log = logger.Default()
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := d.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	webhook := r.Group("/")
	if cfg.RateLimitPerMinute > 0 {
		webhook.Use(NewIPRateLimiter(cfg.RateLimitPerMinute, log).RateLimit())
	}
	webhook.Use(auth.WebhookGuard(cfg.Webhook, log))
	handlers.RegisterWebhookRoutes(webhook, handlers.NewWebhookHandler(d.Gate, d.Store, d.Metrics, log))

	// Operator group is keyed by X-API-Key.
	operator := r.Group("/")
	operator.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	handlers.RegisterRequestRoutes(operator, d.Store, log)
	handlers.RegisterReportRoutes(operator, d.Store, d.Cache, log)

	return r
}
