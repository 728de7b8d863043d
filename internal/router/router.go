package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/iliyamo/garage-parking/internal/config"
	"github.com/iliyamo/garage-parking/internal/handler"
	"github.com/iliyamo/garage-parking/internal/middleware"
	"github.com/iliyamo/garage-parking/internal/utils"
)

// Options carries everything route registration needs.  Redis may be nil,
// in which case the rate limiter and response cache pass requests through.
type Options struct {
	ServiceName string
	Health      *handler.HealthHandler
	Webhook     *handler.WebhookHandler
	Revenue     *handler.RevenueHandler
	Redis       *redis.Client
	RateLimit   config.RateLimitConfig
	Cache       config.CacheConfig
	// RevenueAuth puts /revenue behind an OPERATOR token signed with JWTSecret.
	RevenueAuth bool
	JWTSecret   string
}

// New builds the Echo instance with global middleware and all routes.
func New(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler

	e.Use(echomiddleware.Recover())
	// Tracing before the request log so log lines can carry trace ids.
	e.Use(otelecho.Middleware(opts.ServiceName))
	e.Use(middleware.RequestLog())

	RegisterRoutes(e, opts.Health)
	RegisterWebhook(e, opts.Webhook)
	RegisterRevenue(e, opts)
	return e
}

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	if h == nil {
		h = handler.NewHealthHandler(nil)
	}
	e.GET("/healthz", h.Check)
}

// RegisterWebhook maps the simulator callback.  The simulator does not
// authenticate, and the handler always answers 200.
func RegisterWebhook(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/webhook", w.Receive)
}

// RegisterRevenue maps GET and POST /revenue.  Both go through the token
// bucket; only GET responses are cached since POST carries its query in
// the body.
func RegisterRevenue(e *echo.Echo, opts Options) {
	chain := []echo.MiddlewareFunc{}
	if opts.RevenueAuth {
		chain = append(chain,
			middleware.JWTAuth(opts.JWTSecret),
			middleware.RequireRole(utils.RoleOperator),
		)
	}
	chain = append(chain, middleware.NewTokenBucket(opts.RateLimit, opts.Redis))

	g := e.Group("/revenue", chain...)
	g.GET("", opts.Revenue.Query, middleware.NewRedisCache(opts.Cache, opts.Redis))
	g.POST("", opts.Revenue.Body)
}
