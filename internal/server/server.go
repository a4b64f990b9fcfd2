package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	checkoutdomain "github.com/smallbiznis/pledgesync/internal/checkout/domain"
	"github.com/smallbiznis/pledgesync/internal/config"
	"github.com/smallbiznis/pledgesync/internal/observability"
	obsmiddleware "github.com/smallbiznis/pledgesync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pledgesync/internal/observability/metrics"
	obstracing "github.com/smallbiznis/pledgesync/internal/observability/tracing"
	"github.com/smallbiznis/pledgesync/internal/payment/webhook"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	"github.com/smallbiznis/pledgesync/internal/ratelimit"
	"github.com/smallbiznis/pledgesync/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	webhookSvc     *webhook.Service
	checkoutSvc    checkoutdomain.Service
	providerSvc    ppdomain.Service
	scheduler      *scheduler.Scheduler
	webhookLimiter *ratelimit.WebhookLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	WebhookSvc     *webhook.Service
	CheckoutSvc    checkoutdomain.Service
	ProviderSvc    ppdomain.Service
	Scheduler      *scheduler.Scheduler      `optional:"true"`
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http"),
		webhookSvc:     p.WebhookSvc,
		checkoutSvc:    p.CheckoutSvc,
		providerSvc:    p.ProviderSvc,
		scheduler:      p.Scheduler,
		webhookLimiter: p.WebhookLimiter,
		obsMetrics:     p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// RegisterRoutes mounts the webhook receiver and, when an admin token is
// configured, the checkout and internal APIs.
func (s *Server) RegisterRoutes() {
	s.RegisterWebhookRoutes()

	if strings.TrimSpace(s.cfg.AdminToken) == "" {
		s.log.Warn("ADMIN_API_TOKEN is empty, checkout and internal APIs are disabled")
		return
	}
	s.RegisterCheckoutRoutes()
	s.RegisterInternalRoutes()
}

func (s *Server) RegisterWebhookRoutes() {
	hooks := s.engine.Group("/webhooks")
	hooks.Use(s.WebhookRateLimit())
	hooks.POST("/gocardless", s.HandleGoCardlessWebhook)
	hooks.POST("/gocardless/:processor_id", s.HandleGoCardlessWebhook)
}

func (s *Server) RegisterCheckoutRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.AdminRequired())
	{
		api.POST("/checkout", s.StartCheckout)
		api.POST("/checkout/complete", s.CompleteCheckout)
		api.POST("/recurring/:id/cancel", s.CancelRecurring)
		api.PATCH("/recurring/:id/amount", s.UpdateRecurringAmount)
	}
}

func (s *Server) RegisterInternalRoutes() {
	internal := s.engine.Group("/internal")
	internal.Use(s.AdminRequired())
	{
		internal.POST("/jobs/abandoned-sweep", s.RunAbandonedSweep)
		internal.POST("/jobs/import", s.RunImport)

		internal.GET("/processors", s.ListProcessors)
		internal.POST("/processors", s.CreateProcessor)
		internal.POST("/processors/:id/activate", s.ActivateProcessor)
		internal.POST("/processors/:id/deactivate", s.DeactivateProcessor)
	}
}
