package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/novabot503/novacat/internal/config"
	obsmiddleware "github.com/novabot503/novacat/internal/observability/logger"
	obsmetrics "github.com/novabot503/novacat/internal/observability/metrics"
	obstracing "github.com/novabot503/novacat/internal/observability/tracing"
	orderdomain "github.com/novabot503/novacat/internal/order/domain"
	"github.com/novabot503/novacat/internal/ratelimit"
	uploaddomain "github.com/novabot503/novacat/internal/upload/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const multipartMemory = 8 << 20

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !cfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = multipartMemory
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           cfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		Quiet:           []string{"/health", "/metrics"},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
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
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	OrderSvc   orderdomain.Service
	Catalog    orderdomain.TierCatalog
	UploadSvc  uploaddomain.Service `optional:"true"`
	Limiter    *ratelimit.Limiter   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics  `optional:"true"`
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	orderSvc   orderdomain.Service
	catalog    orderdomain.TierCatalog
	uploadSvc  uploaddomain.Service
	limiter    *ratelimit.Limiter
	obsMetrics *obsmetrics.Metrics
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		orderSvc:   p.OrderSvc,
		catalog:    p.Catalog,
		uploadSvc:  p.UploadSvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerLegacyRoutes()
	svc.registerUploadRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/tiers", s.ListTiers)

	orders := api.Group("/orders")
	orders.POST("", s.rateLimited(ratelimit.ScopeOrders), s.PlaceOrder)
	orders.GET("/:id", s.GetOrder)
	orders.GET("/:id/status", s.CheckOrderStatus)
	orders.POST("/:id/provision", s.ProvisionOrder)

	api.POST("/webhook/pakasir", s.HandlePakasirWebhook)
}

// registerLegacyRoutes keeps the endpoints older storefront builds call.
func (s *Server) registerLegacyRoutes() {
	api := s.engine.Group("/api")
	api.POST("/create-order", s.rateLimited(ratelimit.ScopeOrders), s.LegacyCreateOrder)
	api.GET("/check-payment/:id", s.LegacyCheckPayment)
	api.POST("/create-panel", s.LegacyCreatePanel)
}

func (s *Server) registerUploadRoutes() {
	if s.uploadSvc == nil {
		return
	}
	s.engine.POST("/api/uploads", s.rateLimited(ratelimit.ScopeUploads), BodyLimit(s.uploadBodyLimit()), s.UploadFiles)
	s.engine.GET("/files/*path", s.ServeFile)
}

func (s *Server) rateLimited(scope ratelimit.Scope) gin.HandlerFunc {
	if s.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return s.limiter.Middleware(scope)
}
