package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/claimlens/claimlens/internal/asset"
	assetdomain "github.com/claimlens/claimlens/internal/asset/domain"
	"github.com/claimlens/claimlens/internal/audit"
	auditdomain "github.com/claimlens/claimlens/internal/audit/domain"
	"github.com/claimlens/claimlens/internal/clock"
	"github.com/claimlens/claimlens/internal/config"
	"github.com/claimlens/claimlens/internal/ledger"
	ledgerdomain "github.com/claimlens/claimlens/internal/ledger/domain"
	obslogger "github.com/claimlens/claimlens/internal/observability/logger"
	obsmetrics "github.com/claimlens/claimlens/internal/observability/metrics"
	obstracing "github.com/claimlens/claimlens/internal/observability/tracing"
	"github.com/claimlens/claimlens/internal/payment"
	paymentdomain "github.com/claimlens/claimlens/internal/payment/domain"
	"github.com/claimlens/claimlens/internal/pricing"
	pricingdomain "github.com/claimlens/claimlens/internal/pricing/domain"
	"github.com/claimlens/claimlens/internal/ratelimit"
	"github.com/claimlens/claimlens/internal/unlock"
	unlockdomain "github.com/claimlens/claimlens/internal/unlock/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	ledger.Module,
	pricing.Module,
	asset.Module,
	unlock.Module,
	payment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	clock         clock.Clock
	assetSvc      assetdomain.Service
	auditSvc      auditdomain.Service
	ledgerSvc     ledgerdomain.Service
	paymentSvc    paymentdomain.Service
	pricingSvc    pricingdomain.Service
	unlockSvc     unlockdomain.Service
	unlockLimiter *ratelimit.UnlockLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Clock         clock.Clock
	AssetSvc      assetdomain.Service
	AuditSvc      auditdomain.Service
	LedgerSvc     ledgerdomain.Service
	PaymentSvc    paymentdomain.Service
	PricingSvc    pricingdomain.Service
	UnlockSvc     unlockdomain.Service
	UnlockLimiter *ratelimit.UnlockLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		clock:         p.Clock,
		assetSvc:      p.AssetSvc,
		auditSvc:      p.AuditSvc,
		ledgerSvc:     p.LedgerSvc,
		paymentSvc:    p.PaymentSvc,
		pricingSvc:    p.PricingSvc,
		unlockSvc:     p.UnlockSvc,
		unlockLimiter: p.UnlockLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(s.IdentityRequired())

	api.GET("/wallet", s.GetWallet)
	api.GET("/wallet/entries", s.ListWalletEntries)

	api.GET("/assets/:id", s.GetAsset)
	api.POST("/assets/:id/unlock", s.UnlockRateLimit(), s.UnlockAsset)

	api.GET("/unlocks/:id", s.GetUnlock)
	api.GET("/unlocks/:id/journal", s.GetUnlockJournal)

	api.POST("/checkout", s.CreateCheckout)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payment", s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminRequired())

	admin.POST("/grants", s.CreateGrant)
	admin.POST("/assets", s.CreateAsset)
	admin.GET("/audit-logs", s.ListAuditLogs)
}
