// Package server exposes the HTTP surface: customer-facing billing reads,
// payment-proof submission and the administrative trigger endpoints that
// invoke the same idempotent operations the scheduler runs.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kolekta/internal/audit"
	auditdomain "github.com/smallbiznis/kolekta/internal/audit/domain"
	"github.com/smallbiznis/kolekta/internal/config"
	"github.com/smallbiznis/kolekta/internal/invoice"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	"github.com/smallbiznis/kolekta/internal/latefee"
	latefeedomain "github.com/smallbiznis/kolekta/internal/latefee/domain"
	"github.com/smallbiznis/kolekta/internal/ledger"
	ledgerdomain "github.com/smallbiznis/kolekta/internal/ledger/domain"
	obslogger "github.com/smallbiznis/kolekta/internal/observability/logger"
	"github.com/smallbiznis/kolekta/internal/plan"
	plandomain "github.com/smallbiznis/kolekta/internal/plan/domain"
	"github.com/smallbiznis/kolekta/internal/providers/notify"
	"github.com/smallbiznis/kolekta/internal/providers/ocr"
	"github.com/smallbiznis/kolekta/internal/scheduler"
	"github.com/smallbiznis/kolekta/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/kolekta/internal/subscription/domain"
	"github.com/smallbiznis/kolekta/internal/verification"
	verificationdomain "github.com/smallbiznis/kolekta/internal/verification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	audit.Module,
	ledger.Module,
	plan.Module,
	invoice.Module,
	latefee.Module,
	subscription.Module,
	verification.Module,
	notify.Module,
	ocr.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	ledgerSvc       ledgerdomain.Service
	planRepo        plandomain.Repository
	invoiceSvc      invoicedomain.Service
	lateFeeSvc      latefeedomain.Service
	subscriptionSvc subscriptiondomain.Service
	verificationSvc verificationdomain.Service
	auditSvc        auditdomain.Service
	scheduler       *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	LedgerSvc       ledgerdomain.Service
	PlanRepo        plandomain.Repository
	InvoiceSvc      invoicedomain.Service
	LateFeeSvc      latefeedomain.Service
	SubscriptionSvc subscriptiondomain.Service
	VerificationSvc verificationdomain.Service
	AuditSvc        auditdomain.Service
	Scheduler       *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("server"),
		genID:           p.GenID,
		ledgerSvc:       p.LedgerSvc,
		planRepo:        p.PlanRepo,
		invoiceSvc:      p.InvoiceSvc,
		lateFeeSvc:      p.LateFeeSvc,
		subscriptionSvc: p.SubscriptionSvc,
		verificationSvc: p.VerificationSvc,
		auditSvc:        p.AuditSvc,
		scheduler:       p.Scheduler,
	}
	s.RegisterAPIRoutes()
	s.RegisterAdminRoutes()
	return s
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/v1")

	api.GET("/customers/:id/balance", s.getCustomerBalance)

	api.GET("/plans/:id", s.getPlan)

	api.GET("/subscriptions/:id", s.getSubscription)
	api.POST("/subscriptions/:id/confirm-payment", s.confirmSubscriptionPayment)
	api.POST("/subscriptions/:id/reactivate", s.reactivateSubscription)

	api.GET("/invoices/:id", s.getInvoice)
	api.GET("/invoices/:id/late-fee-eligibility", s.getLateFeeEligibility)
	api.POST("/invoices/:id/payments", s.applyInvoicePayment)

	api.POST("/payment-proofs", s.submitPaymentProof)
	api.GET("/payment-proofs/:id", s.getPaymentProof)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/scheduler/run", s.runSchedulerNow)
	admin.POST("/latefees/run", s.runLateFeesNow)
	admin.POST("/invoices/generate", s.generateInvoicesNow)
	admin.POST("/verifications/:id/verify", s.verifyPaymentProofNow)
	admin.POST("/verifications/:id/review", s.reviewPaymentProof)
}
