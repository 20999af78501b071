package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/scambio/internal/channel"
	"github.com/smallbiznis/scambio/internal/cloudmetrics"
	"github.com/smallbiznis/scambio/internal/config"
	"github.com/smallbiznis/scambio/internal/document"
	"github.com/smallbiznis/scambio/internal/events"
	"github.com/smallbiznis/scambio/internal/notification"
	"github.com/smallbiznis/scambio/internal/observability"
	obsmiddleware "github.com/smallbiznis/scambio/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/scambio/internal/observability/metrics"
	obstracing "github.com/smallbiznis/scambio/internal/observability/tracing"
	"github.com/smallbiznis/scambio/internal/organization"
	organizationdomain "github.com/smallbiznis/scambio/internal/organization/domain"
	"github.com/smallbiznis/scambio/internal/providers/pdf"
	"github.com/smallbiznis/scambio/internal/ratelimit"
	"github.com/smallbiznis/scambio/internal/reference"
	referencedomain "github.com/smallbiznis/scambio/internal/reference/domain"
	"github.com/smallbiznis/scambio/internal/signature"
	"github.com/smallbiznis/scambio/internal/transmission"
	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	cloudmetrics.Module,
	fx.Provide(registerGin),
	events.Module,
	document.Module,
	signature.Module,
	channel.Module,
	notification.Module,
	organization.Module,
	transmission.Module,
	reference.Module,
	ratelimit.Module,
	pdf.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	organizationSvc organizationdomain.Service
	transmissionSvc transmissiondomain.Service
	refrepo         referencedomain.Repository
	pdfProvider     pdf.Provider
	obsMetrics      *obsmetrics.Metrics
	notifLimiter    *ratelimit.NotificationLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	OrganizationSvc organizationdomain.Service
	TransmissionSvc transmissiondomain.Service
	Refrepo         referencedomain.Repository
	PDFProvider     pdf.Provider
	ObsMetrics      *obsmetrics.Metrics            `optional:"true"`
	NotifLimiter    *ratelimit.NotificationLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		organizationSvc: p.OrganizationSvc,
		transmissionSvc: p.TransmissionSvc,
		refrepo:         p.Refrepo,
		pdfProvider:     p.PDFProvider,
		obsMetrics:      p.ObsMetrics,
		notifLimiter:    p.NotifLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/reference/countries", s.ListCountries)
	v1.GET("/reference/document-types", s.ListDocumentTypes)
	v1.GET("/reference/tax-regimes", s.ListTaxRegimes)
	v1.GET("/reference/vat-natures", s.ListVATNatures)

	// -------- Organizations --------
	v1.POST("/organizations", s.CreateOrganization)
	v1.GET("/organizations", s.ListOrganizations)
	v1.GET("/organizations/:id", s.GetOrganizationByID)

	// -------- Invoice submission --------
	v1.POST("/invoices/submit", s.OrgContext(), s.SubmitInvoice)

	// -------- Transmissions --------
	v1.GET("/transmissions", s.OrgContext(), s.ListTransmissions)
	v1.GET("/transmissions/:id", s.OrgContext(), s.GetTransmissionByID)
	v1.POST("/transmissions/:id/retry", s.OrgContext(), s.RetryTransmission)
	v1.GET("/transmissions/:id/courtesy.pdf", s.OrgContext(), s.GetCourtesyPDF)
}

func (s *Server) registerWebhookRoutes() {
	v1 := s.engine.Group("/v1")

	// SdI pushes outcome files here. The limiter throttles per
	// transmitter and claims each file so replicas do not race.
	v1.POST("/sdi/notifications", s.NotificationRateLimit(), s.IngestSDINotification)
}
