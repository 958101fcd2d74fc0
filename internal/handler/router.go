package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/prohmpiriya/eventgate/internal/domain"
	"github.com/prohmpiriya/eventgate/pkg/middleware"
)

// RouterConfig wires handlers and middleware into the HTTP surface
type RouterConfig struct {
	ServiceName string
	JWT         *middleware.JWTConfig
	CORS        middleware.CORSConfig
	// Audit is optional; operator routes are audited when set
	Audit     *middleware.AuditLogger
	RateLimit gin.HandlerFunc

	Health         *HealthHandler
	Validation     *ValidationHandler
	Reconciliation *ReconciliationHandler
	Ticket         *TicketHandler
}

// NewRouter builds the gin engine
func NewRouter(cfg *RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(cfg.CORS))

	r.GET("/health", cfg.Health.Health)
	r.GET("/ready", cfg.Health.Ready)

	api := r.Group("/api/v1")
	api.Use(middleware.JWTMiddleware(cfg.JWT))

	rateLimit := cfg.RateLimit
	if rateLimit == nil {
		rateLimit = func(c *gin.Context) { c.Next() }
	}

	// role checks for scans live in the validation policy
	validations := api.Group("/validations")
	{
		validations.POST("", rateLimit, cfg.Validation.Validate)
		validations.GET("/tickets/:ticketId", middleware.RequireRole(domain.RoleAdmin, domain.RoleValidator), cfg.Validation.ListTicketValidations)
	}

	admin := api.Group("")
	admin.Use(middleware.RequireRole(domain.RoleAdmin))
	if cfg.Audit != nil {
		admin.Use(middleware.AuditMiddleware(cfg.Audit))
	}
	{
		admin.GET("/reconciliations", cfg.Reconciliation.Reconcile)
		admin.POST("/reconciliations/scan-pending", cfg.Reconciliation.ScanPending)
		admin.POST("/reconciliations/apply", cfg.Reconciliation.Apply)
		admin.GET("/tickets/:ticketId/qr", cfg.Ticket.QRCode)
	}

	return r
}
