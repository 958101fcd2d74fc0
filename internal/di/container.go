package di

import (
	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/eventgate/internal/gateway"
	"github.com/prohmpiriya/eventgate/internal/handler"
	"github.com/prohmpiriya/eventgate/internal/repository"
	"github.com/prohmpiriya/eventgate/internal/service"
	"github.com/prohmpiriya/eventgate/pkg/config"
	"github.com/prohmpiriya/eventgate/pkg/database"
	"github.com/prohmpiriya/eventgate/pkg/kafka"
	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/prohmpiriya/eventgate/pkg/middleware"
	"github.com/prohmpiriya/eventgate/pkg/redis"
)

// Container holds all dependencies of the eventgate service
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer
	Audit    *middleware.AuditLogger

	// Repositories
	BookingRepo  repository.BookingRepository
	GiftRepo     repository.GiftTicketRepository
	LogRepo      repository.ValidationLogRepository
	SettingsRepo repository.SettingsRepository

	// Collaborators
	Gateway   gateway.BankGateway
	Policies  service.PolicyProvider
	Publisher service.EventPublisher

	// Services
	ValidationService     service.ValidationService
	ReconciliationService service.ReconciliationService

	// Handlers
	HealthHandler         *handler.HealthHandler
	ValidationHandler     *handler.ValidationHandler
	ReconciliationHandler *handler.ReconciliationHandler
	TicketHandler         *handler.TicketHandler

	Router *gin.Engine
}

// ContainerConfig contains configuration for building the container.
// Redis and Producer are optional.
type ContainerConfig struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	appCfg := cfg.Config
	log := cfg.Logger

	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
	}

	// Initialize repositories
	pool := c.DB.Pool()
	c.BookingRepo = repository.NewPostgresBookingRepository(pool)
	c.GiftRepo = repository.NewPostgresGiftTicketRepository(pool)
	c.LogRepo = repository.NewPostgresValidationLogRepository(pool)
	c.SettingsRepo = repository.NewPostgresSettingsRepository(pool)

	// Initialize collaborators
	fallback, err := service.PolicyFromConfig(&appCfg.Validation)
	if err != nil {
		return nil, err
	}
	c.Policies = service.NewStorePolicyProvider(service.StorePolicyProviderConfig{
		Settings: c.SettingsRepo,
		Cache:    c.Redis,
		CacheTTL: appCfg.Validation.PolicyCacheTTL,
		Fallback: fallback,
		Logger:   log,
	})

	var replay repository.ReplayGuard = repository.NewMemoryReplayGuard()
	if c.Redis != nil {
		replay = repository.NewRedisReplayGuard(c.Redis)
	}

	if c.Producer != nil {
		c.Publisher = service.NewKafkaEventPublisher(c.Producer, appCfg.Kafka.Topic, appCfg.App.Name)
	} else {
		c.Publisher = service.NewNoopEventPublisher()
	}

	if appCfg.Gateway.BaseURL != "" {
		c.Gateway = gateway.NewHTTPBankGateway(gateway.Config{
			BaseURL: appCfg.Gateway.BaseURL,
			APIKey:  appCfg.Gateway.APIKey,
			Timeout: appCfg.Gateway.Timeout,
		})
	} else {
		log.Warn("bank gateway base URL not set, reconciliation will report the gateway as unavailable")
		c.Gateway = gateway.NewNoOpBankGateway()
	}

	// Initialize services
	c.ValidationService = service.NewValidationService(service.ValidationServiceConfig{
		Bookings:    c.BookingRepo,
		Gifts:       c.GiftRepo,
		Logs:        c.LogRepo,
		Policies:    c.Policies,
		ReplayGuard: replay,
		Publisher:   c.Publisher,
		Logger:      log,
	})
	c.ReconciliationService = service.NewReconciliationService(service.ReconciliationServiceConfig{
		Bookings:       c.BookingRepo,
		Gateway:        c.Gateway,
		GatewayTimeout: appCfg.Gateway.Timeout,
		Publisher:      c.Publisher,
		Logger:         log,
	})

	// Initialize handlers
	checks := map[string]handler.HealthCheck{"postgres": c.DB.HealthCheck}
	if c.Redis != nil {
		checks["redis"] = c.Redis.Ping
	}
	c.HealthHandler = handler.NewHealthHandler(checks)
	c.ValidationHandler = handler.NewValidationHandler(c.ValidationService, log)
	c.ReconciliationHandler = handler.NewReconciliationHandler(c.ReconciliationService, log)
	c.TicketHandler = handler.NewTicketHandler(log)

	auditCfg := middleware.DefaultAuditConfig(middleware.NewPostgresAuditSink(pool))
	auditCfg.Logger = log
	c.Audit = middleware.NewAuditLogger(auditCfg)

	rateLimit := middleware.DefaultRateLimitConfig()
	rateLimit.RequestsPerSecond = appCfg.Server.ScanRatePerSecond
	rateLimit.BurstSize = appCfg.Server.ScanRateBurst
	rateLimit.Redis = c.Redis
	rateLimit.Logger = log

	serviceName := ""
	if appCfg.OTel.Enabled {
		serviceName = appCfg.OTel.ServiceName
	}
	c.Router = handler.NewRouter(&handler.RouterConfig{
		ServiceName:    serviceName,
		JWT:            &middleware.JWTConfig{Secret: appCfg.JWT.Secret, Issuer: appCfg.JWT.Issuer},
		CORS:           middleware.DefaultCORSConfig(),
		Audit:          c.Audit,
		RateLimit:      middleware.RateLimit(rateLimit),
		Health:         c.HealthHandler,
		Validation:     c.ValidationHandler,
		Reconciliation: c.ReconciliationHandler,
		Ticket:         c.TicketHandler,
	})

	return c, nil
}

// Close flushes the audit trail and releases infrastructure in reverse order
func (c *Container) Close() {
	if c.Audit != nil {
		_ = c.Audit.Close()
	}
	if c.Producer != nil {
		c.Producer.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
