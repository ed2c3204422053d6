// Package bootstrap wires configuration into the database, caches, side channels and flows
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/amirphl/lead-lifecycle/app/router"
	"github.com/amirphl/lead-lifecycle/app/services"
	businessflow "github.com/amirphl/lead-lifecycle/business_flow"
	"github.com/amirphl/lead-lifecycle/config"
	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/repository"
)

// Components holds everything built from the configuration
type Components struct {
	DB           *gorm.DB
	Redis        *redis.Client
	TokenService services.TokenService

	Escalator businessflow.StaleLeadEscalator
	Purger    businessflow.AgedLeadPurger
	Runs      businessflow.MaintenanceRunFlow
	Leads     businessflow.LeadFlow
	Auth      businessflow.AuthFlow
	AuditLogs businessflow.AuditLogFlow

	HealthChecks []router.HealthCheck

	stopFuncs []func()
}

// Close stops background workers and releases connections in reverse order of creation
func (c *Components) Close() {
	for i := len(c.stopFuncs) - 1; i >= 0; i-- {
		c.stopFuncs[i]()
	}
	c.stopFuncs = nil
}

// OnClose registers fn to run during Close
func (c *Components) OnClose(fn func()) {
	c.stopFuncs = append(c.stopFuncs, fn)
}

// Build connects to the stores and assembles the flows. Callers must Close the result.
func Build(ctx context.Context, cfg *config.ProductionConfig, logger *zap.Logger) (*Components, error) {
	c := &Components{}

	db, err := InitializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	c.DB = db
	c.HealthChecks = append(c.HealthChecks, router.HealthCheck{Name: "database", Check: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}})
	c.OnClose(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(&models.Lead{}, &models.AuditLog{}); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
		logger.Info("Database schema migrated")
	}

	sinks := businessflow.MaintenanceSinks{
		Metrics: services.PrometheusMaintenanceMetrics{},
	}

	rc, err := InitializeCache(ctx, cfg.Cache, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	if rc != nil {
		c.Redis = rc
		c.HealthChecks = append(c.HealthChecks, router.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}})
		c.OnClose(func() { _ = rc.Close() })
		c.OnClose(StartCacheHealthMonitor(ctx, rc, cfg.Cache.HealthCheckInterval, logger))
		sinks.RunStore = services.NewRedisRunStore(rc, cfg.Cache.RedisPrefix)
	}

	if cfg.Events.Enabled {
		publisher, err := services.NewRabbitMQEventPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.OnClose(func() { _ = publisher.Close() })
		sinks.Events = publisher
		c.HealthChecks = append(c.HealthChecks, router.HealthCheck{Name: "rabbitmq", Check: publisher.Ping})
		logger.Info("Lead event publisher connected", zap.String("exchange", cfg.Events.Exchange))
	}

	if cfg.Email.Enabled {
		sinks.Mailer = services.NewSMTPRunReportMailer(
			cfg.Email.Host,
			cfg.Email.Port,
			cfg.Email.Username,
			cfg.Email.Password,
			cfg.Email.FromEmail,
			cfg.Maintenance.ReportRecipients,
			cfg.Email.SendTimeout,
		)
	}

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	c.TokenService = tokenService
	logger.Info("Token service initialized", zap.String("issuer", cfg.JWT.Issuer), zap.String("audience", cfg.JWT.Audience))

	leadRepo := repository.NewLeadRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	c.Escalator = businessflow.NewStaleLeadEscalator(leadRepo, auditRepo, businessflow.MaintenanceOperatorConfig{
		APIKey:               cfg.Maintenance.EscalationAPIKey,
		RequireAPIKey:        cfg.Maintenance.RequireAPIKey,
		DefaultThresholdDays: cfg.Maintenance.EscalationThresholdDays,
		SystemActorID:        cfg.Maintenance.SystemActorID,
	}, sinks, logger)

	c.Purger = businessflow.NewAgedLeadPurger(leadRepo, auditRepo, businessflow.MaintenanceOperatorConfig{
		APIKey:               cfg.Maintenance.PurgeAPIKey,
		RequireAPIKey:        cfg.Maintenance.RequireAPIKey,
		DefaultThresholdDays: cfg.Maintenance.PurgeThresholdDays,
		SystemActorID:        cfg.Maintenance.SystemActorID,
		BatchSize:            cfg.Maintenance.PurgeBatchSize,
	}, sinks, logger)

	c.Runs = businessflow.NewMaintenanceRunFlow(sinks.RunStore)
	c.Leads = businessflow.NewLeadFlow(leadRepo, auditRepo, logger)
	c.Auth = businessflow.NewAuthFlow(tokenService, auditRepo, logger)
	c.AuditLogs = businessflow.NewAuditLogFlow(auditRepo)

	return c, nil
}

// InitializeDatabase opens the connection pool and verifies connectivity
func InitializeDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	gormLog := gormlogger.New(zap.NewStdLog(logger.Named("gorm")), gormlogger.Config{
		SlowThreshold:             cfg.SlowQueryTime,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)
	return db, nil
}

// InitializeCache returns nil when the cache is disabled
func InitializeCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established", zap.Int("db", cfg.RedisDB))
	return rc, nil
}

// StartCacheHealthMonitor periodically pings Redis. The returned function stops the monitor.
func StartCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger *zap.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn("Redis healthcheck failed", zap.Error(err))
				}
				c()
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
