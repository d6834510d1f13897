package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"user-api/cmd/api/infrastructure"
	"user-api/internal/adapter/cache"
	"user-api/internal/adapter/db/sqldb"
	ginhandler "user-api/internal/adapter/gin/handler"
	"user-api/internal/adapter/gin/middleware"
	ginrouter "user-api/internal/adapter/gin/router"
	"user-api/internal/adapter/repository/cached"
	"user-api/internal/config"
	"user-api/internal/usecase/user"
	redisclient "user-api/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *gorm.DB
	RedisClient *redisclient.Client // nil when Redis is disabled
	UserRepo    user.Repository     // cached when Redis is enabled
	UserUC      user.Usecase
	RateLimiter *middleware.RateLimiter // nil when rate limiting is disabled
	Router      *gin.Engine
}

// NewContainer creates and initializes all application dependencies
func NewContainer(ctx context.Context, cfg *config.Config, l *zap.Logger) (_ *Container, err error) {
	// Validate configuration before initializing any dependencies
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	c := &Container{Config: cfg, Logger: l}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	// Initialize database
	c.DB, err = infrastructure.NewDatabase(cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize Redis client
	c.RedisClient, err = infrastructure.NewRedisClient(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	// Initialize repository
	dbRepo := sqldb.NewUserRepoSQL(c.DB, l)
	c.UserRepo = dbRepo
	if c.RedisClient != nil {
		userCache := cache.NewRedisUserCache(
			c.RedisClient.Client,
			time.Duration(cfg.Redis.CacheTTL)*time.Second,
			l,
		)
		c.UserRepo = cached.NewUserRepository(dbRepo, userCache, l)
	}

	// Initialize use case
	c.UserUC = user.New(c.UserRepo, l)

	// Initialize rate limiter
	if cfg.RateLimit.Enabled {
		c.RateLimiter = middleware.NewRateLimiter(
			c.RedisClient.Client,
			middleware.RateLimiterConfig{
				RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
				BurstCapacity:     cfg.RateLimit.BurstCapacity,
			},
			l,
		)
	}

	c.Router = ginrouter.SetupRouter(ginrouter.Deps{
		Users:          ginhandler.NewUserHandler(c.UserUC, l, ginhandler.WithErrorDetails(cfg.App.ExposeErrors)),
		Students:       ginhandler.NewStudentHandler(l),
		RateLimiter:    c.RateLimiter,
		Health:         dbRepo,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		DocsHost:       "localhost:" + cfg.App.HTTPPort,
		Log:            l,
	})

	return c, nil
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	var errs []error

	// Close Redis connection
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
		c.RedisClient = nil
	}

	// Close database connection
	if c.DB != nil {
		if err := infrastructure.CloseDatabase(c.DB); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
		c.DB = nil
	}

	return errors.Join(errs...)
}
