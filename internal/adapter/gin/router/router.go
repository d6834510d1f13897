package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"user-api/docs"
	"user-api/internal/adapter/gin/handler"
	"user-api/internal/adapter/gin/middleware"
	"user-api/pkg/logger"
)

// Pinger reports whether a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups everything the router wires into routes.
type Deps struct {
	Users          *handler.UserHandler
	Students       *handler.StudentHandler
	RateLimiter    *middleware.RateLimiter // nil disables rate limiting
	Health         Pinger
	AllowedOrigins []string
	DocsHost       string // host:port advertised by the served API document
	Log            *zap.Logger
}

// SetupRouter configures and returns a Gin router with all routes and middleware
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery(d.Log))
	router.Use(logger.RequestID())
	router.Use(middleware.Logger(d.Log))
	router.Use(middleware.CORS(d.AllowedOrigins))

	router.GET("/health", healthHandler(d.Health))

	if d.DocsHost != "" {
		docs.SwaggerInfo.Host = d.DocsHost
	}
	router.GET("/api-docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/api-docs/doc.json"))))

	api := router.Group("/api", d.RateLimiter.Middleware())
	{
		users := api.Group("/users")
		{
			users.GET("", d.Users.ListUsers)
			users.GET("/:id", d.Users.GetUser)
			users.POST("", d.Users.CreateUser)
			users.PUT("/:id", d.Users.UpdateUser)
			users.DELETE("/:id", d.Users.DeleteUser)
			users.POST("/login", d.Users.Login)
		}
	}

	router.POST("/students/add", d.RateLimiter.Middleware(), d.Students.AddStudentResult)

	return router
}

func healthHandler(p Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := p.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "user-api",
		})
	}
}
