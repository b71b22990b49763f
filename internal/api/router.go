package api

import (
	"strings"

	"github.com/jollaman999/multiport-greeter/internal/balancer"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// NewRouter builds the load balancer's echo instance: admin routes under
// statusPath, everything else forwarded to the pool.
func NewRouter(statusPath string, pool *balancer.Pool, checker *balancer.HealthChecker, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(balancer.Middleware(pool, func(c echo.Context) bool {
		path := c.Request().URL.Path
		return path == statusPath || strings.HasPrefix(path, statusPath+"/")
	}, logger))

	h := NewHandler(pool, checker, logger)

	// Status routes
	group := e.Group(statusPath)
	group.GET("", h.GetStatus)
	group.POST("/check", h.CheckNow)

	return e
}
