package balancer

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const targetContextKey = "target"

var ErrNoBackend = echo.NewHTTPError(http.StatusServiceUnavailable, "Service unavailable")

// ProxyBalancer adapts a Pool to echo's proxy middleware.
type ProxyBalancer struct {
	pool   *Pool
	logger *zap.Logger
}

var (
	_ middleware.ProxyBalancer  = (*ProxyBalancer)(nil)
	_ middleware.TargetProvider = (*ProxyBalancer)(nil)
)

func NewProxyBalancer(pool *Pool, logger *zap.Logger) *ProxyBalancer {
	return &ProxyBalancer{
		pool:   pool,
		logger: logger,
	}
}

func (b *ProxyBalancer) AddTarget(target *middleware.ProxyTarget) bool {
	added, err := b.pool.Add(target.URL.String())
	if err != nil {
		b.logger.Error("failed to add backend", zap.Error(err))
		return false
	}
	return added
}

func (b *ProxyBalancer) RemoveTarget(name string) bool {
	return b.pool.Remove(name)
}

func (b *ProxyBalancer) Next(c echo.Context) *middleware.ProxyTarget {
	target, _ := b.NextTarget(c)
	return target
}

func (b *ProxyBalancer) NextTarget(c echo.Context) (*middleware.ProxyTarget, error) {
	backend := b.pool.Next()
	if backend == nil {
		b.logger.Warn("no server available", zap.String("path", c.Request().URL.Path))
		return nil, ErrNoBackend
	}

	b.logger.Info("forwarding request",
		zap.String("backend", backend.URL.String()),
		zap.String("method", c.Request().Method),
		zap.String("path", c.Request().URL.Path))

	return &middleware.ProxyTarget{
		Name: backend.URL.String(),
		URL:  backend.URL,
	}, nil
}

// Middleware forwards every request not skipped by skipper to the pool. A
// backend that cannot be reached is marked down at once and the request is
// retried on the next alive backend.
func Middleware(pool *Pool, skipper middleware.Skipper, logger *zap.Logger) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}

	return middleware.ProxyWithConfig(middleware.ProxyConfig{
		Skipper:    skipper,
		Balancer:   NewProxyBalancer(pool, logger),
		RetryCount: 1,
		ContextKey: targetContextKey,
		RetryFilter: func(c echo.Context, err error) bool {
			return markUnreachable(c, pool, err)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			markUnreachable(c, pool, err)
			return err
		},
	})
}

func markUnreachable(c echo.Context, pool *Pool, err error) bool {
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusBadGateway {
		return false
	}

	target, ok := c.Get(targetContextKey).(*middleware.ProxyTarget)
	if !ok || target == nil {
		return false
	}

	cause := httpErr.Internal
	if cause == nil {
		cause = err
	}
	pool.MarkDown(target.Name, cause)
	return true
}
