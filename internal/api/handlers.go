package api

import (
	"net/http"

	"github.com/jollaman999/multiport-greeter/internal/balancer"
	"github.com/jollaman999/multiport-greeter/internal/models"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Handler struct {
	pool    *balancer.Pool
	checker *balancer.HealthChecker
	logger  *zap.Logger
}

func NewHandler(pool *balancer.Pool, checker *balancer.HealthChecker, logger *zap.Logger) *Handler {
	return &Handler{
		pool:    pool,
		checker: checker,
		logger:  logger,
	}
}

func (h *Handler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, models.Response{
		Success: true,
		Data:    h.pool.Status(),
	})
}

// CheckNow runs one health check pass before answering with the new status.
func (h *Handler) CheckNow(c echo.Context) error {
	if h.checker == nil {
		return c.JSON(http.StatusServiceUnavailable, models.Response{
			Success: false,
			Error:   "Health checks are disabled",
		})
	}

	h.checker.CheckAll(c.Request().Context())
	h.logger.Info("manual health check finished")

	return c.JSON(http.StatusOK, models.Response{
		Success: true,
		Data:    h.pool.Status(),
	})
}
