package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	xhttp "CoinCast/pkg/http"
	xlogger "CoinCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthEchoHandler serves GET /health. With no checkers the service is
// always healthy.
type HealthEchoHandler struct {
	logger   *xlogger.Logger
	checkers map[string]HealthChecker
	timeout  time.Duration
}

func NewHealthEchoHandler(logger *xlogger.Logger, checkers map[string]HealthChecker) *HealthEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &HealthEchoHandler{logger: logger, checkers: checkers, timeout: 2 * time.Second}
}

func (h *HealthEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

func (h *HealthEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	res := xhttp.HealthResponse{Status: "ok"}
	status := http.StatusOK
	for _, name := range names {
		if res.Checks == nil {
			res.Checks = make(map[string]string, len(names))
		}
		if err := h.checkers[name].Health(ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("dependency", name), xlogger.Error(err))
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}
	return xhttp.DataResponse(c, status, res)
}
