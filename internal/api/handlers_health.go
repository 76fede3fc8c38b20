// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version       string
	localBackend  string
	sharedBackend string
	authMode      string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, localBackend, sharedBackend, authMode string) *HealthHandlerImpl {
	return &HealthHandlerImpl{
		version:       version,
		localBackend:  localBackend,
		sharedBackend: sharedBackend,
		authMode:      authMode,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"storage": map[string]string{
			"local":  h.localBackend,
			"shared": h.sharedBackend,
		},
		"auth": h.authMode,
	})
}
