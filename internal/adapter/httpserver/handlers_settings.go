package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/fazzk/internal/domain"
	apperrors "github.com/pscheid92/fazzk/internal/platform/errors"
)

const maxSettingsBody = 64 << 10

type settingsSaveResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) registerSettingsRoutes() {
	s.echo.GET("/settings", s.handleGetSettings)
	s.echo.POST("/settings", s.handleSaveSettings)
}

func (s *Server) handleGetSettings(c echo.Context) error {
	settings, err := s.app.Settings(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to load settings", err)
	}

	if err := c.JSON(http.StatusOK, settings); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSaveSettings(c echo.Context) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxSettingsBody)

	var payload any
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return s.settingsFailure(c, http.StatusBadRequest, "Invalid settings format")
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return s.settingsFailure(c, http.StatusBadRequest, "Invalid settings format")
	}

	if _, err := s.app.SaveSettings(c.Request().Context(), domain.Settings(obj)); err != nil {
		logError(c, apperrors.InternalError("failed to save settings", err))
		return s.settingsFailure(c, http.StatusInternalServerError, "Failed to save settings")
	}

	if err := c.JSON(http.StatusOK, settingsSaveResponse{Success: true}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) settingsFailure(c echo.Context, status int, msg string) error {
	if err := c.JSON(status, settingsSaveResponse{Success: false, Error: msg}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
