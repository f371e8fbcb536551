package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/fazzk/internal/domain"
)

const (
	loginRate  = 0.2
	loginBurst = 5
)

type loginResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Nickname string `json:"nickname,omitempty"`
}

func (s *Server) registerAuthRoutes() {
	s.echo.POST("/auth/cookies", s.handleCookieLogin, newRateLimiter(loginRate, loginBurst))
}

// handleCookieLogin accepts NAVER session cookies exported by the browser
// extension, verifies them and starts monitoring the account.
func (s *Server) handleCookieLogin(c echo.Context) error {
	var creds domain.Credentials
	if err := c.Bind(&creds); err != nil {
		return s.loginResult(c, http.StatusBadRequest, "Invalid request body", "")
	}
	if creds.Empty() {
		return s.loginResult(c, http.StatusBadRequest, "NID_AUT and NID_SES are required", "")
	}

	profile, err := s.app.Login(c.Request().Context(), creds)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		}
		return s.loginResult(c, status, "Verification failed: "+err.Error(), "")
	}

	return s.loginResult(c, http.StatusOK, "Success", profile.Nickname)
}

func (s *Server) loginResult(c echo.Context, status int, msg, nickname string) error {
	resp := loginResponse{Code: status, Message: msg, Nickname: nickname}
	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
