package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/fazzk/internal/domain"
	apperrors "github.com/pscheid92/fazzk/internal/platform/errors"
)

const testFollowerBurst = 3

type followersResponse struct {
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Content domain.FollowerPage `json:"content"`
}

type testFollowerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) registerFollowerRoutes() {
	limiter := newRateLimiter(s.config.TestFollowerRPS, testFollowerBurst)

	s.echo.GET("/followers", s.handleFollowers)
	s.echo.POST("/test-follower", s.handleTestFollower, limiter)
	// GET variant for browser sources that cannot issue POST requests.
	s.echo.GET("/test-follower-get", s.handleTestFollower, limiter)
}

func (s *Server) handleFollowers(c echo.Context) error {
	page := s.app.Followers(c.Request().Context())
	if page.Data == nil {
		page.Data = []domain.Follower{}
	}

	resp := followersResponse{Code: http.StatusOK, Message: "Success", Content: page}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleTestFollower(c echo.Context) error {
	if _, err := s.app.InjectTestFollower(c.Request().Context(), domain.TestSourceHTTP); err != nil {
		return apperrors.InternalError("failed to add test follower", err)
	}

	resp := testFollowerResponse{Success: true, Message: "Test follower added to queue"}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
