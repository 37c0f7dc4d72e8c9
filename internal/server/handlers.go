package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/substitwt/recaster/internal/bot"
)

type statusPageData struct {
	BotName        string
	BotScreenName  string
	BotDescription string
	StreamStatus   string
	ActiveSessions int
	RateLimit      int
	RateWindowSec  int
	MaxExceeds     int
	HomepageText   string
}

func (s *Server) handleStatus(c echo.Context) error {
	identity := s.state.Identity()

	data := statusPageData{
		BotName:        identity.Name,
		BotScreenName:  identity.ScreenName,
		BotDescription: identity.Description,
		StreamStatus:   s.state.StreamStatus(),
		ActiveSessions: s.registry.Len(),
		RateLimit:      s.config.RateLimit,
		RateWindowSec:  int(s.config.RateWindow.Seconds()),
		MaxExceeds:     s.config.MaxExceeds,
	}

	if s.homepage != nil {
		data.HomepageText = s.homepage.Text(c.Request().Context())
	}

	return s.statusTemplate.Execute(c.Response().Writer, data)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness reports ready once credentials are verified and the feed
// is not known to be disconnected.
func (s *Server) handleReadiness(c echo.Context) error {
	if s.state.Identity().ID == 0 {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "credentials not verified"})
	}
	if s.state.StreamStatus() == bot.StatusDisconnected {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "stream disconnected"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
