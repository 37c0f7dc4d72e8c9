// Package server exposes the bot's small observability surface: a status
// page, health probes, and prometheus metrics. The relay pipeline never
// depends on it.
package server

import (
	"context"
	"fmt"
	"html/template"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/substitwt/recaster/internal/bot"
	"github.com/substitwt/recaster/internal/config"
	"github.com/substitwt/recaster/internal/domain"
)

type Server struct {
	echo           *echo.Echo
	config         *config.Config
	state          *domain.AppState
	registry       *bot.Registry
	homepage       *GistFetcher
	statusTemplate *template.Template
}

func NewServer(cfg *config.Config, state *domain.AppState, registry *bot.Registry, homepage *GistFetcher) (*Server, error) {
	statusTmpl, err := template.ParseFiles("web/templates/status.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse status template: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:           e,
		config:         cfg,
		state:          state,
		registry:       registry,
		homepage:       homepage,
		statusTemplate: statusTmpl,
	}
	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	return s.echo.Start(":" + s.config.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
