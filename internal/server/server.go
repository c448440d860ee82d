// Package server exposes the search job API over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slavierouse/sound-your-scene/config"
	"github.com/slavierouse/sound-your-scene/internal/catalog"
	"github.com/slavierouse/sound-your-scene/internal/job"
	"github.com/slavierouse/sound-your-scene/internal/refine"
	"github.com/slavierouse/sound-your-scene/internal/search"
	"github.com/slavierouse/sound-your-scene/internal/store"
	"github.com/slavierouse/sound-your-scene/internal/translator"
)

// Server holds the wired application.
type Server struct {
	echo         *echo.Echo
	cfg          *config.Config
	orchestrator *search.Orchestrator
	catalog      *catalog.Catalog
	logger       *log.Logger
}

// New wires the full application from configuration: catalog, store,
// translator, orchestrator and routes. A missing catalog is fatal.
func New(cfg *config.Config) (*Server, error) {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags)

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	logger.Printf("catalog loaded: %d tracks from %s", cat.Len(), cfg.Catalog.Path)

	st, err := store.New(context.Background(), cfg.Storage)
	if err != nil {
		return nil, err
	}

	tr, err := translator.NewOpenAI(cfg.LLM)
	if err != nil {
		return nil, err
	}

	return NewWith(cfg, cat, st, tr), nil
}

// NewWith wires a server from already constructed dependencies. Tests use it
// to substitute the translator and store.
func NewWith(cfg *config.Config, cat *catalog.Catalog, st store.Store, tr translator.Translator) *Server {
	controller := refine.New(tr, cat,
		cfg.Search.BandLow, cfg.Search.BandHigh,
		cfg.Search.MaxAutoPasses, cfg.Search.TranslateRetries)
	s := &Server{
		cfg:          cfg,
		orchestrator: search.NewOrchestrator(st, controller, cfg.Search),
		catalog:      cat,
		logger:       log.New(os.Stdout, "[SERVER] ", log.LstdFlags),
	}
	s.echo = s.buildEcho()
	return s
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.HTTPErrorHandler = errorHandler

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/search", s.handleCreateJob)
	api.GET("/jobs/:id", s.handleGetJob)
	api.POST("/jobs/:id/refine", s.handleRefine)
	api.POST("/jobs/:id/cancel", s.handleCancel)

	return e
}

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s", s.cfg.Server.Address)
	return s.echo.Start(s.cfg.Server.Address)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"tracks": s.catalog.Len(),
	})
}

// errorHandler maps domain errors onto HTTP statuses uniformly.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, job.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, job.ErrLimitExceeded):
		status = http.StatusTooManyRequests
	default:
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		}
	}
	_ = c.JSON(status, map[string]string{"error": err.Error()})
}
