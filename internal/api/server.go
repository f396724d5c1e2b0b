package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/eleven-am/warden/internal/core"
)

// Server exposes the manager over HTTP: run lifecycle, definitions, live
// event streaming and audit-chain retrieval.
type Server struct {
	manager *core.Manager
	echo    *echo.Echo
	logger  *slog.Logger
}

func NewServer(manager *core.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		manager: manager,
		echo:    e,
		logger:  logger.With("component", "api"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)

	v1 := s.echo.Group("/api/v1")

	v1.POST("/workflows", s.handleSaveWorkflow)
	v1.GET("/workflows/:id", s.handleGetWorkflow)
	v1.POST("/policies", s.handleSavePolicy)
	v1.POST("/tools", s.handleSaveTool)
	v1.POST("/contracts", s.handleSaveContract)

	v1.POST("/runs", s.handleStartRun)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.POST("/runs/:id/resume", s.handleResumeRun)
	v1.POST("/runs/:id/cancel", s.handleCancelRun)
	v1.GET("/runs/:id/steps", s.handleListSteps)
	v1.GET("/runs/:id/events", s.handleStreamEvents)
	v1.GET("/runs/:id/chain", s.handleGetChain)
}

// Start serves until ctx is cancelled, then drains with a short grace
// period.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	s.logger.Info("api listening", "addr", addr)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
