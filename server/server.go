// Package server wires the echo HTTP server around the sync layer.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/pulsedesk/pulsedesk/internal/profile"
	"github.com/pulsedesk/pulsedesk/plugin/upstream"
	"github.com/pulsedesk/pulsedesk/server/internal/observability"
	apiv1 "github.com/pulsedesk/pulsedesk/server/router/api/v1"
	"github.com/pulsedesk/pulsedesk/server/router/feed"
	"github.com/pulsedesk/pulsedesk/syncer"
)

// Server is the pulsedesk sync server.
type Server struct {
	Profile *profile.Profile
	Syncer  *syncer.Syncer[upstream.Item]

	echoServer *echo.Echo
}

// NewServer creates the server and registers all routes.
func NewServer(p *profile.Profile, s *syncer.Syncer[upstream.Item]) *Server {
	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true

	echoServer.Use(echomw.Recover())
	echoServer.Use(requestLogger())

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	apiv1.NewAPIV1Service(p, s).RegisterRoutes(echoServer)
	feed.NewFeedService(s).RegisterRoutes(echoServer)

	return &Server{
		Profile:    p,
		Syncer:     s,
		echoServer: echoServer,
	}
}

// Start initializes the sync layer in the background and begins
// serving. It returns when the listener fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		if err := s.Syncer.Initialize(ctx); err != nil {
			slog.Error("sync initialization failed", "error", err)
		}
	}()

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server started", "address", address, "mode", s.Profile.Mode)
	if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "start server")
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	slog.Info("server stopped")
}

// requestLogger logs each request with a request-scoped ID, reusing an
// incoming X-Request-Id when present.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			var rc *observability.RequestContext
			if requestID != "" {
				rc = observability.NewRequestContextWithID(slog.Default(), requestID)
			} else {
				rc = observability.NewRequestContext(slog.Default())
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rc.RequestID)

			err := next(c)
			if err != nil {
				rc.Warn("request failed",
					"method", c.Request().Method,
					"path", c.Request().URL.Path,
					"error", err,
				)
				return err
			}
			rc.Done("request completed",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
			)
			return nil
		}
	}
}
