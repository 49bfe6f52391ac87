// Package server wires the HTTP surface: turn submission, session
// management, auth, export, usage and metrics.
package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/orionlabs/orion-go/internal/auth"
	"github.com/orionlabs/orion-go/internal/chat"
	"github.com/orionlabs/orion-go/internal/config"
	"github.com/orionlabs/orion-go/internal/logger"
	"github.com/orionlabs/orion-go/internal/metrics"
	"github.com/orionlabs/orion-go/internal/store"
)

// Turner runs one conversation turn. Satisfied by *chat.Orchestrator; mocked
// in tests.
type Turner interface {
	Turn(ctx context.Context, req chat.Request) (*chat.Result, error)
}

// Server hosts the HTTP API.
type Server struct {
	echo  *echo.Echo
	cfg   *config.Config
	store *store.Store
	turns Turner
	auth  *auth.Service
}

// New builds the server and registers all routes.
func New(cfg *config.Config, st *store.Store, turns Turner, authSvc *auth.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, cfg: cfg, store: st, turns: turns, auth: authSvc}

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	e.POST("/api/auth/register", s.handleRegister)
	e.POST("/api/auth/login", s.handleLogin)

	api := e.Group("/api", s.requireUser, s.rateLimiter())
	api.POST("/chat", s.handleChat)
	api.GET("/sessions", s.handleListSessions)
	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions/search", s.handleSearchSessions)
	api.GET("/sessions/:id", s.handleGetSession)
	api.PATCH("/sessions/:id", s.handleUpdateSession)
	api.DELETE("/sessions/:id", s.handleDeleteSession)
	api.POST("/sessions/:id/archive", s.handleToggleArchived)
	api.POST("/sessions/:id/pin", s.handleTogglePinned)
	api.GET("/sessions/:id/messages", s.handleListMessages)
	api.GET("/sessions/:id/export", s.handleExport)
	api.GET("/usage", s.handleUsage)

	return s
}

// Start begins serving on addr and blocks until shutdown.
func (s *Server) Start(addr string) error {
	logger.L.Info("starting server", "address", addr)
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// requireUser resolves the caller identity from a bearer header or cookie.
// In anonymous mode every request maps to the anonymous user.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.auth.Enabled() {
			c.Set(userKey, s.auth.AnonymousID())
			return next(c)
		}

		token := bearerToken(c)
		if token == "" {
			if cookie, err := c.Cookie(auth.CookieName); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			return c.JSON(http.StatusUnauthorized, errorBody{Message: "authentication required"})
		}
		userID, err := s.auth.Verify(token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorBody{Message: "invalid or expired token"})
		}
		c.Set(userKey, userID)
		return next(c)
	}
}

// rateLimiter applies the per-caller admission limit before the turn pipeline
// is invoked.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	perMinute := s.cfg.Server.RateLimitPerMinute
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(float64(perMinute) / 60.0),
			Burst: perMinute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if id, ok := c.Get(userKey).(int64); ok {
				return "user:" + formatUserID(id), nil
			}
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, errorBody{Message: "rate limit identification failed"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, errorBody{Message: "rate limit exceeded"})
		},
	})
}
