// Package api exposes moderation intake and provider callbacks over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/whisper/moderation/internal/entity"
	"github.com/whisper/moderation/internal/metrics"
	"github.com/whisper/moderation/internal/moderation"
)

// Moderator is the subset of *moderation.Service the API drives.
type Moderator interface {
	CreateContentModerationRequest(ctx context.Context, appHandle string, contentType entity.ContentType, contentHandle, userHandle string) (string, error)
	CreateImageModerationRequest(ctx context.Context, appHandle, imageHandle string, imageKind entity.ImageKind, userHandle string) (string, error)
	CreateUserModerationRequest(ctx context.Context, appHandle, userHandle string) (string, error)
	CreateContentReport(ctx context.Context, r moderation.ContentReport) (*entity.ReportEntry, error)
	CreateUserReport(ctx context.Context, r moderation.UserReport) (*entity.ReportEntry, error)
	ProcessModerationResult(ctx context.Context, handle string, raw []byte) error
	ProcessReportResult(ctx context.Context, handle string, raw []byte) error
	VerifyCallback(handle, token string) bool
}

// HealthFunc reports an unhealthy dependency as an error.
type HealthFunc func(ctx context.Context) error

// Server is the moderator's HTTP front end.
type Server struct {
	echo   *echo.Echo
	mod    Moderator
	health HealthFunc
	logger *zap.Logger
}

// NewServer builds the router. health may be nil.
func NewServer(mod Moderator, health HealthFunc, logger *zap.Logger) *Server {
	s := &Server{
		echo:   echo.New(),
		mod:    mod,
		health: health,
		logger: logger,
	}
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = s.handleError

	e.GET("/healthz", s.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := e.Group("/v1")
	v1.POST("/moderation/content", s.ModerateContent)
	v1.POST("/moderation/image", s.ModerateImage)
	v1.POST("/moderation/user", s.ModerateUser)
	v1.POST("/reports/content", s.ReportContent)
	v1.POST("/reports/user", s.ReportUser)

	callbacks := v1.Group("/callbacks", s.requireCallbackToken)
	callbacks.POST("/moderation/:handle", s.ModerationCallback)
	callbacks.POST("/reports/:handle", s.ReportCallback)
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown. It returns nil on a clean shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("http listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// CallbackTokenHeader may carry the callback token instead of the query.
const CallbackTokenHeader = "X-Callback-Token"

// requireCallbackToken rejects callbacks whose token was not issued for the
// handle in the path.
func (s *Server) requireCallbackToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.QueryParam(moderation.CallbackTokenParam)
		if token == "" {
			token = c.Request().Header.Get(CallbackTokenHeader)
		}
		if !s.mod.VerifyCallback(c.Param("handle"), token) {
			s.logger.Warn("callback rejected",
				zap.String("path", c.Path()),
				zap.String("handle", c.Param("handle")),
				zap.String("remote", c.RealIP()))
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid callback token")
		}
		return next(c)
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal error"
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		msg = http.StatusText(code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	case errors.Is(err, moderation.ErrInvalidArgument):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, moderation.ErrNotFound):
		code, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, moderation.ErrRateLimited):
		code, msg = http.StatusTooManyRequests, err.Error()
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("http request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
	}
	if err := c.JSON(code, errorResponse{Error: msg}); err != nil {
		s.logger.Warn("write error response", zap.Error(err))
	}
}
