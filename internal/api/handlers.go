package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/whisper/moderation/internal/entity"
	"github.com/whisper/moderation/internal/moderation"
)

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type contentRequest struct {
	AppHandle     string `json:"app_handle"`
	ContentType   string `json:"content_type"`
	ContentHandle string `json:"content_handle"`
	UserHandle    string `json:"user_handle"`
}

type imageRequest struct {
	AppHandle   string `json:"app_handle"`
	ImageHandle string `json:"image_handle"`
	ImageKind   string `json:"image_kind"`
	UserHandle  string `json:"user_handle"`
}

type userRequest struct {
	AppHandle  string `json:"app_handle"`
	UserHandle string `json:"user_handle"`
}

type contentReportRequest struct {
	AppHandle          string `json:"app_handle"`
	ContentType        string `json:"content_type"`
	ContentHandle      string `json:"content_handle"`
	ReportedUserHandle string `json:"reported_user_handle"`
	ReporterHandle     string `json:"reporter_handle"`
	Reason             string `json:"reason"`
}

type userReportRequest struct {
	AppHandle          string `json:"app_handle"`
	ReportedUserHandle string `json:"reported_user_handle"`
	ReporterHandle     string `json:"reporter_handle"`
	Reason             string `json:"reason"`
}

type moderationResponse struct {
	Handle string `json:"handle"`
}

type reportResponse struct {
	ReportHandle string `json:"report_handle"`
}

func (s *Server) Health(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: err.Error()})
		}
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) ModerateContent(c echo.Context) error {
	var req contentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	handle, err := s.mod.CreateContentModerationRequest(c.Request().Context(),
		req.AppHandle, entity.ContentType(req.ContentType), req.ContentHandle, req.UserHandle)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, moderationResponse{Handle: handle})
}

func (s *Server) ModerateImage(c echo.Context) error {
	var req imageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	handle, err := s.mod.CreateImageModerationRequest(c.Request().Context(),
		req.AppHandle, req.ImageHandle, entity.ImageKind(req.ImageKind), req.UserHandle)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, moderationResponse{Handle: handle})
}

func (s *Server) ModerateUser(c echo.Context) error {
	var req userRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	handle, err := s.mod.CreateUserModerationRequest(c.Request().Context(), req.AppHandle, req.UserHandle)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, moderationResponse{Handle: handle})
}

func (s *Server) ReportContent(c echo.Context) error {
	var req contentReportRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	entry, err := s.mod.CreateContentReport(c.Request().Context(), moderation.ContentReport{
		AppHandle:          req.AppHandle,
		ContentType:        entity.ContentType(req.ContentType),
		ContentHandle:      req.ContentHandle,
		ReportedUserHandle: req.ReportedUserHandle,
		ReporterHandle:     req.ReporterHandle,
		Reason:             req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, reportResponse{ReportHandle: entry.ReportHandle})
}

func (s *Server) ReportUser(c echo.Context) error {
	var req userReportRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	entry, err := s.mod.CreateUserReport(c.Request().Context(), moderation.UserReport{
		AppHandle:          req.AppHandle,
		ReportedUserHandle: req.ReportedUserHandle,
		ReporterHandle:     req.ReporterHandle,
		Reason:             req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, reportResponse{ReportHandle: entry.ReportHandle})
}

// ModerationCallback receives a proactive provider's verdict. The body is
// passed through untouched; the processor owns parsing.
func (s *Server) ModerationCallback(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if err := s.mod.ProcessModerationResult(c.Request().Context(), c.Param("handle"), raw); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) ReportCallback(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if err := s.mod.ProcessReportResult(c.Request().Context(), c.Param("handle"), raw); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	return nil
}
