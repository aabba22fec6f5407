package moderation

import "github.com/whisper/moderation/internal/entity"

// ContentJob is queued by CreateContentModerationRequest and consumed by
// HandleContentJob.
type ContentJob struct {
	Handle          string             `json:"handle"`
	AppHandle       string             `json:"app_handle"`
	ContentType     entity.ContentType `json:"content_type"`
	ContentHandle   string             `json:"content_handle"`
	UserHandle      string             `json:"user_handle"`
	CallbackAddress string             `json:"callback_address"`
}

// ImageJob is queued by CreateImageModerationRequest.
type ImageJob struct {
	Handle          string           `json:"handle"`
	AppHandle       string           `json:"app_handle"`
	ImageHandle     string           `json:"image_handle"`
	ImageKind       entity.ImageKind `json:"image_kind"`
	UserHandle      string           `json:"user_handle"`
	CallbackAddress string           `json:"callback_address"`
}

// UserJob is queued by CreateUserModerationRequest.
type UserJob struct {
	Handle          string `json:"handle"`
	AppHandle       string `json:"app_handle"`
	UserHandle      string `json:"user_handle"`
	CallbackAddress string `json:"callback_address"`
}

// ReportJob is queued when a report is admitted for review.
type ReportJob struct {
	// Handle keys the review transaction and its callback.
	Handle          string `json:"handle"`
	ReportHandle    string `json:"report_handle"`
	AppHandle       string `json:"app_handle"`
	CallbackAddress string `json:"callback_address"`
}
