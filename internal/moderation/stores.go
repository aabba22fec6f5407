package moderation

import (
	"context"
	"time"

	"github.com/whisper/moderation/internal/entity"
)

// Read methods on the stores below return (nil, nil) when the entity does
// not exist.

// ContentStore reads and writes topics, comments and replies.
type ContentStore interface {
	ReadTopic(ctx context.Context, handle string) (*entity.Topic, error)
	// UpdateTopic writes the blob reference and review status.
	UpdateTopic(ctx context.Context, topic *entity.Topic) error
	UpdateTopicStatus(ctx context.Context, handle string, status entity.ReviewStatus) error
	ReadComment(ctx context.Context, handle string) (*entity.Comment, error)
	UpdateComment(ctx context.Context, comment *entity.Comment) error
	UpdateCommentStatus(ctx context.Context, handle string, status entity.ReviewStatus) error
	ReadReply(ctx context.Context, handle string) (*entity.Reply, error)
	// UpdateReply writes the review status only.
	UpdateReply(ctx context.Context, reply *entity.Reply) error
}

// UserStore reads and writes per-app user profiles.
type UserStore interface {
	ReadUserProfile(ctx context.Context, appHandle, userHandle string) (*entity.UserProfile, error)
	// UpdateUserProfile writes the photo handle and review status.
	UpdateUserProfile(ctx context.Context, profile *entity.UserProfile) error
	UpdateUserProfileStatus(ctx context.Context, appHandle, userHandle string, status entity.ReviewStatus) error
}

// ImageStore covers image metadata, image bytes and the CDN.
type ImageStore interface {
	ReadImageMeta(ctx context.Context, handle string) (*entity.Image, error)
	UpdateImageMeta(ctx context.Context, image *entity.Image) error
	ReadImage(ctx context.Context, handle string) ([]byte, error)
	ImageExists(ctx context.Context, handle string) (bool, error)
	// CreateResizedImage stores a rendition's bytes and metadata.
	CreateResizedImage(ctx context.Context, rendition *entity.Image, data []byte) error
	// DeleteImage removes the stored bytes. Metadata is kept so the image
	// can be tagged.
	DeleteImage(ctx context.Context, appHandle, ownerHandle, imageHandle string, kind entity.ImageKind) error
	// ReadImageCDNURL returns "" when the image has no public URL.
	ReadImageCDNURL(ctx context.Context, handle string) (string, error)
}

// AppConfigStore returns per-app moderation policy.
type AppConfigStore interface {
	ReadValidationConfig(ctx context.Context, appHandle string) (*entity.ValidationConfig, error)
}

// Tracker persists moderation transactions and their records.
type Tracker interface {
	// CreateSubmission stores a transaction and its record together.
	CreateSubmission(ctx context.Context, tx *entity.Transaction, rec *entity.Record) error
	ReadTransaction(ctx context.Context, handle string) (*entity.Transaction, error)
	TransactionExists(ctx context.Context, handle string) (bool, error)
	// RecordResponse overwrites any response already stored.
	RecordResponse(ctx context.Context, handle string, payload []byte, at time.Time) error
	ReadRecord(ctx context.Context, handle string) (*entity.Record, error)
	UpdateRecordStatus(ctx context.Context, handle string, status entity.RecordStatus) error
}

// ReportStore persists abuse reports.
type ReportStore interface {
	// CreateReport inserts the entry and fills in ReporterHasPriorComplaint.
	CreateReport(ctx context.Context, entry *entity.ReportEntry) error
	ReadReport(ctx context.Context, reportHandle string) (*entity.ReportEntry, error)
	// CountReports counts every report filed against entry's target. A topic
	// and a comment sharing a handle are different targets.
	CountReports(ctx context.Context, entry *entity.ReportEntry) (int, error)
}

// Queue carries submission jobs to the moderation workers.
type Queue interface {
	EnqueueContentModeration(ctx context.Context, job *ContentJob) error
	EnqueueImageModeration(ctx context.Context, job *ImageJob) error
	EnqueueUserModeration(ctx context.Context, job *UserJob) error
	EnqueueReportReview(ctx context.Context, job *ReportJob) error
}

// Throttle limits how fast a reporter can file reports. Allow returns true
// when the report may proceed.
type Throttle interface {
	Allow(ctx context.Context, appHandle, reporterHandle string) (bool, error)
}

// Stores groups the entity stores enforcement and assembly read from.
type Stores struct {
	Content   ContentStore
	Users     UserStore
	Images    ImageStore
	AppConfig AppConfigStore
}
