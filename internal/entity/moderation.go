package entity

import "time"

// ModerationKind is the shape of a submitted review job.
type ModerationKind string

const (
	KindContentText  ModerationKind = "content_text"
	KindContentImage ModerationKind = "content_image"
	KindUserProfile  ModerationKind = "user_profile"
)

// RecordStatus is the processing state of a ModerationRecord.
type RecordStatus string

const (
	RecordPending   RecordStatus = "pending"
	RecordCompleted RecordStatus = "completed"
	RecordFailed    RecordStatus = "failed"
)

// Transaction is one outbound submission to a review provider and, once it
// lands, the provider's response. Payload snapshots are opaque.
type Transaction struct {
	Handle          string
	AppHandle       string
	Kind            ModerationKind
	Provider        string
	SubmittedAt     time.Time
	RequestPayload  []byte
	ProviderJobID   string
	CallbackAddress string
	RespondedAt     *time.Time
	ResponsePayload []byte
}

// Record maps a transaction handle back to the entity it concerns.
type Record struct {
	Handle        string
	AppHandle     string
	ContentType   ContentType
	ContentHandle string
	UserHandle    string
	ImageHandle   string
	ImageKind     ImageKind
	Status        RecordStatus
}
