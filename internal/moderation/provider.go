package moderation

import (
	"context"
	"time"

	"github.com/whisper/moderation/internal/entity"
)

// Submission is everything a provider may need to review one target.
// Providers use the subset their protocol carries.
type Submission struct {
	Handle          string
	AppHandle       string
	Kind            entity.ModerationKind
	Texts           []string
	ImageHandle     string
	ImageURL        string
	Reason          string
	ReportedAt      time.Time
	CallbackAddress string
}

// Receipt is what a provider hands back from Submit.
type Receipt struct {
	JobID string
	// Request is the serialized outbound payload, kept for auditing.
	Request []byte
	// Response is set when the provider answered synchronously.
	Response []byte
	// Final marks a Response that already carries the verdict, so no
	// callback will follow.
	Final bool
}

// Verdict is a provider response reduced to what enforcement needs.
type Verdict struct {
	// Failed means the provider could not complete the review.
	Failed   bool
	Severity entity.ReviewStatus
}

// Provider is a review backend. Response payloads are opaque outside the
// provider that produced them; only ParseVerdict interprets them.
type Provider interface {
	Name() string
	Submit(ctx context.Context, sub *Submission) (*Receipt, error)
	ParseVerdict(raw []byte) (Verdict, error)
}
