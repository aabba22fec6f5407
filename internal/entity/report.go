package entity

import "time"

// ReportKind distinguishes reports against content from reports against users.
type ReportKind string

const (
	ReportContent ReportKind = "content"
	ReportUser    ReportKind = "user"
)

// Report reasons accepted at intake.
const (
	ReasonSpam       = "spam"
	ReasonOffensive  = "offensive"
	ReasonSexual     = "sexual"
	ReasonViolence   = "violence"
	ReasonHarassment = "harassment"
	ReasonOther      = "other"
)

// ValidReason reports whether reason is one of the accepted report reasons.
func ValidReason(reason string) bool {
	switch reason {
	case ReasonSpam, ReasonOffensive, ReasonSexual, ReasonViolence, ReasonHarassment, ReasonOther:
		return true
	}
	return false
}

// ReportEntry is a single abuse report. For user reports ContentType is
// empty and ContentHandle is unset; ReportedUserHandle is always the owner
// of the reported content or the reported user.
type ReportEntry struct {
	ReportHandle       string
	Kind               ReportKind
	AppHandle          string
	ContentType        ContentType
	ContentHandle      string
	ReportedUserHandle string
	ReporterHandle     string
	Reason             string
	CreatedAt          time.Time
	// ReporterHasPriorComplaint is informational only.
	ReporterHasPriorComplaint bool
}

// TargetHandle is the handle report counts are kept against.
func (r *ReportEntry) TargetHandle() string {
	if r.Kind == ReportUser {
		return r.ReportedUserHandle
	}
	return r.ContentHandle
}
