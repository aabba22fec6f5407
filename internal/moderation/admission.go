package moderation

import "github.com/whisper/moderation/internal/entity"

// Admit reports whether the count-th report against a target should trigger a
// review. A threshold of zero or less means every report does.
func Admit(count, threshold int) bool {
	if threshold <= 0 {
		threshold = 1
	}
	return count > 0 && count%threshold == 0
}

// ReportThreshold returns the app's threshold for the given kind of report.
// A nil config yields the default of reviewing every report.
func ReportThreshold(cfg *entity.ValidationConfig, kind entity.ReportKind) int {
	if cfg == nil {
		return 1
	}
	if kind == entity.ReportUser {
		return cfg.UserReportThreshold
	}
	return cfg.ContentReportThreshold
}
