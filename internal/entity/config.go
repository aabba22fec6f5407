package entity

// ValidationConfig is the per-app moderation policy.
type ValidationConfig struct {
	AllowMatureContent     bool
	ContentReportThreshold int
	UserReportThreshold    int
}
