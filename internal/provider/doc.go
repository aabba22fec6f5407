// Package provider implements the review backends content is submitted to:
// an asynchronous classification service, a report review service that
// answers with policy codes, and an in-process keyword filter used when no
// remote endpoint is configured.
package provider

import "github.com/whisper/moderation/internal/moderation"

var (
	_ moderation.Provider = (*Classifier)(nil)
	_ moderation.Provider = (*Review)(nil)
	_ moderation.Provider = (*Local)(nil)
)
