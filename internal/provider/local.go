package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/whisper/moderation/internal/entity"
	"github.com/whisper/moderation/internal/moderation"
)

// LocalName is the provider name recorded for in-process reviews.
const LocalName = "local"

// Local reviews text in-process with a Filter. It answers synchronously and
// never calls back. Images are not inspected.
type Local struct {
	filter *Filter
}

// NewLocal returns a Local provider backed by filter.
func NewLocal(filter *Filter) *Local {
	return &Local{filter: filter}
}

type localRequest struct {
	Texts    []string `json:"texts"`
	ImageURL string   `json:"image_url,omitempty"`
}

type localVerdict struct {
	Severity string `json:"severity"`
	Reason   string `json:"reason,omitempty"`
	Term     string `json:"term,omitempty"`
}

func (l *Local) Name() string { return LocalName }

func (l *Local) Submit(_ context.Context, sub *moderation.Submission) (*moderation.Receipt, error) {
	req, err := json.Marshal(localRequest{Texts: sub.Texts, ImageURL: sub.ImageURL})
	if err != nil {
		return nil, fmt.Errorf("provider: local: marshal request: %w", err)
	}
	m := l.filter.CheckAll(sub.Texts)
	resp, err := json.Marshal(localVerdict{Severity: string(m.Severity), Reason: m.Reason, Term: m.Term})
	if err != nil {
		return nil, fmt.Errorf("provider: local: marshal verdict: %w", err)
	}
	return &moderation.Receipt{Request: req, Response: resp, Final: true}, nil
}

func (l *Local) ParseVerdict(raw []byte) (moderation.Verdict, error) {
	var v localVerdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return moderation.Verdict{}, fmt.Errorf("provider: local: %w", err)
	}
	return moderation.Verdict{Severity: entity.ReviewStatus(v.Severity)}, nil
}
