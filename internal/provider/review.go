package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/whisper/moderation/internal/entity"
	"github.com/whisper/moderation/internal/moderation"
)

// ReviewName is the provider name recorded for report reviews.
const ReviewName = "review"

// Policy code prefixes. Other codes, including those outside the EA
// namespace, count as clean.
const (
	policyNotAllowed = "EA-NA-"
	policyMature     = "EA-MA-"
)

// maxReviewTexts is how many text fields a review request carries.
const maxReviewTexts = 3

// Review submits reported content to a human-assisted review service. The
// submit call answers synchronously with an acknowledgement; the decision
// arrives on the callback address as a list of policy codes.
type Review struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewReview returns a Review for the service at endpoint.
func NewReview(endpoint, apiKey string, client *http.Client) *Review {
	return &Review{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   client,
	}
}

type reviewRequest struct {
	Reason      string `json:"reason"`
	CreatedAt   string `json:"created_at"`
	CallbackURL string `json:"callback_url"`
	Text1       string `json:"text1,omitempty"`
	Text2       string `json:"text2,omitempty"`
	Text3       string `json:"text3,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type reviewResult struct {
	Status      string   `json:"status"`
	PolicyCodes []string `json:"policy_codes"`
}

func (r *Review) Name() string { return ReviewName }

func (r *Review) Submit(ctx context.Context, sub *moderation.Submission) (*moderation.Receipt, error) {
	var texts [maxReviewTexts]string
	copy(texts[:], sub.Texts)
	if len(sub.Texts) > maxReviewTexts {
		// Extra texts share the last slot.
		texts[maxReviewTexts-1] = strings.Join(sub.Texts[maxReviewTexts-1:], "\n")
	}

	body, err := json.Marshal(reviewRequest{
		Reason:      sub.Reason,
		CreatedAt:   sub.ReportedAt.UTC().Format(time.RFC3339),
		CallbackURL: sub.CallbackAddress,
		Text1:       texts[0],
		Text2:       texts[1],
		Text3:       texts[2],
		ImageURL:    sub.ImageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: review: marshal request: %w", err)
	}

	resp, err := postJSON(ctx, r.client, r.endpoint+"/reviews", r.apiKey, body)
	if err != nil {
		return nil, fmt.Errorf("provider: review: %w", err)
	}
	return &moderation.Receipt{Request: body, Response: resp}, nil
}

func (r *Review) ParseVerdict(raw []byte) (moderation.Verdict, error) {
	var res reviewResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return moderation.Verdict{}, fmt.Errorf("provider: review: decode result: %w", err)
	}
	switch res.Status {
	case "failed":
		return moderation.Verdict{Failed: true}, nil
	case "completed":
	default:
		return moderation.Verdict{}, fmt.Errorf("provider: review: unknown status %q", res.Status)
	}

	switch {
	case notAllowed(res.PolicyCodes):
		return moderation.Verdict{Severity: entity.StatusBanned}, nil
	case mature(res.PolicyCodes):
		return moderation.Verdict{Severity: entity.StatusMature}, nil
	}
	return moderation.Verdict{Severity: entity.StatusClean}, nil
}

func notAllowed(codes []string) bool { return anyCode(codes, policyNotAllowed) }

func mature(codes []string) bool { return anyCode(codes, policyMature) }

func anyCode(codes []string, prefix string) bool {
	for _, code := range codes {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(code)), prefix) {
			return true
		}
	}
	return false
}
