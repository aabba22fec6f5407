package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/whisper/moderation/internal/entity"
	"github.com/whisper/moderation/internal/moderation"
)

// ClassifierName is the provider name recorded for classifier jobs.
const ClassifierName = "classifier"

// ErrRejected is returned when a provider answers a submission with a
// non-2xx status.
var ErrRejected = errors.New("provider: submission rejected")

// Classifier submits content to an asynchronous classification service. The
// service acknowledges with a job id and posts the result to the callback
// address later.
type Classifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewClassifier returns a Classifier for the service at endpoint.
func NewClassifier(endpoint, apiKey string, client *http.Client) *Classifier {
	return &Classifier{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   client,
	}
}

type classifierJob struct {
	Texts       []string `json:"texts"`
	ImageURL    string   `json:"image_url,omitempty"`
	CallbackURL string   `json:"callback_url"`
}

type classifierAck struct {
	JobID string `json:"job_id"`
}

type classifierResult struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	Classification struct {
		Adult     bool `json:"adult"`
		Racy      bool `json:"racy"`
		Offensive bool `json:"offensive"`
	} `json:"classification"`
}

func (c *Classifier) Name() string { return ClassifierName }

func (c *Classifier) Submit(ctx context.Context, sub *moderation.Submission) (*moderation.Receipt, error) {
	body, err := json.Marshal(classifierJob{
		Texts:       sub.Texts,
		ImageURL:    sub.ImageURL,
		CallbackURL: sub.CallbackAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: classifier: marshal job: %w", err)
	}

	resp, err := postJSON(ctx, c.client, c.endpoint+"/jobs", c.apiKey, body)
	if err != nil {
		return nil, fmt.Errorf("provider: classifier: %w", err)
	}

	var ack classifierAck
	if err := json.Unmarshal(resp, &ack); err != nil {
		return nil, fmt.Errorf("provider: classifier: decode ack: %w", err)
	}
	if ack.JobID == "" {
		return nil, fmt.Errorf("provider: classifier: ack without job id")
	}
	return &moderation.Receipt{JobID: ack.JobID, Request: body}, nil
}

func (c *Classifier) ParseVerdict(raw []byte) (moderation.Verdict, error) {
	var r classifierResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return moderation.Verdict{}, fmt.Errorf("provider: classifier: decode result: %w", err)
	}
	switch r.Status {
	case "failed":
		return moderation.Verdict{Failed: true}, nil
	case "completed":
	default:
		return moderation.Verdict{}, fmt.Errorf("provider: classifier: unknown status %q", r.Status)
	}

	cls := r.Classification
	switch {
	case cls.Adult, cls.Offensive:
		return moderation.Verdict{Severity: entity.StatusBanned}, nil
	case cls.Racy:
		return moderation.Verdict{Severity: entity.StatusMature}, nil
	}
	return moderation.Verdict{Severity: entity.StatusClean}, nil
}

// postJSON posts body and returns the response body of a 2xx answer.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrRejected, url, resp.StatusCode)
	}
	return data, nil
}
