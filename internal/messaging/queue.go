package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/whisper/moderation/internal/moderation"
)

// Publisher is the part of NATSClient the queue needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Queue publishes moderation jobs as JSON.
type Queue struct {
	pub Publisher
}

// NewQueue returns a Queue publishing through pub.
func NewQueue(pub Publisher) *Queue {
	return &Queue{pub: pub}
}

func (q *Queue) publish(subject string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("messaging: marshal %s job: %w", subject, err)
	}
	return q.pub.Publish(subject, data)
}

func (q *Queue) EnqueueContentModeration(_ context.Context, job *moderation.ContentJob) error {
	return q.publish(SubjectContent, job)
}

func (q *Queue) EnqueueImageModeration(_ context.Context, job *moderation.ImageJob) error {
	return q.publish(SubjectImage, job)
}

func (q *Queue) EnqueueUserModeration(_ context.Context, job *moderation.UserJob) error {
	return q.publish(SubjectUser, job)
}

func (q *Queue) EnqueueReportReview(_ context.Context, job *moderation.ReportJob) error {
	return q.publish(SubjectReport, job)
}

// Handlers process decoded jobs. moderation.Service implements it.
type Handlers interface {
	HandleContentJob(ctx context.Context, job *moderation.ContentJob)
	HandleImageJob(ctx context.Context, job *moderation.ImageJob)
	HandleUserJob(ctx context.Context, job *moderation.UserJob)
	HandleReportJob(ctx context.Context, job *moderation.ReportJob)
}

// Workers consumes job subjects and hands each job to Handlers.
type Workers struct {
	handlers Handlers
	logger   *zap.Logger
}

// NewWorkers returns Workers dispatching to handlers.
func NewWorkers(handlers Handlers, logger *zap.Logger) *Workers {
	return &Workers{handlers: handlers, logger: logger.Named("workers")}
}

// Subjects lists every subject Workers consumes.
var Subjects = []string{SubjectContent, SubjectImage, SubjectUser, SubjectReport}

// Start subscribes concurrency members of group to each job subject. ctx is
// passed to every handler; cancel it to abandon in-flight work.
func (w *Workers) Start(ctx context.Context, client *NATSClient, group string, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	for _, subject := range Subjects {
		for i := 0; i < concurrency; i++ {
			err := client.QueueSubscribe(subject, group, func(msg *nats.Msg) {
				if err := w.dispatch(ctx, msg.Subject, msg.Data); err != nil {
					w.logger.Error("drop job", zap.String("subject", msg.Subject), zap.Error(err))
				}
			})
			if err != nil {
				return err
			}
		}
	}
	w.logger.Info("consuming jobs",
		zap.Strings("subjects", Subjects),
		zap.String("group", group),
		zap.Int("concurrency", concurrency))
	return nil
}

// dispatch decodes data according to subject and runs the matching handler.
func (w *Workers) dispatch(ctx context.Context, subject string, data []byte) error {
	switch subject {
	case SubjectContent:
		var job moderation.ContentJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode content job: %w", err)
		}
		w.handlers.HandleContentJob(ctx, &job)
	case SubjectImage:
		var job moderation.ImageJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode image job: %w", err)
		}
		w.handlers.HandleImageJob(ctx, &job)
	case SubjectUser:
		var job moderation.UserJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode user job: %w", err)
		}
		w.handlers.HandleUserJob(ctx, &job)
	case SubjectReport:
		var job moderation.ReportJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode report job: %w", err)
		}
		w.handlers.HandleReportJob(ctx, &job)
	default:
		return fmt.Errorf("unexpected subject %q", subject)
	}
	return nil
}
