package moderation

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whisper/moderation/internal/entity"
	"github.com/whisper/moderation/internal/metrics"
)

// Callback paths, relative to Config.CallbackBaseURL.
const (
	ModerationCallbackPath = "/v1/callbacks/moderation/"
	ReportCallbackPath     = "/v1/callbacks/reports/"
)

// Config holds Service settings.
type Config struct {
	// CallbackBaseURL is the externally reachable base URL providers call
	// back on, e.g. "https://moderation.example.com".
	CallbackBaseURL string
}

// Deps are the collaborators a Service is built from. Throttle may be nil.
// Without Callbacks no callback is ever accepted.
type Deps struct {
	Stores    *Stores
	Callbacks *CallbackSigner
	Tracker   Tracker
	Reports   ReportStore
	Queue     Queue
	Throttle  Throttle
	Proactive Provider
	Reactive  Provider
	Logger    *zap.Logger
}

// Service is the entry point for moderation requests, abuse reports,
// provider callbacks and the queue workers that submit jobs.
type Service struct {
	cfg       Config
	stores    *Stores
	tracker   Tracker
	reports   ReportStore
	queue     Queue
	throttle  Throttle
	callbacks *CallbackSigner
	proactive Provider
	reactive  Provider
	enforcer  *Enforcer
	assembler *Assembler
	processor *Processor
	logger    *zap.Logger

	newHandle func() string
	now       func() time.Time
}

// NewService wires a Service from its dependencies.
func NewService(cfg Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	enforcer := NewEnforcer(deps.Stores, logger)
	return &Service{
		cfg:       cfg,
		stores:    deps.Stores,
		tracker:   deps.Tracker,
		reports:   deps.Reports,
		queue:     deps.Queue,
		throttle:  deps.Throttle,
		callbacks: deps.Callbacks,
		proactive: deps.Proactive,
		reactive:  deps.Reactive,
		enforcer:  enforcer,
		assembler: NewAssembler(NewImageGate(deps.Stores.Images, logger)),
		processor: NewProcessor(deps.Tracker, deps.Stores.AppConfig, enforcer, logger, deps.Proactive, deps.Reactive),
		logger:    logger.Named("service"),
		newHandle: func() string { return uuid.New().String() },
		now:       time.Now,
	}
}

// Enforcer returns the enforcer verdicts are applied through.
func (s *Service) Enforcer() *Enforcer { return s.enforcer }

func (s *Service) callback(path, handle string) string {
	u := strings.TrimRight(s.cfg.CallbackBaseURL, "/") + path + url.PathEscape(handle)
	if s.callbacks != nil {
		u += "?" + url.Values{CallbackTokenParam: {s.callbacks.Sign(handle)}}.Encode()
	}
	return u
}

// VerifyCallback reports whether token is the one issued in handle's
// callback URL.
func (s *Service) VerifyCallback(handle, token string) bool {
	return s.callbacks != nil && s.callbacks.Verify(handle, token)
}

func required(fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			return invalidf("%s is required", fields[i])
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Proactive intake
// ---------------------------------------------------------------------------

// CreateContentModerationRequest queues a topic, comment or reply for
// proactive review and returns the moderation handle.
func (s *Service) CreateContentModerationRequest(ctx context.Context, appHandle string, contentType entity.ContentType, contentHandle, userHandle string) (string, error) {
	if err := required("app handle", appHandle, "content handle", contentHandle, "user handle", userHandle); err != nil {
		return "", err
	}
	if entity.ParseContentType(string(contentType)) == entity.ContentUnknown {
		return "", invalidf("unsupported content type %q", contentType)
	}
	handle := s.newHandle()
	job := &ContentJob{
		Handle:          handle,
		AppHandle:       appHandle,
		ContentType:     contentType,
		ContentHandle:   contentHandle,
		UserHandle:      userHandle,
		CallbackAddress: s.callback(ModerationCallbackPath, handle),
	}
	if err := s.queue.EnqueueContentModeration(ctx, job); err != nil {
		return "", err
	}
	return handle, nil
}

// CreateImageModerationRequest queues a standalone image for proactive
// review and returns the moderation handle.
func (s *Service) CreateImageModerationRequest(ctx context.Context, appHandle, imageHandle string, imageKind entity.ImageKind, userHandle string) (string, error) {
	if err := required("app handle", appHandle, "image handle", imageHandle, "image kind", string(imageKind), "user handle", userHandle); err != nil {
		return "", err
	}
	handle := s.newHandle()
	job := &ImageJob{
		Handle:          handle,
		AppHandle:       appHandle,
		ImageHandle:     imageHandle,
		ImageKind:       imageKind,
		UserHandle:      userHandle,
		CallbackAddress: s.callback(ModerationCallbackPath, handle),
	}
	if err := s.queue.EnqueueImageModeration(ctx, job); err != nil {
		return "", err
	}
	return handle, nil
}

// CreateUserModerationRequest queues a user profile for proactive review and
// returns the moderation handle.
func (s *Service) CreateUserModerationRequest(ctx context.Context, appHandle, userHandle string) (string, error) {
	if err := required("app handle", appHandle, "user handle", userHandle); err != nil {
		return "", err
	}
	handle := s.newHandle()
	job := &UserJob{
		Handle:          handle,
		AppHandle:       appHandle,
		UserHandle:      userHandle,
		CallbackAddress: s.callback(ModerationCallbackPath, handle),
	}
	if err := s.queue.EnqueueUserModeration(ctx, job); err != nil {
		return "", err
	}
	return handle, nil
}

// ---------------------------------------------------------------------------
// Reactive intake
// ---------------------------------------------------------------------------

// ContentReport is an abuse report against a topic, comment or reply.
type ContentReport struct {
	AppHandle          string
	ContentType        entity.ContentType
	ContentHandle      string
	ReportedUserHandle string
	ReporterHandle     string
	Reason             string
}

// UserReport is an abuse report against a user.
type UserReport struct {
	AppHandle          string
	ReportedUserHandle string
	ReporterHandle     string
	Reason             string
}

// CreateContentReport stores the report and queues a review when the count of
// reports against the content reaches the app's threshold.
func (s *Service) CreateContentReport(ctx context.Context, r ContentReport) (*entity.ReportEntry, error) {
	if err := required("app handle", r.AppHandle, "content handle", r.ContentHandle,
		"reported user handle", r.ReportedUserHandle, "reporter handle", r.ReporterHandle); err != nil {
		return nil, err
	}
	if entity.ParseContentType(string(r.ContentType)) == entity.ContentUnknown {
		return nil, invalidf("unsupported content type %q", r.ContentType)
	}
	return s.createReport(ctx, &entity.ReportEntry{
		Kind:               entity.ReportContent,
		AppHandle:          r.AppHandle,
		ContentType:        r.ContentType,
		ContentHandle:      r.ContentHandle,
		ReportedUserHandle: r.ReportedUserHandle,
		ReporterHandle:     r.ReporterHandle,
		Reason:             r.Reason,
	})
}

// CreateUserReport stores the report and queues a review when the count of
// reports against the user reaches the app's threshold.
func (s *Service) CreateUserReport(ctx context.Context, r UserReport) (*entity.ReportEntry, error) {
	if err := required("app handle", r.AppHandle, "reported user handle", r.ReportedUserHandle,
		"reporter handle", r.ReporterHandle); err != nil {
		return nil, err
	}
	return s.createReport(ctx, &entity.ReportEntry{
		Kind:               entity.ReportUser,
		AppHandle:          r.AppHandle,
		ReportedUserHandle: r.ReportedUserHandle,
		ReporterHandle:     r.ReporterHandle,
		Reason:             r.Reason,
	})
}

func (s *Service) createReport(ctx context.Context, entry *entity.ReportEntry) (*entity.ReportEntry, error) {
	if !entity.ValidReason(entry.Reason) {
		return nil, invalidf("invalid reason %q", entry.Reason)
	}
	kind := string(entry.Kind)

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, entry.AppHandle, entry.ReporterHandle)
		if err != nil {
			s.logger.Warn("reporter throttle unavailable", zap.Error(err))
		}
		if !ok {
			metrics.ReportsTotal.WithLabelValues(kind, "throttled").Inc()
			return nil, ErrRateLimited
		}
	}

	entry.ReportHandle = s.newHandle()
	entry.CreatedAt = s.now().UTC()
	if err := s.reports.CreateReport(ctx, entry); err != nil {
		return nil, err
	}
	metrics.ReportsTotal.WithLabelValues(kind, "received").Inc()

	count, err := s.reports.CountReports(ctx, entry)
	if err != nil {
		return nil, err
	}
	cfg, err := s.stores.AppConfig.ReadValidationConfig(ctx, entry.AppHandle)
	if err != nil {
		return nil, err
	}
	threshold := ReportThreshold(cfg, entry.Kind)

	log := s.logger.With(
		zap.String("report", entry.ReportHandle),
		zap.String("kind", kind),
		zap.String("target", entry.TargetHandle()),
		zap.Int("count", count),
		zap.Int("threshold", threshold))

	if !Admit(count, threshold) {
		log.Info("report stored, below review threshold")
		return entry, nil
	}

	handle := s.newHandle()
	job := &ReportJob{
		Handle:          handle,
		ReportHandle:    entry.ReportHandle,
		AppHandle:       entry.AppHandle,
		CallbackAddress: s.callback(ReportCallbackPath, handle),
	}
	if err := s.queue.EnqueueReportReview(ctx, job); err != nil {
		return nil, err
	}
	metrics.ReportsTotal.WithLabelValues(kind, "admitted").Inc()
	log.Info("report admitted for review")
	return entry, nil
}

// ---------------------------------------------------------------------------
// Callbacks
// ---------------------------------------------------------------------------

// ProcessModerationResult applies a proactive provider's callback.
func (s *Service) ProcessModerationResult(ctx context.Context, handle string, raw []byte) error {
	if err := required("handle", handle); err != nil {
		return err
	}
	return s.processor.Process(ctx, handle, raw)
}

// ProcessReportResult applies a reactive provider's callback for the review
// handle minted when the report was admitted. The transaction already
// carries the synchronous submit response; it is overwritten.
func (s *Service) ProcessReportResult(ctx context.Context, handle string, raw []byte) error {
	if err := required("handle", handle); err != nil {
		return err
	}
	return s.processor.Process(ctx, handle, raw)
}

// ---------------------------------------------------------------------------
// Queue workers
//
// Handlers log and absorb every failure: an error escaping here would only
// take down the consumer.
// ---------------------------------------------------------------------------

// HandleContentJob submits a topic, comment or reply to the proactive provider.
func (s *Service) HandleContentJob(ctx context.Context, job *ContentJob) {
	target, err := s.enforcer.Content(job.ContentType, job.ContentHandle)
	if err != nil {
		s.logger.Error("content job", zap.String("handle", job.Handle), zap.Error(err))
		return
	}
	s.submit(ctx, s.proactive, target, &Submission{
		Handle:          job.Handle,
		AppHandle:       job.AppHandle,
		Kind:            entity.KindContentText,
		CallbackAddress: job.CallbackAddress,
	}, &entity.Record{
		ContentType:   job.ContentType,
		ContentHandle: job.ContentHandle,
		UserHandle:    job.UserHandle,
	})
}

// HandleImageJob submits a standalone image to the proactive provider.
func (s *Service) HandleImageJob(ctx context.Context, job *ImageJob) {
	s.submit(ctx, s.proactive, s.enforcer.Image(job.ImageHandle), &Submission{
		Handle:          job.Handle,
		AppHandle:       job.AppHandle,
		Kind:            entity.KindContentImage,
		CallbackAddress: job.CallbackAddress,
	}, &entity.Record{
		ContentType: entity.ContentUnknown,
		UserHandle:  job.UserHandle,
		ImageHandle: job.ImageHandle,
		ImageKind:   job.ImageKind,
	})
}

// HandleUserJob submits a user profile to the proactive provider.
func (s *Service) HandleUserJob(ctx context.Context, job *UserJob) {
	s.submit(ctx, s.proactive, s.enforcer.UserProfile(job.AppHandle, job.UserHandle), &Submission{
		Handle:          job.Handle,
		AppHandle:       job.AppHandle,
		Kind:            entity.KindUserProfile,
		CallbackAddress: job.CallbackAddress,
	}, &entity.Record{
		ContentType: entity.ContentUnknown,
		UserHandle:  job.UserHandle,
		ImageKind:   entity.ImageKindUserPhoto,
	})
}

// HandleReportJob submits a reported target to the reactive provider unless
// the job was already submitted. The transaction is keyed by the job's review
// handle, which is never shown to the reporter.
//
// The existence check is not a lock. Two deliveries racing through it can
// both submit; the second CreateSubmission then fails on the handle and is
// logged. This is rare and harmless enough that it is left alone.
func (s *Service) HandleReportJob(ctx context.Context, job *ReportJob) {
	log := s.logger.With(zap.String("report", job.ReportHandle), zap.String("handle", job.Handle))
	if job.Handle == "" {
		log.Error("report job without review handle")
		return
	}

	exists, err := s.tracker.TransactionExists(ctx, job.Handle)
	if err != nil {
		log.Error("check existing submission", zap.Error(err))
		return
	}
	if exists {
		log.Info("report already submitted")
		return
	}

	entry, err := s.reports.ReadReport(ctx, job.ReportHandle)
	if err != nil {
		log.Error("read report", zap.Error(err))
		return
	}
	if entry == nil {
		log.Error("report not found")
		return
	}

	sub := &Submission{
		Handle:          job.Handle,
		AppHandle:       entry.AppHandle,
		Reason:          entry.Reason,
		ReportedAt:      entry.CreatedAt,
		CallbackAddress: job.CallbackAddress,
	}
	rec := &entity.Record{UserHandle: entry.ReportedUserHandle}

	var target Target
	switch entry.Kind {
	case entity.ReportUser:
		target = s.enforcer.UserProfile(entry.AppHandle, entry.ReportedUserHandle)
		sub.Kind = entity.KindUserProfile
		rec.ContentType = entity.ContentUnknown
		rec.ImageKind = entity.ImageKindUserPhoto
	default:
		target, err = s.enforcer.Content(entry.ContentType, entry.ContentHandle)
		if err != nil {
			log.Error("report target", zap.Error(err))
			return
		}
		sub.Kind = entity.KindContentText
		rec.ContentType = entry.ContentType
		rec.ContentHandle = entry.ContentHandle
	}
	s.submit(ctx, s.reactive, target, sub, rec)
}

// submit assembles the target, sends it to p and records the transaction.
func (s *Service) submit(ctx context.Context, p Provider, target Target, sub *Submission, rec *entity.Record) {
	kind := string(sub.Kind)
	log := s.logger.With(
		zap.String("handle", sub.Handle),
		zap.String("provider", p.Name()),
		zap.Stringer("target", target))

	payload, err := s.assembler.Assemble(ctx, target)
	if errors.Is(err, ErrTargetGone) || errors.Is(err, ErrEmptyPayload) {
		log.Info("submission abandoned", zap.Error(err))
		metrics.SubmissionsTotal.WithLabelValues(p.Name(), kind, "abandoned").Inc()
		return
	}
	if err != nil {
		log.Error("assemble payload", zap.Error(err))
		metrics.SubmissionsTotal.WithLabelValues(p.Name(), kind, "failed").Inc()
		return
	}

	sub.Texts = payload.Texts
	if payload.ImageHandle != "" {
		url, err := s.stores.Images.ReadImageCDNURL(ctx, payload.ImageHandle)
		switch {
		case err != nil:
			log.Warn("image url lookup failed, submitting without image", zap.Error(err))
		case url == "":
			log.Info("image has no url, submitting without image", zap.String("image", payload.ImageHandle))
		default:
			sub.ImageHandle = payload.ImageHandle
			sub.ImageURL = url
		}
	}
	if len(sub.Texts) == 0 && sub.ImageURL == "" {
		log.Info("submission abandoned", zap.Error(ErrEmptyPayload))
		metrics.SubmissionsTotal.WithLabelValues(p.Name(), kind, "abandoned").Inc()
		return
	}

	receipt, err := p.Submit(ctx, sub)
	if err != nil {
		log.Error("provider submit", zap.Error(err))
		metrics.SubmissionsTotal.WithLabelValues(p.Name(), kind, "failed").Inc()
		return
	}

	now := s.now().UTC()
	tx := &entity.Transaction{
		Handle:          sub.Handle,
		AppHandle:       sub.AppHandle,
		Kind:            sub.Kind,
		Provider:        p.Name(),
		SubmittedAt:     now,
		RequestPayload:  receipt.Request,
		ProviderJobID:   receipt.JobID,
		CallbackAddress: sub.CallbackAddress,
	}
	if receipt.Response != nil {
		tx.ResponsePayload = receipt.Response
		tx.RespondedAt = &now
	}
	rec.Handle = sub.Handle
	rec.AppHandle = sub.AppHandle
	if rec.ImageHandle == "" {
		rec.ImageHandle = sub.ImageHandle
	}
	rec.Status = entity.RecordPending

	if err := s.tracker.CreateSubmission(ctx, tx, rec); err != nil {
		// The provider already holds the job; without the transaction its
		// callback will be rejected as unknown.
		log.Error("persist submission", zap.String("job", receipt.JobID), zap.Error(err))
		metrics.SubmissionsTotal.WithLabelValues(p.Name(), kind, "failed").Inc()
		return
	}
	metrics.SubmissionsTotal.WithLabelValues(p.Name(), kind, "submitted").Inc()
	log.Info("submitted", zap.String("job", receipt.JobID))

	if receipt.Final {
		if err := s.processor.Process(ctx, sub.Handle, receipt.Response); err != nil {
			log.Error("process synchronous verdict", zap.Error(err))
		}
	}
}
