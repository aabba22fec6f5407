package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/moderation/internal/entity"
	"github.com/whisper/moderation/internal/metrics"
)

// Processor applies provider verdicts to the entities they concern.
type Processor struct {
	tracker   Tracker
	appConfig AppConfigStore
	enforcer  *Enforcer
	providers map[string]Provider
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessor creates a Processor. Verdicts are parsed by the provider whose
// Name matches the transaction's provider.
func NewProcessor(tracker Tracker, appConfig AppConfigStore, enforcer *Enforcer, logger *zap.Logger, providers ...Provider) *Processor {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Processor{
		tracker:   tracker,
		appConfig: appConfig,
		enforcer:  enforcer,
		providers: byName,
		logger:    logger.Named("processor"),
		now:       time.Now,
	}
}

// Process records the provider response for handle and enforces its verdict.
//
// An unknown handle returns ErrNotFound. An unusable verdict or an unknown
// target marks the record Failed and returns nil. Store failures mark the
// record Failed where possible and are returned. Processing the same handle
// again overwrites the stored response and re-applies the verdict; the
// severity guard keeps a repeated or stale verdict from doing damage.
func (p *Processor) Process(ctx context.Context, handle string, raw []byte) error {
	start := p.now()
	defer func() { metrics.ProcessingLatency.Observe(time.Since(start).Seconds()) }()

	tx, err := p.tracker.ReadTransaction(ctx, handle)
	if err != nil {
		return fmt.Errorf("moderation: read transaction %s: %w", handle, err)
	}
	if tx == nil || tx.Handle != handle {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}

	if err := p.tracker.RecordResponse(ctx, handle, raw, p.now()); err != nil {
		return fmt.Errorf("moderation: record response %s: %w", handle, err)
	}

	log := p.logger.With(zap.String("handle", handle), zap.String("provider", tx.Provider))

	verdict, err := p.verdict(tx, raw)
	if err != nil {
		log.Error("unusable verdict", zap.Error(err))
		metrics.VerdictsTotal.WithLabelValues(tx.Provider, string(entity.StatusFailed)).Inc()
		return p.finish(ctx, handle, entity.RecordFailed)
	}
	if verdict.Failed {
		log.Info("provider could not complete review")
		metrics.VerdictsTotal.WithLabelValues(tx.Provider, string(entity.StatusFailed)).Inc()
		return p.finish(ctx, handle, entity.RecordFailed)
	}
	metrics.VerdictsTotal.WithLabelValues(tx.Provider, string(verdict.Severity)).Inc()

	rec, err := p.tracker.ReadRecord(ctx, handle)
	if err != nil {
		return fmt.Errorf("moderation: read record %s: %w", handle, err)
	}
	if rec == nil {
		return fmt.Errorf("%w: record %s", ErrNotFound, handle)
	}

	target, err := p.target(tx, rec)
	if err != nil {
		log.Error("cannot resolve target", zap.Error(err))
		return p.finish(ctx, handle, entity.RecordFailed)
	}

	if err := p.enforce(ctx, tx.AppHandle, target, verdict.Severity); err != nil {
		log.Error("enforcement failed", zap.Stringer("target", target), zap.Error(err))
		if ferr := p.finish(ctx, handle, entity.RecordFailed); ferr != nil {
			log.Error("mark failed", zap.Error(ferr))
		}
		return fmt.Errorf("moderation: enforce %s: %w", handle, err)
	}

	log.Info("verdict applied",
		zap.Stringer("target", target),
		zap.String("severity", string(verdict.Severity)))
	return p.finish(ctx, handle, entity.RecordCompleted)
}

// verdict parses raw with the transaction's provider and checks that the
// severity is one enforcement understands.
func (p *Processor) verdict(tx *entity.Transaction, raw []byte) (v Verdict, err error) {
	provider, ok := p.providers[tx.Provider]
	if !ok {
		return Verdict{}, fmt.Errorf("no provider named %q", tx.Provider)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse verdict: %v", r)
		}
	}()
	v, err = provider.ParseVerdict(raw)
	if err != nil {
		return Verdict{}, err
	}
	if v.Failed {
		return v, nil
	}
	switch v.Severity {
	case entity.StatusClean, entity.StatusMature, entity.StatusBanned:
		return v, nil
	}
	return Verdict{}, fmt.Errorf("unrecognized severity %q", v.Severity)
}

// target resolves the record back to the entity it concerns.
func (p *Processor) target(tx *entity.Transaction, rec *entity.Record) (Target, error) {
	switch tx.Kind {
	case entity.KindUserProfile:
		if rec.UserHandle == "" {
			return nil, fmt.Errorf("%w: user record without user handle", errUnknownTarget)
		}
		return p.enforcer.UserProfile(rec.AppHandle, rec.UserHandle), nil
	case entity.KindContentImage:
		if rec.ImageHandle == "" {
			return nil, fmt.Errorf("%w: image record without image handle", errUnknownTarget)
		}
		return p.enforcer.Image(rec.ImageHandle), nil
	case entity.KindContentText:
		return p.enforcer.Content(rec.ContentType, rec.ContentHandle)
	}
	return nil, fmt.Errorf("%w: transaction kind %q", errUnknownTarget, tx.Kind)
}

// enforce bans or tags target according to severity and the app's policy on
// mature content.
func (p *Processor) enforce(ctx context.Context, appHandle string, target Target, severity entity.ReviewStatus) error {
	allowMature := false
	if severity == entity.StatusMature {
		cfg, err := p.appConfig.ReadValidationConfig(ctx, appHandle)
		if err != nil {
			return fmt.Errorf("read validation config %s: %w", appHandle, err)
		}
		allowMature = cfg != nil && cfg.AllowMatureContent
	}

	switch {
	case severity == entity.StatusBanned, severity == entity.StatusMature && !allowMature:
		return p.enforcer.Ban(ctx, target)
	default:
		return p.enforcer.Tag(ctx, target, severity)
	}
}

func (p *Processor) finish(ctx context.Context, handle string, status entity.RecordStatus) error {
	if err := p.tracker.UpdateRecordStatus(ctx, handle, status); err != nil {
		return fmt.Errorf("moderation: update record %s: %w", handle, err)
	}
	return nil
}

// IsNotFound reports whether err means a callback named an unknown transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
