package moderation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/whisper/moderation/internal/entity"
	"github.com/whisper/moderation/internal/metrics"
)

// Enforcer writes verdicts to live entities.
//
// Nothing here is locked. Two verdicts for the same target may race on the
// read-modify-write of its status; Allowed is what keeps the loser from
// downgrading the winner.
type Enforcer struct {
	stores *Stores
	logger *zap.Logger
}

// NewEnforcer creates an Enforcer over the given stores.
func NewEnforcer(stores *Stores, logger *zap.Logger) *Enforcer {
	return &Enforcer{stores: stores, logger: logger.Named("enforcer")}
}

// Topic returns the target for a topic handle.
func (e *Enforcer) Topic(handle string) Target {
	return &topicTarget{stores: e.stores, handle: handle}
}

// Comment returns the target for a comment handle.
func (e *Enforcer) Comment(handle string) Target {
	return &commentTarget{stores: e.stores, handle: handle}
}

// Reply returns the target for a reply handle.
func (e *Enforcer) Reply(handle string) Target {
	return &replyTarget{stores: e.stores, handle: handle}
}

// UserProfile returns the target for a user's profile in an app.
func (e *Enforcer) UserProfile(appHandle, userHandle string) Target {
	return &profileTarget{stores: e.stores, appHandle: appHandle, userHandle: userHandle}
}

// Image returns the target for an image handle.
func (e *Enforcer) Image(handle string) Target {
	return &imageTarget{stores: e.stores, handle: handle}
}

// Content returns the target for a piece of content of the given type.
func (e *Enforcer) Content(contentType entity.ContentType, handle string) (Target, error) {
	switch contentType {
	case entity.ContentTopic:
		return e.Topic(handle), nil
	case entity.ContentComment:
		return e.Comment(handle), nil
	case entity.ContentReply:
		return e.Reply(handle), nil
	}
	return nil, fmt.Errorf("%w: content type %q", errUnknownTarget, contentType)
}

// Ban bans the target. Banning a deleted or already banned target is a
// no-op. Attached images are banned first.
func (e *Enforcer) Ban(ctx context.Context, t Target) error {
	ok, err := t.load(ctx)
	if err != nil {
		metrics.EnforcementTotal.WithLabelValues(t.label(), "ban", "error").Inc()
		return err
	}
	if !ok {
		e.logger.Info("ban skipped, target deleted", zap.Stringer("target", t))
		metrics.EnforcementTotal.WithLabelValues(t.label(), "ban", "noop").Inc()
		return nil
	}
	if t.status() == entity.StatusBanned {
		e.logger.Info("ban skipped, target already banned", zap.Stringer("target", t))
		metrics.EnforcementTotal.WithLabelValues(t.label(), "ban", "noop").Inc()
		return nil
	}
	if err := t.ban(ctx, e); err != nil {
		metrics.EnforcementTotal.WithLabelValues(t.label(), "ban", "error").Inc()
		return fmt.Errorf("ban %s: %w", t, err)
	}
	e.logger.Info("banned", zap.Stringer("target", t))
	metrics.EnforcementTotal.WithLabelValues(t.label(), "ban", "applied").Inc()
	return nil
}

// Tag overwrites the target's review status when Allowed permits it.
// A deleted target or a rejected transition is a no-op.
func (e *Enforcer) Tag(ctx context.Context, t Target, status entity.ReviewStatus) error {
	ok, err := t.load(ctx)
	if err != nil {
		metrics.EnforcementTotal.WithLabelValues(t.label(), "tag", "error").Inc()
		return err
	}
	if !ok {
		e.logger.Info("tag skipped, target deleted", zap.Stringer("target", t))
		metrics.EnforcementTotal.WithLabelValues(t.label(), "tag", "noop").Inc()
		return nil
	}
	current := t.status()
	if !Allowed(current, status) {
		e.logger.Info("tag blocked",
			zap.Stringer("target", t),
			zap.String("from", string(current)),
			zap.String("to", string(status)))
		metrics.EnforcementTotal.WithLabelValues(t.label(), "tag", "blocked").Inc()
		return nil
	}
	if err := t.tag(ctx, status); err != nil {
		metrics.EnforcementTotal.WithLabelValues(t.label(), "tag", "error").Inc()
		return fmt.Errorf("tag %s %s: %w", t, status, err)
	}
	e.logger.Info("tagged", zap.Stringer("target", t), zap.String("status", string(status)))
	metrics.EnforcementTotal.WithLabelValues(t.label(), "tag", "applied").Inc()
	return nil
}
