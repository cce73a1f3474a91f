package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/api"
	"storefront/internal/domain"
	"storefront/internal/notify"

	"go.uber.org/zap"
)

var ErrEmptyReply = errors.New("reply must not be empty")

// ReviewBackend performs admin review moderation calls
type ReviewBackend interface {
	ReplyToReview(ctx context.Context, productID, reviewID, reply string) error
	DeleteReview(ctx context.Context, productID, reviewID string) error
}

// Gate authorizes admin calls and reacts to rejected sessions
type Gate interface {
	RequireRole(ctx context.Context, role domain.Role) (domain.Session, error)
	HandleAuthFailure(ctx context.Context, cause error)
}

// Moderator lets admins answer and remove reviews
type Moderator struct {
	backend  ReviewBackend
	gate     Gate
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewModerator creates a Moderator
func NewModerator(backend ReviewBackend, gate Gate, notifier notify.Notifier, logger *zap.Logger) *Moderator {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Moderator{backend: backend, gate: gate, notifier: notifier, logger: logger}
}

// ReplyToReview sets the admin reply of a review
func (m *Moderator) ReplyToReview(ctx context.Context, productID, reviewID, reply string) error {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return ErrEmptyReply
	}
	if _, err := m.gate.RequireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}

	if err := m.backend.ReplyToReview(ctx, productID, reviewID, reply); err != nil {
		return m.fail(ctx, "failed to reply to review", err)
	}

	m.notifier.Notify(notify.LevelSuccess, "Reply saved")
	return nil
}

// DeleteReview removes a review
func (m *Moderator) DeleteReview(ctx context.Context, productID, reviewID string) error {
	if _, err := m.gate.RequireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}

	if err := m.backend.DeleteReview(ctx, productID, reviewID); err != nil {
		return m.fail(ctx, "failed to delete review", err)
	}

	m.notifier.Notify(notify.LevelSuccess, "Review deleted")
	return nil
}

func (m *Moderator) fail(ctx context.Context, msg string, err error) error {
	m.logger.Error("Review moderation failed", zap.String("op", msg), zap.Error(err))
	if api.IsAuth(err) {
		m.gate.HandleAuthFailure(ctx, err)
	} else {
		m.notifier.Notify(notify.LevelError, strings.ToUpper(msg[:1])+msg[1:])
	}
	return fmt.Errorf("%s: %w", msg, err)
}
