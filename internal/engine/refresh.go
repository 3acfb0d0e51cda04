package engine

import (
	"context"
	"fmt"

	"github.com/lazypower/crisp/internal/engagement"
	"github.com/sirupsen/logrus"
)

// Refresh restarts the decay clock of userID's own endorsement, paid from the
// daily quota. The quota is charged only after the item is committed; if the
// charge itself fails the refresh stands and the user is not charged.
func (e *Engine) Refresh(ctx context.Context, t engagement.Target, userID string) (*engagement.ContentItem, error) {
	if userID == "" {
		return nil, engagement.ErrUnauthenticated
	}

	item, err := e.refresh(ctx, t, userID)
	e.report("refresh", t, userID, err)
	return item, err
}

func (e *Engine) refresh(ctx context.Context, t engagement.Target, userID string) (*engagement.ContentItem, error) {
	if err := e.Quota.ResetIfExpired(ctx, userID); err != nil {
		return nil, fmt.Errorf("refresh quota: %w", err)
	}
	remaining, err := e.Quota.Remaining(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("refresh quota: %w", err)
	}
	if remaining <= 0 {
		return nil, &engagement.QuotaError{UserID: userID, Remaining: 0}
	}

	item, err := e.replace(ctx, t.ItemID, func(c *engagement.ContentItem) error {
		now := e.nowMs()
		label, err := c.LocateLabel(t.AnswerID, t.Label)
		if err != nil {
			return err
		}
		if err := label.ResetTimestamp(userID, now); err != nil {
			return err
		}
		label.Recompute(now, e.Policy.DecayWindow)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.Quota.Decrement(ctx, userID); err != nil {
		e.log.WithFields(logrus.Fields{
			"target": t.String(),
			"user":   userID,
		}).WithError(err).Warn("refresh committed but quota charge failed; not charging")
	}
	return item, nil
}

// RefreshOwn refreshes the endorsement of the user resolved from ctx.
func (e *Engine) RefreshOwn(ctx context.Context, t engagement.Target) (*engagement.ContentItem, error) {
	uid, err := e.Identity.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	return e.Refresh(ctx, t, uid)
}
