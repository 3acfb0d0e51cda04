package engine

import (
	"context"
	"errors"
	"time"

	"github.com/lazypower/crisp/internal/auth"
	"github.com/lazypower/crisp/internal/config"
	"github.com/lazypower/crisp/internal/engagement"
	"github.com/lazypower/crisp/internal/store"
	"github.com/sirupsen/logrus"
)

// ItemStore is the document store the engine mutates.
type ItemStore interface {
	CreateItem(ctx context.Context, item *engagement.ContentItem) error
	GetItem(ctx context.Context, id string) (*engagement.ContentItem, error)
	ReplaceItem(ctx context.Context, id string, mutate func(*engagement.ContentItem) error) (*engagement.ContentItem, error)
	ListItemIDs(ctx context.Context) ([]string, error)
}

// QuotaCounter is the per-user refresh allowance.
type QuotaCounter interface {
	Remaining(ctx context.Context, userID string) (int, error)
	Decrement(ctx context.Context, userID string) error
	ResetIfExpired(ctx context.Context, userID string) error
}

// Engine applies likes, unlikes and refreshes to content items and keeps
// their crispness current.
type Engine struct {
	Items    ItemStore
	Quota    QuotaCounter
	Identity auth.Identity
	Policy   engagement.Policy

	retryAttempts  int
	retryBaseDelay time.Duration
	log            *logrus.Entry
	now            func() time.Time
	stopCh         chan struct{}
}

// New creates a new Engine.
func New(items ItemStore, quota QuotaCounter, cfg config.EngagementConfig, logger *logrus.Logger) *Engine {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	window := cfg.DecayWindow
	if window <= 0 {
		window = engagement.DefaultDecayWindow
	}
	return &Engine{
		Items:    items,
		Quota:    quota,
		Identity: auth.ContextIdentity{},
		Policy: engagement.Policy{
			DecayWindow:     window,
			RelikeRefreshes: cfg.RelikeRefreshes,
		},
		retryAttempts:  attempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		log:            logger.WithField("component", "engine"),
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}
}

func (e *Engine) nowMs() int64 {
	return e.now().UnixMilli()
}

// CreateItem stores a new item with its derived fields computed. Its ledgers
// must be empty.
func (e *Engine) CreateItem(ctx context.Context, item *engagement.ContentItem) error {
	if err := item.CheckNew(); err != nil {
		return err
	}
	item.RecomputeAll(e.nowMs(), e.Policy)
	return e.Items.CreateItem(ctx, item)
}

// ImportLegacy converts an item from the legacy label shape and stores it.
// Imported records must be plausible as of now.
func (e *Engine) ImportLegacy(ctx context.Context, li engagement.LegacyItem) (*engagement.ContentItem, error) {
	now := e.nowMs()
	item := li.Reconcile(now, e.Policy, store.NewID)
	if err := item.CheckRecords(now); err != nil {
		return nil, err
	}
	if err := e.Items.CreateItem(ctx, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItem loads an item with crispness recomputed for the current time.
// Nothing is written.
func (e *Engine) GetItem(ctx context.Context, id string) (*engagement.ContentItem, error) {
	item, err := e.Items.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item.RecomputeAll(e.nowMs(), e.Policy)
	return item, nil
}

// QuotaStatus reports the user's remaining refreshes and, when the backend
// tracks it, the next rollover time.
func (e *Engine) QuotaStatus(ctx context.Context, userID string) (int, time.Time, error) {
	if err := e.Quota.ResetIfExpired(ctx, userID); err != nil {
		return 0, time.Time{}, err
	}
	remaining, err := e.Quota.Remaining(ctx, userID)
	if err != nil {
		return 0, time.Time{}, err
	}
	var resetAt time.Time
	if r, ok := e.Quota.(interface {
		ResetAt(context.Context, string) (time.Time, error)
	}); ok {
		if resetAt, err = r.ResetAt(ctx, userID); err != nil {
			return 0, time.Time{}, err
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, nil
}

// report logs the outcome of an operation. Domain outcomes are routine and
// logged at debug; anything else is an infrastructure failure.
func (e *Engine) report(op string, t engagement.Target, userID string, err error) {
	entry := e.log.WithFields(logrus.Fields{
		"op":     op,
		"target": t.String(),
		"user":   userID,
	})
	switch {
	case err == nil:
		entry.Debug("applied")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		entry.WithError(err).Info("abandoned by caller")
	case engagement.IsDomain(err):
		entry.WithField("code", engagement.Code(err)).Debug(err.Error())
	default:
		entry.WithError(err).Error("storage failure")
	}
}
