package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/crisp/internal/engagement"
	"github.com/lazypower/crisp/internal/store"
	"github.com/sirupsen/logrus"
)

// replace runs a read-modify-write against one item, retrying version
// conflicts with exponential backoff. mutate may run more than once and must
// derive everything from the item it is handed.
func (e *Engine) replace(ctx context.Context, id string, mutate func(*engagement.ContentItem) error) (*engagement.ContentItem, error) {
	delay := e.retryBaseDelay
	for attempt := 1; ; attempt++ {
		item, err := e.Items.ReplaceItem(ctx, id, mutate)
		if !errors.Is(err, store.ErrConflict) {
			return item, err
		}
		if attempt >= e.retryAttempts {
			return nil, fmt.Errorf("item %s after %d attempts: %w", id, attempt, engagement.ErrConcurrentModification)
		}

		e.log.WithFields(logrus.Fields{"item": id, "attempt": attempt}).Debug("version conflict, retrying")
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}
}
