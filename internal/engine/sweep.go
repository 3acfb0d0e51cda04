package engine

// Crispness is always recomputed on read and on every write, so the stored
// value only goes stale for items nobody touches. The sweep persists fresh
// values for those so readers of the raw document see roughly current scores.

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/lazypower/crisp/internal/engagement"
)

var errUnchanged = errors.New("crispness unchanged")

// Sweep recomputes and stores crispness for every item whose derived fields
// drifted. Returns the number of items written.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	ids, err := e.Items.ListItemIDs(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, id := range ids {
		_, err := e.replace(ctx, id, func(c *engagement.ContentItem) error {
			before := snapshot(c)
			c.RecomputeAll(e.nowMs(), e.Policy)
			if reflect.DeepEqual(snapshot(c), before) {
				return errUnchanged
			}
			return nil
		})
		switch {
		case err == nil:
			updated++
		case errors.Is(err, errUnchanged), errors.Is(err, engagement.ErrNotFound):
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return updated, err
		default:
			e.log.WithField("item", id).WithError(err).Warn("sweep: skipping item")
		}
	}
	return updated, nil
}

type derived struct {
	crispness float64
	count     int
	users     []string
}

// snapshot captures the derived fields of an item for change detection.
func snapshot(c *engagement.ContentItem) []derived {
	var out []derived
	for _, a := range c.Answers {
		for _, l := range a.Labels {
			out = append(out, derived{l.Crispness, l.Count, l.UserIDList})
		}
	}
	return out
}

// StartSweepTimer runs a sweep on startup and then every interval.
func (e *Engine) StartSweepTimer(interval time.Duration) {
	if interval <= 0 {
		return
	}

	e.sweepAndLog()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.sweepAndLog()
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *Engine) sweepAndLog() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if updated, err := e.Sweep(ctx); err != nil {
		e.log.WithError(err).Error("sweep failed")
	} else if updated > 0 {
		e.log.WithField("updated", updated).Info("sweep: refreshed crispness")
	}
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
}
