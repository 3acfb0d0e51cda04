package engine

import (
	"context"
	"fmt"

	"github.com/lazypower/crisp/internal/engagement"
)

// Direction is the desired endorsement state.
type Direction int

const (
	Like Direction = iota
	Unlike
)

func (d Direction) String() string {
	if d == Unlike {
		return "unlike"
	}
	return "like"
}

// Toggle likes or unlikes a label on behalf of userID and returns the stored
// item. Liking an already-liked label succeeds without change; unliking a
// label the user does not endorse returns ErrAlreadyInactive and writes nothing.
func (e *Engine) Toggle(ctx context.Context, t engagement.Target, userID string, dir Direction) (*engagement.ContentItem, error) {
	if userID == "" {
		return nil, engagement.ErrUnauthenticated
	}

	item, err := e.replace(ctx, t.ItemID, func(c *engagement.ContentItem) error {
		now := e.nowMs()
		label, err := c.LocateLabel(t.AnswerID, t.Label)
		if err != nil {
			return err
		}
		switch dir {
		case Like:
			label.UpsertActivate(userID, now, e.Policy)
		case Unlike:
			if err := label.Deactivate(userID, now); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown direction %d", dir)
		}
		label.Recompute(now, e.Policy.DecayWindow)
		return nil
	})
	e.report(dir.String(), t, userID, err)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Like endorses a label as the user resolved from ctx.
func (e *Engine) Like(ctx context.Context, t engagement.Target) (*engagement.ContentItem, error) {
	uid, err := e.Identity.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	return e.Toggle(ctx, t, uid, Like)
}

// Unlike withdraws the endorsement of the user resolved from ctx.
func (e *Engine) Unlike(ctx context.Context, t engagement.Target) (*engagement.ContentItem, error) {
	uid, err := e.Identity.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	return e.Toggle(ctx, t, uid, Unlike)
}
