package engagement

import (
	"fmt"
	"time"
)

// Policy holds the tunable rules of the ledger.
type Policy struct {
	DecayWindow time.Duration
	// RelikeRefreshes lets a like after an unlike reset originalTimestamp.
	// Off by default: only an explicit refresh restores freshness.
	RelikeRefreshes bool
}

// DefaultPolicy returns the production ledger rules.
func DefaultPolicy() Policy {
	return Policy{DecayWindow: DefaultDecayWindow}
}

// FindRecord returns the user's record, or nil if the user never liked the label.
func (l *Label) FindRecord(userID string) *Record {
	for i := range l.Ledger {
		if l.Ledger[i].UserID == userID {
			return &l.Ledger[i]
		}
	}
	return nil
}

// IsActiveFor reports whether the user currently endorses the label.
func (l *Label) IsActiveFor(userID string) bool {
	r := l.FindRecord(userID)
	return r != nil && r.IsActive
}

// CountActive is the public like count.
func (l *Label) CountActive() int {
	n := 0
	for _, r := range l.Ledger {
		if r.IsActive {
			n++
		}
	}
	return n
}

// ActiveRecords returns copies of the active records in ledger order.
func (l *Label) ActiveRecords() []Record {
	var out []Record
	for _, r := range l.Ledger {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out
}

// UpsertActivate records a like. A first like inserts a record; a like after an
// unlike reactivates the existing record; liking an active record is a no-op.
// It reports whether the ledger changed.
func (l *Label) UpsertActivate(userID string, now int64, p Policy) bool {
	r := l.FindRecord(userID)
	if r == nil {
		l.Ledger = append(l.Ledger, Record{
			UserID:            userID,
			OriginalTimestamp: now,
			LastUpdatedAt:     now,
			IsActive:          true,
			Value:             1,
		})
		return true
	}
	if r.IsActive {
		return false
	}
	r.IsActive = true
	r.LastUpdatedAt = now
	if p.RelikeRefreshes {
		r.OriginalTimestamp = now
	}
	return true
}

// Deactivate records an unlike. originalTimestamp is kept for history.
func (l *Label) Deactivate(userID string, now int64) error {
	r := l.FindRecord(userID)
	if r == nil || !r.IsActive {
		return fmt.Errorf("user %s on label %q: %w", userID, l.Name, ErrAlreadyInactive)
	}
	r.IsActive = false
	r.LastUpdatedAt = now
	return nil
}

// ResetTimestamp restarts the decay clock of the user's active record.
func (l *Label) ResetTimestamp(userID string, now int64) error {
	r := l.FindRecord(userID)
	if r == nil || !r.IsActive {
		return fmt.Errorf("user %s on label %q: %w", userID, l.Name, ErrNotLiked)
	}
	r.OriginalTimestamp = now
	r.LastUpdatedAt = now
	return nil
}

// Recompute refreshes Crispness and the legacy aggregate fields from the ledger.
func (l *Label) Recompute(now int64, window time.Duration) {
	l.Crispness = Crispness(l.ActiveRecords(), now, window)
	p := Project(l.Ledger)
	l.Count = p.Count
	l.UserIDList = p.ActiveUserIDs
}
