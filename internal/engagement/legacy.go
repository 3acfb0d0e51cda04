package engagement

import "sort"

// LegacyLabel is the pre-ledger storage shape: a count plus parallel arrays of
// user IDs and like timestamps. Ledger is set when the writer already knew
// about records, in which case the parallel arrays are ignored.
type LegacyLabel struct {
	Name       string   `json:"name"`
	Count      int      `json:"count"`
	UserIDList []string `json:"userIdList"`
	Timestamps []int64  `json:"timestamps"`
	Ledger     []Record `json:"likes"`
}

// FromLegacy builds a ledger-backed label from the legacy shape. Every listed
// user becomes one active record; a user listed twice keeps the earliest
// timestamp, and a missing timestamp defaults to now. Count is ignored since
// it was known to drift from the user list.
func FromLegacy(legacy LegacyLabel, now int64, p Policy) Label {
	earliest := make(map[string]int64, len(legacy.UserIDList))
	var order []string
	for i, uid := range legacy.UserIDList {
		if uid == "" {
			continue
		}
		ts := now
		if i < len(legacy.Timestamps) && legacy.Timestamps[i] > 0 {
			ts = legacy.Timestamps[i]
		}
		prev, ok := earliest[uid]
		if !ok {
			order = append(order, uid)
			earliest[uid] = ts
			continue
		}
		if ts < prev {
			earliest[uid] = ts
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return earliest[order[i]] < earliest[order[j]]
	})

	label := Label{Name: legacy.Name}
	for _, uid := range order {
		label.Ledger = append(label.Ledger, Record{
			UserID:            uid,
			OriginalTimestamp: earliest[uid],
			LastUpdatedAt:     earliest[uid],
			IsActive:          true,
			Value:             1,
		})
	}
	label.Recompute(now, p.DecayWindow)
	return label
}

// LegacyAnswer is an answer whose labels may still be in the legacy shape.
// Labels that already carry a ledger are taken as-is.
type LegacyAnswer struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	AuthorID string        `json:"authorId"`
	Labels   []LegacyLabel `json:"totems"`
}

// LegacyItem is a content item as exported by older writers.
type LegacyItem struct {
	ID        string         `json:"id"`
	Question  string         `json:"question"`
	Answers   []LegacyAnswer `json:"answers"`
	CreatedAt int64          `json:"createdAt"`
}

// Reconcile converts a legacy item into a ContentItem whose ledgers are the only
// source of truth. newID supplies IDs for the item and answers that lack one.
func (li LegacyItem) Reconcile(now int64, p Policy, newID func() string) ContentItem {
	item := ContentItem{
		ID:        li.ID,
		Question:  li.Question,
		CreatedAt: li.CreatedAt,
		UpdatedAt: now,
	}
	if item.ID == "" {
		item.ID = newID()
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = now
	}
	for _, la := range li.Answers {
		a := Answer{ID: la.ID, Text: la.Text, AuthorID: la.AuthorID}
		if a.ID == "" {
			a.ID = newID()
		}
		for _, raw := range la.Labels {
			var l Label
			if len(raw.Ledger) > 0 {
				l = Label{Name: raw.Name, Ledger: raw.Ledger}
				for i := range l.Ledger {
					r := &l.Ledger[i]
					if r.Value == 0 {
						r.Value = 1
					}
					if r.LastUpdatedAt == 0 {
						r.LastUpdatedAt = r.OriginalTimestamp
					}
				}
				l.Recompute(now, p.DecayWindow)
			} else {
				l = FromLegacy(raw, now, p)
			}
			a.Labels = append(a.Labels, l)
		}
		item.Answers = append(item.Answers, a)
	}
	return item
}
