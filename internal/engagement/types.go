package engagement

import "fmt"

// ContentItem is a question with its answers. It is stored and replaced as a
// whole document.
type ContentItem struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Answers   []Answer `json:"answers"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}

// Answer belongs to exactly one ContentItem. Label names are unique within an answer.
type Answer struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	AuthorID string  `json:"authorId"`
	Labels   []Label `json:"totems"`
}

// Label is a named tag ("totem") on an answer with its own ledger.
//
// Crispness, Count and UserIDList are derived from Ledger by Recompute and
// are never read back as a source of truth.
type Label struct {
	Name       string   `json:"name"`
	Crispness  float64  `json:"crispness"`
	Count      int      `json:"count"`
	UserIDList []string `json:"userIdList"`
	Ledger     []Record `json:"likes"`
}

// Record is one user's endorsement of a label. Records are never removed,
// only deactivated.
type Record struct {
	UserID            string `json:"userId"`
	OriginalTimestamp int64  `json:"originalTimestamp"`
	LastUpdatedAt     int64  `json:"lastUpdatedAt"`
	IsActive          bool   `json:"isActive"`
	Value             int    `json:"value"`
}

// Target addresses one label on one content item. AnswerID is optional; when
// empty the first answer carrying the label is used.
type Target struct {
	ItemID   string
	AnswerID string
	Label    string
}

func (t Target) String() string {
	if t.AnswerID == "" {
		return fmt.Sprintf("%s/%s", t.ItemID, t.Label)
	}
	return fmt.Sprintf("%s/%s/%s", t.ItemID, t.AnswerID, t.Label)
}

// LocateLabel returns the label named name. With answerID set only that answer
// is searched, otherwise the first answer carrying the label wins.
func (c *ContentItem) LocateLabel(answerID, name string) (*Label, error) {
	for i := range c.Answers {
		a := &c.Answers[i]
		if answerID != "" && a.ID != answerID {
			continue
		}
		for j := range a.Labels {
			if a.Labels[j].Name == name {
				return &a.Labels[j], nil
			}
		}
	}
	return nil, fmt.Errorf("label %q on item %s: %w", name, c.ID, ErrLabelNotFound)
}

// Validate checks structural invariants of a new or imported item.
func (c *ContentItem) Validate() error {
	if c.ID == "" {
		return invalidf("missing id")
	}
	answerIDs := make(map[string]bool, len(c.Answers))
	for _, a := range c.Answers {
		if a.ID == "" {
			return invalidf("content item %s: answer without id", c.ID)
		}
		if answerIDs[a.ID] {
			return invalidf("content item %s: duplicate answer id %s", c.ID, a.ID)
		}
		answerIDs[a.ID] = true

		names := make(map[string]bool, len(a.Labels))
		for _, l := range a.Labels {
			if l.Name == "" {
				return invalidf("answer %s: empty label name", a.ID)
			}
			if names[l.Name] {
				return invalidf("answer %s: duplicate label %q", a.ID, l.Name)
			}
			names[l.Name] = true

			seen := make(map[string]bool, len(l.Ledger))
			for _, r := range l.Ledger {
				if seen[r.UserID] {
					return invalidf("answer %s label %q: duplicate record for user %s", a.ID, l.Name, r.UserID)
				}
				seen[r.UserID] = true
			}
		}
	}
	return nil
}

// CheckNew rejects an item that arrives with endorsements. A new item's
// ledgers start empty; records only enter through Toggle or an import.
func (c *ContentItem) CheckNew() error {
	for _, a := range c.Answers {
		for _, l := range a.Labels {
			if len(l.Ledger) > 0 {
				return invalidf("label %q: a new item cannot carry likes", l.Name)
			}
		}
	}
	return nil
}

// CheckRecords validates imported ledgers against the import time: every
// record is worth 1, none is dated after now, and none was updated before it
// was created.
func (c *ContentItem) CheckRecords(now int64) error {
	for _, a := range c.Answers {
		for _, l := range a.Labels {
			for _, r := range l.Ledger {
				switch {
				case r.UserID == "":
					return invalidf("label %q: record without user", l.Name)
				case r.Value != 1:
					return invalidf("label %q user %s: value %d, want 1", l.Name, r.UserID, r.Value)
				case r.OriginalTimestamp > now:
					return invalidf("label %q user %s: timestamp in the future", l.Name, r.UserID)
				case r.LastUpdatedAt < r.OriginalTimestamp:
					return invalidf("label %q user %s: updated before it was created", l.Name, r.UserID)
				}
			}
		}
	}
	return nil
}

// RecomputeAll refreshes the derived fields of every label in the item.
func (c *ContentItem) RecomputeAll(now int64, cfg Policy) {
	for i := range c.Answers {
		for j := range c.Answers[i].Labels {
			c.Answers[i].Labels[j].Recompute(now, cfg.DecayWindow)
		}
	}
}
