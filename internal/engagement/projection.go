package engagement

// Projection is the flat shape older readers expect on a label.
type Projection struct {
	Count         int      `json:"count"`
	ActiveUserIDs []string `json:"userIdList"`
}

// Project derives the legacy aggregate from a ledger. ActiveUserIDs is never
// nil so it encodes as an empty JSON array.
func Project(ledger []Record) Projection {
	p := Projection{ActiveUserIDs: []string{}}
	for _, r := range ledger {
		if !r.IsActive {
			continue
		}
		p.Count++
		p.ActiveUserIDs = append(p.ActiveUserIDs, r.UserID)
	}
	return p
}
