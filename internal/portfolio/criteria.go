package portfolio

import (
	"strings"
	"time"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/scorer"
)

// CategoryAll disables category filtering.
const CategoryAll = "all"

// Default filter bounds.
const (
	DefaultDaysPastDueMax = 180
	DefaultUtilizationMax = 100
)

// Criteria is the advanced record filter. Ranges are inclusive.
type Criteria struct {
	Search         string     `json:"search,omitempty"`
	Category       string     `json:"category,omitempty"`
	DaysPastDueMin int        `json:"dpd_min"`
	DaysPastDueMax int        `json:"dpd_max"`
	UtilizationMin int        `json:"util_min"`
	UtilizationMax int        `json:"util_max"`
	DueFrom        *time.Time `json:"due_from,omitempty"`
	DueTo          *time.Time `json:"due_to,omitempty"`
}

// DefaultCriteria matches every record with days past due and utilization
// inside the default ranges.
func DefaultCriteria() Criteria {
	return Criteria{
		Category:       CategoryAll,
		DaysPastDueMax: DefaultDaysPastDueMax,
		UtilizationMax: DefaultUtilizationMax,
	}
}

// Active reports whether c differs from DefaultCriteria.
func (c Criteria) Active() bool {
	return c.Search != "" ||
		(c.Category != "" && c.Category != CategoryAll) ||
		c.DaysPastDueMin != 0 ||
		c.DaysPastDueMax != DefaultDaysPastDueMax ||
		c.UtilizationMin != 0 ||
		c.UtilizationMax != DefaultUtilizationMax ||
		c.DueFrom != nil ||
		c.DueTo != nil
}

// Match reports whether r passes every criterion. Search is a
// case-insensitive substring match on name, email and phone. A due date
// that does not parse is never excluded by the date range.
func (c Criteria) Match(r model.ClientRecord) bool {
	if c.Search != "" {
		q := strings.ToLower(c.Search)
		if !strings.Contains(strings.ToLower(r.Name), q) &&
			!strings.Contains(strings.ToLower(r.Email), q) &&
			!strings.Contains(strings.ToLower(r.PhoneNumber), q) {
			return false
		}
	}

	if c.Category != "" && c.Category != CategoryAll && string(r.RiskCategory) != c.Category {
		return false
	}

	if r.DaysPastDue < c.DaysPastDueMin || r.DaysPastDue > c.DaysPastDueMax {
		return false
	}
	if r.CreditUtilization < c.UtilizationMin || r.CreditUtilization > c.UtilizationMax {
		return false
	}

	if c.DueFrom != nil || c.DueTo != nil {
		due, ok := scorer.ParseDate(r.DueDate)
		if ok {
			if c.DueFrom != nil && due.Before(*c.DueFrom) {
				return false
			}
			if c.DueTo != nil && due.After(*c.DueTo) {
				return false
			}
		}
	}

	return true
}

// Apply returns the records matching c, in input order.
func Apply(records []model.ClientRecord, c Criteria) []model.ClientRecord {
	out := make([]model.ClientRecord, 0, len(records))
	for _, r := range records {
		if c.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
