package portfolio

import (
	"cmp"
	"slices"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/scorer"
)

// Alerts returns high-risk clients, riskiest first, at most limit of them.
// limit <= 0 uses DefaultAlertsLimit.
func Alerts(records []model.ClientRecord, limit int) []model.ClientRecord {
	if limit <= 0 {
		limit = DefaultAlertsLimit
	}
	var out []model.ClientRecord
	for _, r := range records {
		if r.RiskCategory == model.RiskHigh || r.RiskScore >= scorer.HighThreshold {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b model.ClientRecord) int {
		return cmp.Compare(b.RiskScore, a.RiskScore)
	})
	return head(out, limit)
}

// Performers returns the first limit clients that are low risk or score
// under 40, in input order.
func Performers(records []model.ClientRecord, limit int) []model.ClientRecord {
	return pick(records, limit, func(r model.ClientRecord) bool {
		return r.RiskCategory == model.RiskLow || r.RiskScore < 40
	})
}

// CollectionQueue returns the first limit clients needing collection
// follow-up: high risk or FrequentReminders or more reminders.
func CollectionQueue(records []model.ClientRecord, limit int) []model.ClientRecord {
	return pick(records, limit, func(r model.ClientRecord) bool {
		return r.RiskCategory == model.RiskHigh || r.RemindersCount >= FrequentReminders
	})
}

func pick(records []model.ClientRecord, limit int, keep func(model.ClientRecord) bool) []model.ClientRecord {
	if limit <= 0 {
		limit = DefaultPanelListSize
	}
	var out []model.ClientRecord
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return head(out, limit)
}

func head(records []model.ClientRecord, n int) []model.ClientRecord {
	if records == nil {
		return []model.ClientRecord{}
	}
	if len(records) > n {
		return records[:n]
	}
	return records
}
