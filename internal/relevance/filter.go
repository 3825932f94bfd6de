// Package relevance narrows a scored client set to the records that matter
// for a free-text question, keeping downstream prompts bounded no matter
// how large the portfolio is.
package relevance

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/sells-group/risk-cli/internal/model"
)

// MaxRecords is the default cap on records returned by category, range
// and default rules.
const MaxRecords = 200

// MaxNameMatches is the most name/ID hits that still count as asking about
// specific clients. More than this usually means a common substring.
const MaxNameMatches = 20

// DefaultTopCount is used by superlative rules when the question names no
// count.
const DefaultTopCount = 10

// Rule identifies which branch of the filter selected the records.
type Rule string

// Rules in evaluation order.
const (
	RuleName        Rule = "name"
	RuleCategory    Rule = "category"
	RuleOverdue     Rule = "overdue"
	RuleUtilization Rule = "utilization"
	RuleHighest     Rule = "highest"
	RuleLowest      Rule = "lowest"
	RuleReminders   Rule = "reminders"
	RuleDefault     Rule = "default"
)

// Result is the selected subset plus a one-line description of how it was
// chosen.
type Result struct {
	Clients      []model.ClientRecord `json:"clients"`
	Description  string               `json:"description"`
	TotalMatched int                  `json:"total_matched"`
	Truncated    bool                 `json:"truncated"`
	Rule         Rule                 `json:"rule"`
}

var (
	reHighRisk    = regexp.MustCompile(`\bhigh[\s-]?risk\b`)
	reMediumRisk  = regexp.MustCompile(`\bmedium[\s-]?risk\b`)
	reLowRisk     = regexp.MustCompile(`\blow[\s-]?risk\b`)
	reOverdue     = regexp.MustCompile(`\b(overdue|past\s*due|late|delinquent)\b`)
	re90          = regexp.MustCompile(`\b90\b`)
	re60          = regexp.MustCompile(`\b60\b`)
	re30          = regexp.MustCompile(`\b30\b`)
	reUtilization = regexp.MustCompile(`\b(utilization|credit\s*us|maxed|over[\s-]?limit)\b`)
	reHighest     = regexp.MustCompile(`\b(top|worst|highest|riskiest)\b`)
	reLowest      = regexp.MustCompile(`\b(best|lowest|safest|healthiest)\b`)
	reReminder    = regexp.MustCompile(`\breminder`)
	reNumber      = regexp.MustCompile(`\b(\d+)\b`)
)

// Filter applies the default Filterer.
func Filter(question string, records []model.ClientRecord) Result {
	return Filterer{MaxRecords: MaxRecords}.Filter(question, records)
}

// Filterer selects records relevant to a question. The zero value caps at
// MaxRecords.
type Filterer struct {
	MaxRecords int
}

// Filter runs the rules in order and returns the first match. It never
// fails; an empty or unmatched question falls through to the default rule.
// The input slice is never reordered.
func (f Filterer) Filter(question string, records []model.ClientRecord) Result {
	q := strings.ToLower(question)

	if matches := matchNames(q, records); len(matches) > 0 && len(matches) <= MaxNameMatches {
		return Result{
			Clients:      matches,
			Description:  fmt.Sprintf("Showing %d client(s) matching the name/ID in the question.", len(matches)),
			TotalMatched: len(matches),
			Rule:         RuleName,
		}
	}

	switch {
	case reHighRisk.MatchString(q):
		return f.bucket(RuleCategory, "High Risk", records, byCategory(model.RiskHigh))
	case reMediumRisk.MatchString(q):
		return f.bucket(RuleCategory, "Medium Risk", records, byCategory(model.RiskMedium))
	case reLowRisk.MatchString(q):
		return f.bucket(RuleCategory, "Low Risk", records, byCategory(model.RiskLow))
	}

	if reOverdue.MatchString(q) {
		switch {
		case re90.MatchString(q):
			return f.bucket(RuleOverdue, "90+ days overdue", records, minDaysPastDue(90))
		case re60.MatchString(q):
			return f.bucket(RuleOverdue, "60+ days overdue", records, minDaysPastDue(60))
		case re30.MatchString(q):
			return f.bucket(RuleOverdue, "30+ days overdue", records, minDaysPastDue(30))
		}
		return f.bucket(RuleOverdue, "all overdue", records, func(r model.ClientRecord) bool {
			return r.DaysPastDue > 0
		})
	}

	if reUtilization.MatchString(q) {
		return f.bucket(RuleUtilization, "credit utilization ≥ 70%", records, func(r model.ClientRecord) bool {
			return r.CreditUtilization >= 70
		})
	}

	if reHighest.MatchString(q) {
		n := extractCount(q)
		return Result{
			Clients:      firstN(sortedByScore(records, true), n),
			Description:  fmt.Sprintf("Top %d highest-risk clients.", n),
			TotalMatched: min(n, len(records)),
			Rule:         RuleHighest,
		}
	}

	if reLowest.MatchString(q) {
		n := extractCount(q)
		return Result{
			Clients:      firstN(sortedByScore(records, false), n),
			Description:  fmt.Sprintf("Top %d lowest-risk clients.", n),
			TotalMatched: min(n, len(records)),
			Rule:         RuleLowest,
		}
	}

	if reReminder.MatchString(q) {
		return f.bucket(RuleReminders, "clients with 2+ reminders", records, func(r model.ClientRecord) bool {
			return r.RemindersCount >= 2
		})
	}

	limit := f.limit()
	capped := firstN(sortedByScore(records, true), limit)
	desc := fmt.Sprintf("All %d clients included.", len(records))
	truncated := len(records) > limit
	if truncated {
		desc = fmt.Sprintf("Showing top %d highest-risk clients out of %d total (sorted by risk). "+
			"Ask about a specific risk category, client name, or overdue range to see targeted results.", limit, len(records))
	}
	return Result{
		Clients:      capped,
		Description:  desc,
		TotalMatched: len(capped),
		Truncated:    truncated,
		Rule:         RuleDefault,
	}
}

func (f Filterer) limit() int {
	if f.MaxRecords <= 0 {
		return MaxRecords
	}
	return f.MaxRecords
}

// bucket filters, sorts by score descending and caps.
func (f Filterer) bucket(rule Rule, label string, records []model.ClientRecord, keep func(model.ClientRecord) bool) Result {
	var matched []model.ClientRecord
	for _, r := range records {
		if keep(r) {
			matched = append(matched, r)
		}
	}
	sortByScore(matched, true)

	limit := f.limit()
	truncated := len(matched) > limit
	desc := fmt.Sprintf("All %d %s client(s).", len(matched), label)
	if truncated {
		desc = fmt.Sprintf("Showing top %d of %d %s clients (sorted by risk score).", limit, len(matched), label)
	}

	return Result{
		Clients:      firstN(matched, limit),
		Description:  desc,
		TotalMatched: len(matched),
		Truncated:    truncated,
		Rule:         rule,
	}
}

// matchNames returns records whose name or id occurs in the lowercased
// question, in input order. Empty names and ids never match.
func matchNames(q string, records []model.ClientRecord) []model.ClientRecord {
	if strings.TrimSpace(q) == "" {
		return nil
	}
	var out []model.ClientRecord
	for _, r := range records {
		name := strings.ToLower(strings.TrimSpace(r.Name))
		id := strings.ToLower(strings.TrimSpace(r.ID))
		if (name != "" && strings.Contains(q, name)) || (id != "" && strings.Contains(q, id)) {
			out = append(out, r)
		}
	}
	return out
}

func byCategory(c model.RiskCategory) func(model.ClientRecord) bool {
	return func(r model.ClientRecord) bool { return r.RiskCategory == c }
}

func minDaysPastDue(days int) func(model.ClientRecord) bool {
	return func(r model.ClientRecord) bool { return r.DaysPastDue >= days }
}

// extractCount returns the first integer literal in q, or DefaultTopCount
// when there is none (or it is zero).
func extractCount(q string) int {
	m := reNumber.FindStringSubmatch(q)
	if m == nil {
		return DefaultTopCount
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return DefaultTopCount
	}
	return n
}

func sortedByScore(records []model.ClientRecord, desc bool) []model.ClientRecord {
	out := slices.Clone(records)
	sortByScore(out, desc)
	return out
}

// sortByScore sorts in place, keeping input order among equal scores.
func sortByScore(records []model.ClientRecord, desc bool) {
	slices.SortStableFunc(records, func(a, b model.ClientRecord) int {
		if desc {
			return cmp.Compare(b.RiskScore, a.RiskScore)
		}
		return cmp.Compare(a.RiskScore, b.RiskScore)
	})
}

func firstN(records []model.ClientRecord, n int) []model.ClientRecord {
	if n >= len(records) {
		if records == nil {
			return []model.ClientRecord{}
		}
		return records
	}
	return records[:n]
}
