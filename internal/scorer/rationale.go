package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// GoodStanding is the rationale when no factor crosses a threshold.
const GoodStanding = "Good standing - no significant risk factors identified."

// Rationale explains which factors drove a score. Its thresholds are
// coarser than the normalization ranges on purpose. score is accepted
// for call-site symmetry with Score and does not change the text.
func Rationale(daysPastDue, creditUtilization, remindersCount int, avgOrders60Days float64, score int) string {
	_ = score

	var factors []string

	switch {
	case daysPastDue >= 90:
		factors = append(factors, fmt.Sprintf("Severely overdue (%d days)", daysPastDue))
	case daysPastDue >= 60:
		factors = append(factors, fmt.Sprintf("Significantly overdue (%d days)", daysPastDue))
	case daysPastDue >= 30:
		factors = append(factors, fmt.Sprintf("Overdue by %d days", daysPastDue))
	case daysPastDue > 0:
		factors = append(factors, fmt.Sprintf("Slightly overdue (%d days)", daysPastDue))
	}

	switch {
	case creditUtilization >= 85:
		factors = append(factors, fmt.Sprintf("Very high credit utilization (%d%%)", creditUtilization))
	case creditUtilization >= 70:
		factors = append(factors, fmt.Sprintf("High credit utilization (%d%%)", creditUtilization))
	case creditUtilization >= 50:
		factors = append(factors, fmt.Sprintf("Moderate credit utilization (%d%%)", creditUtilization))
	}

	switch {
	case remindersCount >= 3:
		factors = append(factors, fmt.Sprintf("Multiple payment reminders sent (%d)", remindersCount))
	case remindersCount >= 2:
		factors = append(factors, fmt.Sprintf("%d reminders sent", remindersCount))
	}

	switch {
	case avgOrders60Days < 5:
		factors = append(factors, fmt.Sprintf("Very low order frequency (%s avg/60 days)", oneDecimal(avgOrders60Days)))
	case avgOrders60Days < 10:
		factors = append(factors, fmt.Sprintf("Below average order frequency (%s avg/60 days)", oneDecimal(avgOrders60Days)))
	}

	if len(factors) == 0 {
		return GoodStanding
	}
	return strings.Join(factors, ". ") + "."
}

// oneDecimal formats v with one decimal place, rounding ties away from
// zero (1.25 is "1.3").
func oneDecimal(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%.1f", v)
	}
	return decimal.NewFromFloat(v).StringFixed(1)
}
