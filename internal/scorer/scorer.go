package scorer

import (
	"time"

	"github.com/sells-group/risk-cli/internal/model"
)

// Components holds the four normalized 0-100 sub-scores.
type Components struct {
	DaysPastDue       int `json:"days_past_due"`
	CreditUtilization int `json:"credit_utilization"`
	RemindersCount    int `json:"reminders_count"`
	AvgOrders60Days   int `json:"avg_orders_60_days"`
}

// Normalized computes the sub-scores for a set of metrics.
func Normalized(daysPastDue, creditUtilization, remindersCount int, avgOrders60Days float64) Components {
	return Components{
		DaysPastDue:       normalizeIn(float64(daysPastDue), DaysPastDueRange),
		CreditUtilization: normalizeIn(float64(creditUtilization), CreditUtilizationRange),
		RemindersCount:    normalizeIn(float64(remindersCount), RemindersCountRange),
		AvgOrders60Days:   normalizeIn(avgOrders60Days, AvgOrdersRange),
	}
}

// Weighted returns the unrounded weighted sum of the sub-scores.
func (c Components) Weighted() float64 {
	return float64(c.DaysPastDue)*WeightDaysPastDue +
		float64(c.CreditUtilization)*WeightCreditUtilization +
		float64(c.RemindersCount)*WeightRemindersCount +
		float64(c.AvgOrders60Days)*WeightAvgOrders
}

// Score computes the weighted 0-100 risk score.
func Score(daysPastDue, creditUtilization, remindersCount int, avgOrders60Days float64) int {
	return roundHalfUp(Normalized(daysPastDue, creditUtilization, remindersCount, avgOrders60Days).Weighted())
}

// Classify maps a score to its risk band.
func Classify(score int) model.RiskCategory {
	switch {
	case score >= HighThreshold:
		return model.RiskHigh
	case score >= MediumThreshold:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// Evaluate derives every computed field of a record from its raw inputs,
// measuring lateness against now.
func Evaluate(raw model.RawInvoice, now time.Time) model.ClientRecord {
	dpd := DaysPastDue(raw.DueDate, raw.PaymentDate, now)
	util := CreditUtilization(raw.CreditUsed, raw.CreditLimit)
	score := Score(dpd, util, raw.RemindersCount, raw.AvgOrders60Days)

	return model.ClientRecord{
		RawInvoice:        raw,
		DaysPastDue:       dpd,
		CreditUtilization: util,
		RiskScore:         score,
		RiskCategory:      Classify(score),
		RiskRationale:     Rationale(dpd, util, raw.RemindersCount, raw.AvgOrders60Days, score),
	}
}
