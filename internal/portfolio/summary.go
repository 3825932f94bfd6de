// Package portfolio computes dashboard-level aggregates over scored client
// records: AR totals, category and aging breakdowns, alert lists, and the
// advanced filter used by list views and exports.
package portfolio

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/sells-group/risk-cli/internal/model"
)

// Factor thresholds used by the summary counters.
const (
	HighUtilizationPct   = 85
	FrequentReminders    = 3
	LowOrderFrequency    = 5.0
	DefaultAlertsLimit   = 5
	DefaultPanelListSize = 5
)

// CategoryStat is the client count and AR value of one risk category.
type CategoryStat struct {
	Category model.RiskCategory `json:"category" yaml:"category"`
	Count    int                `json:"count" yaml:"count"`
	Value    decimal.Decimal    `json:"value" yaml:"value"`
}

// AgingBucket counts clients whose days past due fall in [Min, Max].
// Max < 0 means unbounded.
type AgingBucket struct {
	Label string `json:"label" yaml:"label"`
	Min   int    `json:"min" yaml:"min"`
	Max   int    `json:"max" yaml:"max"`
	Count int    `json:"count" yaml:"count"`
}

// Summary is the portfolio overview shown on the dashboard and fed to the
// chat context.
type Summary struct {
	TotalClients     int             `json:"total_clients" yaml:"total_clients"`
	TotalAR          decimal.Decimal `json:"total_ar" yaml:"total_ar"`
	AverageRiskScore int             `json:"average_risk_score" yaml:"average_risk_score"`
	Categories       []CategoryStat  `json:"categories" yaml:"categories"`
	Aging            []AgingBucket   `json:"aging" yaml:"aging"`

	Overdue90      int             `json:"overdue_90" yaml:"overdue_90"`
	Overdue90Value decimal.Decimal `json:"overdue_90_value" yaml:"overdue_90_value"`
	Overdue60      int             `json:"overdue_60" yaml:"overdue_60"`
	Overdue30      int             `json:"overdue_30" yaml:"overdue_30"`

	HighUtilization      int             `json:"high_utilization" yaml:"high_utilization"`
	HighUtilizationValue decimal.Decimal `json:"high_utilization_value" yaml:"high_utilization_value"`
	FrequentReminders    int             `json:"frequent_reminders" yaml:"frequent_reminders"`
	LowOrderFrequency    int             `json:"low_order_frequency" yaml:"low_order_frequency"`
}

// Category returns the stat for c (zero if absent).
func (s Summary) Category(c model.RiskCategory) CategoryStat {
	for _, cs := range s.Categories {
		if cs.Category == c {
			return cs
		}
	}
	return CategoryStat{Category: c, Value: decimal.Zero}
}

func newAging() []AgingBucket {
	return []AgingBucket{
		{Label: "Current (0-30 days)", Min: 0, Max: 30},
		{Label: "31-60 days", Min: 31, Max: 60},
		{Label: "61-90 days", Min: 61, Max: 90},
		{Label: "90+ days", Min: 91, Max: -1},
	}
}

// Summarize aggregates records. Money is summed in decimal so large
// portfolios total exactly to the cent.
func Summarize(records []model.ClientRecord) Summary {
	s := Summary{
		TotalClients:         len(records),
		TotalAR:              decimal.Zero,
		Overdue90Value:       decimal.Zero,
		HighUtilizationValue: decimal.Zero,
		Aging:                newAging(),
	}

	cats := make(map[model.RiskCategory]*CategoryStat, len(model.RiskCategories))
	for _, c := range model.RiskCategories {
		cats[c] = &CategoryStat{Category: c, Value: decimal.Zero}
	}

	for _, r := range records {
		amount := decimal.NewFromFloat(r.InvoiceAmount)
		s.TotalAR = s.TotalAR.Add(amount)

		if cs, ok := cats[r.RiskCategory]; ok {
			cs.Count++
			cs.Value = cs.Value.Add(amount)
		}

		switch {
		case r.DaysPastDue >= 90:
			s.Overdue90++
			s.Overdue90Value = s.Overdue90Value.Add(amount)
		case r.DaysPastDue >= 60:
			s.Overdue60++
		case r.DaysPastDue >= 30:
			s.Overdue30++
		}

		for i := range s.Aging {
			b := &s.Aging[i]
			if r.DaysPastDue >= b.Min && (b.Max < 0 || r.DaysPastDue <= b.Max) {
				b.Count++
				break
			}
		}

		if r.CreditUtilization >= HighUtilizationPct {
			s.HighUtilization++
			s.HighUtilizationValue = s.HighUtilizationValue.Add(amount)
		}
		if r.RemindersCount >= FrequentReminders {
			s.FrequentReminders++
		}
		if r.AvgOrders60Days < LowOrderFrequency {
			s.LowOrderFrequency++
		}
	}

	s.AverageRiskScore = AverageScore(records)
	for _, c := range model.RiskCategories {
		s.Categories = append(s.Categories, *cats[c])
	}
	return s
}

// AverageScore is the rounded mean risk score of records, 0 when empty.
func AverageScore(records []model.ClientRecord) int {
	if len(records) == 0 {
		return 0
	}
	sum := 0
	for _, r := range records {
		sum += r.RiskScore
	}
	return int(math.Floor(float64(sum)/float64(len(records)) + 0.5))
}

// TotalAR sums invoice amounts exactly.
func TotalAR(records []model.ClientRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(decimal.NewFromFloat(r.InvoiceAmount))
	}
	return total
}
