// Package scorer turns raw invoice and credit fields into normalized
// sub-scores, a weighted 0-100 risk score, a risk category, and a
// human-readable rationale.
package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Range is the clamped domain a raw metric is scaled over.
// Inverse ranges score lower raw values as riskier.
type Range struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Inverse bool    `json:"inverse"`
}

// Normalization ranges. These must not change: downstream consumers
// compare scores produced by other implementations of the same model.
var (
	DaysPastDueRange       = Range{Min: 0, Max: 90}
	CreditUtilizationRange = Range{Min: 0, Max: 85}
	RemindersCountRange    = Range{Min: 0, Max: 3}
	AvgOrdersRange         = Range{Min: 5, Max: 20, Inverse: true}
)

// Component weights (sum = 1.0).
const (
	WeightDaysPastDue       = 0.50
	WeightCreditUtilization = 0.25
	WeightRemindersCount    = 0.15
	WeightAvgOrders         = 0.10
)

// Category thresholds. Each band includes its lower bound.
const (
	HighThreshold   = 65
	MediumThreshold = 35
)

// Weights returns the component weights in scoring order.
func Weights() []float64 {
	return []float64{
		WeightDaysPastDue,
		WeightCreditUtilization,
		WeightRemindersCount,
		WeightAvgOrders,
	}
}

// WeightSum returns the sum of all component weights.
func WeightSum() float64 {
	var sum float64
	for _, w := range Weights() {
		sum += w
	}
	return sum
}

// modelConfig is the serialized form hashed by ConfigHash.
type modelConfig struct {
	Ranges     map[string]Range   `json:"ranges"`
	Weights    map[string]float64 `json:"weights"`
	Thresholds map[string]int     `json:"thresholds"`
}

// ConfigHash returns a SHA-256 prefix of the scoring model so persisted
// batches can be tied to the parameters that produced them.
func ConfigHash() string {
	cfg := modelConfig{
		Ranges: map[string]Range{
			"days_past_due":      DaysPastDueRange,
			"credit_utilization": CreditUtilizationRange,
			"reminders_count":    RemindersCountRange,
			"avg_orders_60_days": AvgOrdersRange,
		},
		Weights: map[string]float64{
			"days_past_due":      WeightDaysPastDue,
			"credit_utilization": WeightCreditUtilization,
			"reminders_count":    WeightRemindersCount,
			"avg_orders_60_days": WeightAvgOrders,
		},
		Thresholds: map[string]int{
			"high":   HighThreshold,
			"medium": MediumThreshold,
		},
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16]) // 32 hex chars
}
