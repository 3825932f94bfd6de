package model

import "strings"

// RiskCategory is the coarse three-band classification of a risk score.
type RiskCategory string

const (
	RiskLow    RiskCategory = "Low"
	RiskMedium RiskCategory = "Medium"
	RiskHigh   RiskCategory = "High"
)

// RiskCategories lists the categories from safest to riskiest.
var RiskCategories = []RiskCategory{RiskLow, RiskMedium, RiskHigh}

// ParseRiskCategory matches a category name case-insensitively.
func ParseRiskCategory(s string) (RiskCategory, bool) {
	for _, c := range RiskCategories {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, true
		}
	}
	return "", false
}

// RawInvoice holds the fields read from one input row before any
// derived metric is computed.
type RawInvoice struct {
	ID              string  `json:"id" yaml:"id"`
	Name            string  `json:"name" yaml:"name"`
	Email           string  `json:"email" yaml:"email"`
	PhoneNumber     string  `json:"phone_number" yaml:"phone_number"`
	InvoiceAmount   float64 `json:"invoice_amount" yaml:"invoice_amount"`
	InvoiceDate     string  `json:"invoice_date" yaml:"invoice_date"`
	DueDate         string  `json:"due_date" yaml:"due_date"`
	PaymentDate     string  `json:"payment_date" yaml:"payment_date"`
	AvgOrders60Days float64 `json:"avg_orders_60_days" yaml:"avg_orders_60_days"`
	RemindersCount  int     `json:"reminders_count" yaml:"reminders_count"`
	CreditLimit     float64 `json:"credit_limit" yaml:"credit_limit"`
	CreditUsed      float64 `json:"credit_used" yaml:"credit_used"`
}

// ClientRecord is one scored invoice/customer relationship. The derived
// fields are computed together from the embedded raw inputs and are not
// modified afterwards.
type ClientRecord struct {
	RawInvoice `yaml:",inline"`

	DaysPastDue       int          `json:"days_past_due" yaml:"days_past_due"`
	CreditUtilization int          `json:"credit_utilization" yaml:"credit_utilization"`
	RiskScore         int          `json:"risk_score" yaml:"risk_score"`
	RiskCategory      RiskCategory `json:"risk_category" yaml:"risk_category"`
	RiskRationale     string       `json:"risk_rationale" yaml:"risk_rationale"`
}

// IsOverdue reports whether the invoice was (or still is) paid late.
func (c ClientRecord) IsOverdue() bool {
	return c.DaysPastDue > 0
}
