package scorer

import (
	"math"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing invoice dates. Dates without
// a zone are read as UTC.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// ParseDate parses an input date string. The second return is false for
// blank or unrecognized input.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DaysPastDue returns the whole days, rounded up, between dueDate and the
// payment moment. A blank or unparseable paymentDate means the invoice is
// still open and now is used instead. Early payment counts as 0, and so
// does an unparseable dueDate.
func DaysPastDue(dueDate, paymentDate string, now time.Time) int {
	due, ok := ParseDate(dueDate)
	if !ok {
		return 0
	}
	paid, ok := ParseDate(paymentDate)
	if !ok {
		paid = now
	}
	days := math.Ceil(float64(paid.Sub(due)) / float64(24*time.Hour))
	if days <= 0 {
		return 0
	}
	return int(days)
}

// CreditUtilization returns creditUsed as a rounded percentage of
// creditLimit. A missing or non-positive limit is reported as 100.
// Over-limit accounts exceed 100 and are not clamped here.
func CreditUtilization(creditUsed, creditLimit float64) int {
	if creditLimit <= 0 || math.IsNaN(creditLimit) {
		return 100
	}
	return roundHalfUp(creditUsed / creditLimit * 100)
}
