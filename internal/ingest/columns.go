// Package ingest builds scored client records from tabular invoice exports
// (CSV and XLSX) and writes them back out as CSV.
package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/risk-cli/internal/model"
)

// Recognized input headers. Matching is exact and case-sensitive.
const (
	ColCustomerID      = "CustomerID"
	ColName            = "Name"
	ColEmail           = "Email"
	ColPhoneNumber     = "PhoneNumber"
	ColInvoiceAmount   = "InvoiceAmount"
	ColInvoiceDate     = "InvoiceDate"
	ColDueDate         = "DueDate"
	ColPaymentDate     = "PaymentDate"
	ColAvgOrders60Days = "AvgOrders60Days"
	ColRemindersCount  = "RemindersCount"
	ColCreditLimit     = "CreditLimit"
	ColCreditUsed      = "CreditUsed"
)

// InputHeaders lists the recognized headers in canonical order.
var InputHeaders = []string{
	ColCustomerID, ColName, ColEmail, ColPhoneNumber,
	ColInvoiceAmount, ColInvoiceDate, ColDueDate, ColPaymentDate,
	ColAvgOrders60Days, ColRemindersCount, ColCreditLimit, ColCreditUsed,
}

// UnknownName is used when a row has no Name value.
const UnknownName = "Unknown"

// headerIndex maps header names to column positions.
type headerIndex map[string]int

func newHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		if _, dup := idx[col]; !dup {
			idx[col] = i
		}
	}
	return idx
}

// get safely retrieves a trimmed column value from a row.
func (h headerIndex) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// rawFromRow maps a data row to raw invoice fields, substituting defaults
// for anything missing or malformed. index is the 0-based data row position.
func (h headerIndex) rawFromRow(row []string, index int) model.RawInvoice {
	id := h.get(row, ColCustomerID)
	if id == "" {
		id = fmt.Sprintf("client-%d", index)
	}
	name := h.get(row, ColName)
	if name == "" {
		name = UnknownName
	}

	return model.RawInvoice{
		ID:              id,
		Name:            name,
		Email:           h.get(row, ColEmail),
		PhoneNumber:     h.get(row, ColPhoneNumber),
		InvoiceAmount:   parseNumber(h.get(row, ColInvoiceAmount)),
		InvoiceDate:     h.get(row, ColInvoiceDate),
		DueDate:         h.get(row, ColDueDate),
		PaymentDate:     h.get(row, ColPaymentDate),
		AvgOrders60Days: parseNumber(h.get(row, ColAvgOrders60Days)),
		RemindersCount:  parseCount(h.get(row, ColRemindersCount)),
		CreditLimit:     parseNumber(h.get(row, ColCreditLimit)),
		CreditUsed:      parseNumber(h.get(row, ColCreditUsed)),
	}
}

// numberCleaner strips currency symbols and thousands separators.
var numberCleaner = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "")

// parseNumber converts text to a finite float. Blank, malformed, NaN and
// infinite input all map to 0 so they cannot poison the weighted score.
func parseNumber(s string) float64 {
	s = numberCleaner.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// parseCount converts text to an integer, truncating fractional input
// ("2.0" and "2.7" both read as 2).
func parseCount(s string) int {
	cleaned := numberCleaner.Replace(strings.TrimSpace(s))
	if n, err := strconv.Atoi(cleaned); err == nil {
		return n
	}
	f := parseNumber(s)
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0
	}
	return int(f)
}
