package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/model"
)

// Column is one exportable record field.
type Column struct {
	Key   string
	Label string
	value func(r model.ClientRecord) string
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Columns lists every exportable field in display order.
var Columns = []Column{
	{"id", "Customer ID", func(r model.ClientRecord) string { return r.ID }},
	{"name", "Name", func(r model.ClientRecord) string { return r.Name }},
	{"email", "Email", func(r model.ClientRecord) string { return r.Email }},
	{"phone_number", "Phone Number", func(r model.ClientRecord) string { return r.PhoneNumber }},
	{"invoice_amount", "Invoice Amount", func(r model.ClientRecord) string { return formatFloat(r.InvoiceAmount) }},
	{"invoice_date", "Invoice Date", func(r model.ClientRecord) string { return r.InvoiceDate }},
	{"due_date", "Due Date", func(r model.ClientRecord) string { return r.DueDate }},
	{"payment_date", "Payment Date", func(r model.ClientRecord) string { return r.PaymentDate }},
	{"avg_orders_60_days", "Avg Orders (60 days)", func(r model.ClientRecord) string { return formatFloat(r.AvgOrders60Days) }},
	{"reminders_count", "Reminders Count", func(r model.ClientRecord) string { return strconv.Itoa(r.RemindersCount) }},
	{"credit_limit", "Credit Limit", func(r model.ClientRecord) string { return formatFloat(r.CreditLimit) }},
	{"credit_used", "Credit Used", func(r model.ClientRecord) string { return formatFloat(r.CreditUsed) }},
	{"days_past_due", "Days Past Due", func(r model.ClientRecord) string { return strconv.Itoa(r.DaysPastDue) }},
	{"credit_utilization", "Credit Utilization (%)", func(r model.ClientRecord) string { return strconv.Itoa(r.CreditUtilization) }},
	{"risk_score", "Risk Score", func(r model.ClientRecord) string { return strconv.Itoa(r.RiskScore) }},
	{"risk_category", "Risk Category", func(r model.ClientRecord) string { return string(r.RiskCategory) }},
	{"risk_rationale", "Risk Rationale", func(r model.ClientRecord) string { return r.RiskRationale }},
}

// ColumnKeys returns the keys of all exportable columns.
func ColumnKeys() []string {
	keys := make([]string, len(Columns))
	for i, c := range Columns {
		keys[i] = c.Key
	}
	return keys
}

func lookupColumn(key string) (Column, bool) {
	for _, c := range Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// WriteCSV writes records as CSV with one column per key, in key order.
// The header row uses the column labels.
func WriteCSV(w io.Writer, records []model.ClientRecord, keys []string) error {
	if len(keys) == 0 {
		return eris.New("ingest: no export columns selected")
	}

	cols := make([]Column, 0, len(keys))
	header := make([]string, 0, len(keys))
	for _, k := range keys {
		c, ok := lookupColumn(k)
		if !ok {
			return eris.Errorf("ingest: unknown export column %q", k)
		}
		cols = append(cols, c)
		header = append(header, c.Label)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "ingest: write export header")
	}

	row := make([]string, len(cols))
	for _, r := range records {
		for i, c := range cols {
			row[i] = c.value(r)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "ingest: write export row %s", r.ID)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "ingest: flush export")
}

// ExportFilename is the download name for an export produced at now.
func ExportFilename(now time.Time) string {
	return "credit_risk_export_" + now.Format("2006-01-02") + ".csv"
}
