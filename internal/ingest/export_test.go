package ingest

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-cli/internal/model"
)

func sampleRecords() []model.ClientRecord {
	return []model.ClientRecord{
		{
			RawInvoice: model.RawInvoice{
				ID: "C-1", Name: `Smith, "Jr" & Co`, InvoiceAmount: 1250.5,
				RemindersCount: 2, CreditLimit: 1000, CreditUsed: 750,
			},
			DaysPastDue: 12, CreditUtilization: 75, RiskScore: 40,
			RiskCategory: model.RiskMedium, RiskRationale: "Slightly overdue (12 days). High credit utilization (75%).",
		},
	}
}

func TestWriteCSV_SelectedColumns(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, sampleRecords(), []string{"name", "invoice_amount", "risk_category", "risk_rationale"})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Name", "Invoice Amount", "Risk Category", "Risk Rationale"}, rows[0])
	assert.Equal(t, []string{`Smith, "Jr" & Co`, "1250.5", "Medium", "Slightly overdue (12 days). High credit utilization (75%)."}, rows[1])
}

func TestWriteCSV_AllColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords(), ColumnKeys()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 17)
	assert.Equal(t, "Customer ID", rows[0][0])
	assert.Equal(t, "Credit Utilization (%)", rows[0][13])
	assert.Equal(t, "75", rows[1][13])
}

func TestWriteCSV_Errors(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, sampleRecords(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no export columns")

	err = WriteCSV(&buf, sampleRecords(), []string{"name", "shoe_size"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shoe_size")
}

func TestWriteCSV_RoundTripsThroughParser(t *testing.T) {
	in := fullHeader + "\n" +
		`C-9,"Comma, Inc",x@y.test,555,100,2024-01-01,2024-03-01,,7,2,1000,500` + "\n"
	records, err := ParseCSV(in, testNow)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records, []string{"id", "name", "days_past_due", "risk_score"}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "Comma, Inc", rows[1][1])
	assert.Equal(t, "31", rows[1][2])
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2025, 3, 7, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "credit_risk_export_2025-03-07.csv", ExportFilename(now))
}
