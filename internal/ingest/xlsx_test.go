package ingest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/risk-cli/internal/model"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Invoices")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			cell := row.AddCell()
			cell.SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "invoices.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestParseXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"CustomerID", "Name", "DueDate", "PaymentDate", "RemindersCount", "AvgOrders60Days", "CreditLimit", "CreditUsed"},
		{"X-1", "Initech", "2024-01-01", "", "3", "2", "1000", "900"},
		{"", "", "", "", "", "", "", ""},
		{"", "Hooli", "2024-03-25", "2024-03-26", "0", "15", "2000", "200"},
	})

	records, err := ParseXLSX(path, 0, testNow)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "X-1", records[0].ID)
	assert.Equal(t, 100, records[0].RiskScore)
	assert.Equal(t, model.RiskHigh, records[0].RiskCategory)

	assert.Equal(t, "client-1", records[1].ID)
	assert.Equal(t, "Hooli", records[1].Name)
	assert.Equal(t, 1, records[1].DaysPastDue)
	assert.Equal(t, 10, records[1].CreditUtilization)
}

func TestParseXLSX_SerialDates(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Invoices")
	require.NoError(t, err)

	header := sheet.AddRow()
	for _, h := range []string{"CustomerID", "DueDate"} {
		header.AddCell().SetString(h)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("S-1")
	row.AddCell().SetDateTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	path := filepath.Join(t.TempDir(), "serial.xlsx")
	require.NoError(t, f.Save(path))

	records, err := ParseXLSX(path, 0, testNow)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-01-01", records[0].DueDate)
	assert.Equal(t, 91, records[0].DaysPastDue)
}

func TestParseXLSX_SheetOutOfRange(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"CustomerID"}})

	_, err := ParseXLSX(path, 3, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestParseXLSX_MissingFile(t *testing.T) {
	_, err := ParseXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), 0, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open xlsx")
}
