package ingest

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/scorer"
)

var dateColumns = []string{ColInvoiceDate, ColDueDate, ColPaymentDate}

// ParseXLSX reads the sheet at index sheet of an Excel workbook and builds
// scored records from it. The first row is the header; field mapping and
// defaults match ParseCSV. Date cells stored as Excel serial numbers are
// converted to YYYY-MM-DD.
func ParseXLSX(path string, sheet int, now time.Time) ([]model.ClientRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if sheet < 0 || sheet >= len(f.Sheets) {
		return nil, eris.Errorf("ingest: sheet index %d out of range (file has %d sheets)", sheet, len(f.Sheets))
	}

	rows := f.Sheets[sheet].Rows
	records := []model.ClientRecord{}
	if len(rows) == 0 {
		return records, nil
	}

	idx := newHeaderIndex(rowToStrings(rows[0]))
	i := 0
	for _, row := range rows[1:] {
		if row == nil {
			continue
		}
		cells := rowToStrings(row)
		if blankRow(cells) {
			continue
		}
		for _, col := range dateColumns {
			if pos, ok := idx[col]; ok && pos < len(row.Cells) {
				cells[pos] = excelDate(row.Cells[pos], cells[pos])
			}
		}
		records = append(records, scorer.Evaluate(idx.rawFromRow(cells, i), now))
		i++
	}

	return records, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = cell.String()
	}
	return cells
}

// excelDate rewrites a serial-number date cell as YYYY-MM-DD. Text that
// already parses as a date is returned unchanged.
func excelDate(cell *xlsx.Cell, text string) string {
	if text == "" || cell == nil {
		return text
	}
	if _, ok := scorer.ParseDate(text); ok {
		return text
	}
	serial, err := strconv.ParseFloat(cell.Value, 64)
	if err != nil || serial <= 0 {
		return text
	}
	return xlsx.TimeFromExcelTime(serial, false).Round(time.Second).Format("2006-01-02")
}
