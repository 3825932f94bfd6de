package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/scorer"
)

// ParseCSV parses CSV text into scored records, measuring lateness against
// now. The first row is the header. Quoted fields may contain commas.
// Missing or malformed values fall back to defaults instead of failing the
// batch; input without a header yields no records.
func ParseCSV(text string, now time.Time) ([]model.ClientRecord, error) {
	return ParseReader(context.Background(), strings.NewReader(text), now)
}

// ParseReader is the streaming form of ParseCSV. It stops early if ctx is
// cancelled.
func ParseReader(ctx context.Context, r io.Reader, now time.Time) ([]model.ClientRecord, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []model.ClientRecord{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv header")
	}
	idx := newHeaderIndex(header)

	records := []model.ClientRecord{}
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ingest: context cancelled")
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read csv row %d", i+1)
		}
		if blankRow(row) {
			i--
			continue
		}

		records = append(records, scorer.Evaluate(idx.rawFromRow(row, i), now))
	}

	return records, nil
}

// blankRow reports whether every field of a row is empty. Such rows come
// from trailing delimiters ("  ,,,") rather than real data.
func blankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
