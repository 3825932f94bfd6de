package ingest

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/model"
)

// Opener resolves a source string to its contents. *fetcher.Router
// satisfies it.
type Opener interface {
	Open(ctx context.Context, source string) (io.ReadCloser, error)
	Materialize(ctx context.Context, source string) (path string, cleanup func(), err error)
}

// LoadSource reads and scores the records at source, which may be a local
// path or a remote URL. Workbooks (.xlsx) are read from sheet; everything
// else is parsed as CSV.
func LoadSource(ctx context.Context, o Opener, source string, sheet int, now time.Time) ([]model.ClientRecord, error) {
	if fetcher.IsSpreadsheet(source) {
		path, cleanup, err := o.Materialize(ctx, source)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		records, err := ParseXLSX(path, sheet, now)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: load %s", source)
		}
		return records, nil
	}

	rc, err := o.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	records, err := ParseReader(ctx, rc, now)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: load %s", source)
	}
	return records, nil
}
