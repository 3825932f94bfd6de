package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/ingest"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/scorer"
	"github.com/sells-group/risk-cli/internal/store"
)

// inputFlags selects the records a command works on: one or more sources
// scored now, or a previously saved batch.
type inputFlags struct {
	sources []string
	batchID string
	sheet   int
	now     string
}

func addInputFlags(cmd *cobra.Command, in *inputFlags) {
	f := cmd.Flags()
	f.StringArrayVar(&in.sources, "source", nil, "CSV/XLSX path or http(s)/ftp URL (repeatable)")
	f.StringVar(&in.batchID, "batch", "", "use a saved batch instead of --source")
	f.IntVar(&in.sheet, "sheet", 0, "worksheet index for .xlsx sources")
	f.StringVar(&in.now, "now", "", "reference date for days past due, YYYY-MM-DD (default today)")
}

// load returns the selected records as a batch. Sources are fetched
// concurrently and their records concatenated in flag order.
func (in *inputFlags) load(ctx context.Context) (*model.Batch, error) {
	if in.batchID != "" {
		if len(in.sources) > 0 {
			return nil, eris.New("--batch and --source are mutually exclusive")
		}
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		defer st.Close() //nolint:errcheck
		b, err := st.GetBatch(ctx, in.batchID)
		if err != nil {
			return nil, eris.Wrapf(err, "load batch %s", in.batchID)
		}
		return b, nil
	}

	if len(in.sources) == 0 {
		return nil, eris.New("at least one --source (or --batch) is required")
	}
	now, err := parseNow(in.now)
	if err != nil {
		return nil, err
	}
	records, err := loadSources(ctx, newRouter(), in.sources, in.sheet, now, cfg.Fetch.Concurrency)
	if err != nil {
		return nil, err
	}
	return &model.Batch{
		Source:     strings.Join(in.sources, ","),
		ScoredAt:   now,
		ConfigHash: scorer.ConfigHash(),
		Records:    records,
		Count:      len(records),
	}, nil
}

func parseNow(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, ok := scorer.ParseDate(s)
	if !ok {
		return time.Time{}, eris.Errorf("invalid --now %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

func loadSources(ctx context.Context, o ingest.Opener, sources []string, sheet int, now time.Time, concurrency int) ([]model.ClientRecord, error) {
	results := make([][]model.ClientRecord, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, src := range sources {
		g.Go(func() error {
			records, err := ingest.LoadSource(gctx, o, src, sheet, now)
			if err != nil {
				return err
			}
			results[i] = records
			zap.L().Debug("source loaded", zap.String("source", src), zap.Int("records", len(records)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := []model.ClientRecord{}
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func newRouter() *fetcher.Router {
	return fetcher.New(fetcher.Options{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    cfg.Fetch.Timeout(),
		MaxRetries: cfg.Fetch.MaxRetries,
		RatePerSec: cfg.Fetch.RatePerSec,
	})
}

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}
