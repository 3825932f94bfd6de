package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/portfolio"
	"github.com/sells-group/risk-cli/internal/store"
)

// BatchSnapshot holds the risk figures of one saved batch.
type BatchSnapshot struct {
	BatchID        string          `json:"batch_id"`
	Source         string          `json:"source"`
	ScoredAt       time.Time       `json:"scored_at"`
	CreatedAt      time.Time       `json:"created_at"`
	TotalClients   int             `json:"total_clients"`
	TotalAR        decimal.Decimal `json:"total_ar"`
	HighRisk       int             `json:"high_risk"`
	HighRiskShare  float64         `json:"high_risk_share"`
	HighRiskValue  decimal.Decimal `json:"high_risk_value"`
	Overdue90      int             `json:"overdue_90"`
	Overdue90Value decimal.Decimal `json:"overdue_90_value"`
	AverageScore   int             `json:"average_score"`
}

// MetricsSnapshot covers the batches saved within the lookback window,
// newest first.
type MetricsSnapshot struct {
	Batches       []BatchSnapshot `json:"batches"`
	LookbackHours int             `json:"lookback_hours"`
	CollectedAt   time.Time       `json:"collected_at"`
}

// Collector reads saved batches and summarizes them.
type Collector struct {
	store store.Store
	now   func() time.Time
}

// NewCollector creates a Collector over st.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect summarizes every batch created in the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := c.now().UTC()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	metas, err := c.store.ListBatches(ctx, store.BatchFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list batches")
	}

	snap := &MetricsSnapshot{
		Batches:       []BatchSnapshot{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	for _, m := range metas {
		// ListBatches is newest first.
		if m.CreatedAt.Before(cutoff) {
			break
		}
		b, err := c.store.GetBatch(ctx, m.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: get batch %s", m.ID)
		}
		snap.Batches = append(snap.Batches, Snapshot(b))
	}
	return snap, nil
}

// Snapshot summarizes a single batch.
func Snapshot(b *model.Batch) BatchSnapshot {
	s := portfolio.Summarize(b.Records)
	high := s.Category(model.RiskHigh)

	bs := BatchSnapshot{
		BatchID:        b.ID,
		Source:         b.Source,
		ScoredAt:       b.ScoredAt,
		CreatedAt:      b.CreatedAt,
		TotalClients:   s.TotalClients,
		TotalAR:        s.TotalAR,
		HighRisk:       high.Count,
		HighRiskValue:  high.Value,
		Overdue90:      s.Overdue90,
		Overdue90Value: s.Overdue90Value,
		AverageScore:   s.AverageRiskScore,
	}
	if s.TotalClients > 0 {
		bs.HighRiskShare = float64(high.Count) / float64(s.TotalClients)
	}
	return bs
}
