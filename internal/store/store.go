// Package store persists scored batches so they can be listed, reloaded
// and queried later without re-reading the source file.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/model"
)

// ErrNotFound is returned when a batch ID does not exist.
var ErrNotFound = eris.New("store: not found")

// DefaultListLimit caps ListBatches when the filter sets no limit.
const DefaultListLimit = 100

// BatchFilter narrows ListBatches.
type BatchFilter struct {
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

func (f BatchFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store persists batches.
type Store interface {
	// SaveBatch assigns an ID and CreatedAt when unset and stores the batch
	// with its records.
	SaveBatch(ctx context.Context, b *model.Batch) error
	// GetBatch returns the batch with its records in original order.
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	// ListBatches returns batch metadata, newest first, without records.
	ListBatches(ctx context.Context, filter BatchFilter) ([]model.Batch, error)
	DeleteBatch(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the store for driver and runs migrations. poolCfg only
// applies to Postgres and may be nil.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(driver) {
	case DriverSQLite, "":
		s, err = NewSQLite(dsn)
	case DriverPostgres, "postgresql", "pgx":
		s, err = NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func prepareBatch(b *model.Batch) error {
	if b == nil {
		return eris.New("store: nil batch")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.Count = len(b.Records)
	return nil
}
