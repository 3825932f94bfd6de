package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/db"
	"github.com/sells-group/risk-cli/internal/model"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore keeps batch metadata in batches and one row per record in
// client_records, loaded with COPY.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres connects a pool and pings it. A nil poolCfg uses 10 max and
// 1 min connections.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns, cfg.MinConns = 10, 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			cfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			cfg.MinConns = poolCfg.MinConns
		}
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	scored_at    TIMESTAMPTZ NOT NULL,
	config_hash  TEXT NOT NULL,
	record_count INTEGER NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS client_records (
	batch_id           TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	position           INTEGER NOT NULL,
	customer_id        TEXT NOT NULL,
	name               TEXT NOT NULL,
	days_past_due      INTEGER NOT NULL,
	credit_utilization INTEGER NOT NULL,
	risk_score         INTEGER NOT NULL,
	risk_category      TEXT NOT NULL,
	record             JSONB NOT NULL,
	PRIMARY KEY (batch_id, position)
);

CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_client_records_category ON client_records(batch_id, risk_category);
`

var recordColumns = []string{
	"batch_id", "position", "customer_id", "name",
	"days_past_due", "credit_utilization", "risk_score", "risk_category", "record",
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveBatch(ctx context.Context, b *model.Batch) error {
	if err := prepareBatch(b); err != nil {
		return err
	}

	rows := make([][]any, len(b.Records))
	for i, r := range b.Records {
		data, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal record %d", i)
		}
		rows[i] = []any{
			b.ID, i, r.ID, r.Name,
			r.DaysPastDue, r.CreditUtilization, r.RiskScore, string(r.RiskCategory), data,
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save batch")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO batches (id, source, scored_at, config_hash, record_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.Source, b.ScoredAt, b.ConfigHash, b.Count, b.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert batch %s", b.ID)
	}
	if _, err := db.CopyFrom(ctx, tx, "client_records", recordColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy records of %s", b.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit save batch")
	}

	zap.L().Debug("postgres: batch saved", zap.String("batch_id", b.ID), zap.Int("records", b.Count))
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	var b model.Batch
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, scored_at, config_hash, record_count, created_at FROM batches WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Source, &b.ScoredAt, &b.ConfigHash, &b.Count, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: batch %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch %s", id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT record FROM client_records WHERE batch_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get records of %s", id)
	}
	defer rows.Close()

	b.Records = make([]model.ClientRecord, 0, b.Count)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var r model.ClientRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		b.Records = append(b.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate records")
	}
	return &b, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.Batch, error) {
	q := psql.Select("id", "source", "scored_at", "config_hash", "record_count", "created_at").
		From("batches").
		OrderBy("created_at DESC", "id").
		Limit(uint64(filter.limit())).
		Offset(uint64(max(filter.Offset, 0)))
	if filter.Source != "" {
		q = q.Where(sq.Eq{"source": filter.Source})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	out := []model.Batch{}
	for rows.Next() {
		var b model.Batch
		if err := rows.Scan(&b.ID, &b.Source, &b.ScoredAt, &b.ConfigHash, &b.Count, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete batch %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: batch %s", id)
	}
	return nil
}
