package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fd1az/perp-router/business/execution/app"
	"github.com/fd1az/perp-router/business/execution/domain"
	"github.com/fd1az/perp-router/internal/apperror"
)

const schema = `
CREATE TABLE IF NOT EXISTS execution_history (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	route        TEXT NOT NULL DEFAULT '',
	pair         TEXT NOT NULL DEFAULT '',
	path_id      TEXT NOT NULL DEFAULT '',
	tx_hash      TEXT NOT NULL DEFAULT '',
	approve_hash TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS execution_history_created_at_idx ON execution_history (created_at DESC);
`

// defaultListLimit caps List when the caller passes no limit.
const defaultListLimit = 1000

var _ app.HistoryStore = (*Postgres)(nil)

// Postgres persists records in the execution_history table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the table when missing.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("history.postgres_dsn is required"))
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperror.New(apperror.CodeHistoryStoreFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("connect: %v", err)))
	}
	p := &Postgres{pool: pool}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// EnsureSchema creates the history table and index.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return apperror.New(apperror.CodeHistoryStoreFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("ensure schema: %v", err)))
	}
	return nil
}

// Save inserts rec. Saving the same id twice overwrites the status fields.
func (p *Postgres) Save(ctx context.Context, rec domain.Record) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO execution_history (
			id, kind, route, pair, path_id, tx_hash, approve_hash, status, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id)
		DO UPDATE SET
			tx_hash = EXCLUDED.tx_hash,
			approve_hash = EXCLUDED.approve_hash,
			status = EXCLUDED.status,
			error = EXCLUDED.error
	`,
		rec.ID,
		string(rec.Kind),
		rec.Route,
		rec.Pair,
		rec.PathID,
		rec.TxHash,
		rec.ApproveHash,
		string(rec.Status),
		rec.Error,
		rec.CreatedAt,
	)
	if err != nil {
		return apperror.New(apperror.CodeHistoryStoreFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("save %s: %v", rec.ID, err)))
	}
	return nil
}

// List returns up to limit records, newest first.
func (p *Postgres) List(ctx context.Context, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, kind, route, pair, path_id, tx_hash, approve_hash, status, error, created_at
		FROM execution_history
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperror.New(apperror.CodeHistoryStoreFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("list: %v", err)))
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			rec          domain.Record
			kind, status string
		)
		if err := rows.Scan(&rec.ID, &kind, &rec.Route, &rec.Pair, &rec.PathID,
			&rec.TxHash, &rec.ApproveHash, &status, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, apperror.New(apperror.CodeHistoryStoreFailed,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("scan: %v", err)))
		}
		rec.Kind, rec.Status = domain.Kind(kind), domain.Status(status)
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.New(apperror.CodeHistoryStoreFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("list: %v", err)))
	}
	return out, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
