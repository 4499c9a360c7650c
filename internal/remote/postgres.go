// Package remote implements the hosted backend the sync engine writes to:
// PostgreSQL rows through pgx and attachment blobs through an object store.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/models"
)

// querier is the subset of pgxpool.Pool used for inserts.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresRepository inserts report rows into the remote database.
type PostgresRepository struct {
	pool    querier
	closer  func()
	allowed map[string]bool
}

// NewPostgresRepository creates a lazily connecting pool.
// It does not ping: the device may well be offline at startup.
func NewPostgresRepository(ctx context.Context, connString string, tables ...string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "parse DATABASE_URL", err)
	}
	config.MaxConns = 2

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteNotConfigured, "create postgres pool", err)
	}

	r := newPostgresRepository(p, tables...)
	r.closer = p.Close
	return r, nil
}

func newPostgresRepository(q querier, tables ...string) *PostgresRepository {
	allowed := make(map[string]bool, len(tables))
	for _, t := range tables {
		allowed[t] = true
	}
	return &PostgresRepository{pool: q, allowed: allowed}
}

// InsertRecord inserts payload into table. Re-inserting an existing id is a no-op
// reported with Inserted=false.
func (r *PostgresRepository) InsertRecord(ctx context.Context, table string, payload map[string]any) (*models.InsertedRow, error) {
	if !r.allowed[table] {
		return nil, apperrors.New(apperrors.ErrTableNotAllowed, fmt.Sprintf("table %q is not writable", table))
	}

	query, args, err := BuildInsert(table, payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "build insert", err)
	}

	var id string
	err = r.pool.QueryRow(ctx, query, args...).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return &models.InsertedRow{ID: fmt.Sprint(payload["id"]), Inserted: false}, nil
	case err != nil:
		return nil, apperrors.Wrap(apperrors.ErrRemoteInsert, fmt.Sprintf("insert into %s", table), err)
	}
	return &models.InsertedRow{ID: id, Inserted: true}, nil
}

// Ping checks the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrSyncOffline, "remote database unreachable", err)
	}
	return nil
}

// Close closes the pool.
func (r *PostgresRepository) Close() {
	if r.closer != nil {
		r.closer()
	}
}
