// Package pgstore persists quorra records in PostgreSQL.
//
// Committed records live in table data, staged records in table
// staged_data. Both tables carry a serial column so records list in the order
// they were committed. Every multi-statement operation runs in one
// transaction, which is what makes CommitStaged atomic on a node.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/dreamware/quorra/internal/cluster"
	"github.com/dreamware/quorra/internal/storage"
)

var Logger = logger.GetLogger("storage")

// uniqueViolation is the PostgreSQL error code for a unique constraint.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS data (
	seq       BIGSERIAL,
	data_id   TEXT PRIMARY KEY,
	raw       TEXT NOT NULL,
	signature TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS staged_data (
	seq       BIGSERIAL,
	data_id   TEXT PRIMARY KEY,
	raw       TEXT NOT NULL,
	signature TEXT NOT NULL
);`

// Store handles record persistence using PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.RecordStore = (*Store)(nil)

// New connects to databaseURL, verifies the connection and creates the
// tables if they don't exist.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	Logger.Infof("record store connected to %s", config.ConnConfig.Host)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Insert adds committed records in one transaction
func (s *Store) Insert(ctx context.Context, records ...cluster.Record) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, r := range records {
			if _, err := tx.Exec(ctx,
				`INSERT INTO data (data_id, raw, signature) VALUES ($1, $2, $3)`,
				r.ID, r.Raw, r.Signature,
			); err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err)
}

// List returns the committed records in commit order
func (s *Store) List(ctx context.Context) ([]cluster.Record, error) {
	return s.collect(ctx, `SELECT data_id, raw, signature FROM data ORDER BY seq`)
}

// Get returns the committed record with id
func (s *Store) Get(ctx context.Context, id string) (cluster.Record, bool, error) {
	var r cluster.Record
	err := s.pool.QueryRow(ctx,
		`SELECT data_id, raw, signature FROM data WHERE data_id = $1`, id,
	).Scan(&r.ID, &r.Raw, &r.Signature)
	if errors.Is(err, pgx.ErrNoRows) {
		return cluster.Record{}, false, nil
	}
	if err != nil {
		return cluster.Record{}, false, err
	}
	return r, true, nil
}

// Exists reports whether id is committed
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM data WHERE data_id = $1)`, id).Scan(&exists)
	return exists, err
}

// Count returns the number of committed records
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM data`).Scan(&n)
	return n, err
}

// Delete removes a committed record
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM data WHERE data_id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Stage adds a record to staged_data
func (s *Store) Stage(ctx context.Context, record cluster.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO staged_data (data_id, raw, signature) VALUES ($1, $2, $3)`,
		record.ID, record.Raw, record.Signature,
	)
	return translate(err)
}

// Staged returns the staged records in staging order
func (s *Store) Staged(ctx context.Context) ([]cluster.Record, error) {
	return s.collect(ctx, `SELECT data_id, raw, signature FROM staged_data ORDER BY seq`)
}

// CommitStaged moves one row of staged_data into data in one transaction
func (s *Store) CommitStaged(ctx context.Context, id string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO data (data_id, raw, signature)
			SELECT data_id, raw, signature FROM staged_data WHERE data_id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotStaged
		}
		_, err = tx.Exec(ctx, `DELETE FROM staged_data WHERE data_id = $1`, id)
		return err
	})
	return translate(err)
}

// DeleteStaged discards a staged record
func (s *Store) DeleteStaged(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM staged_data WHERE data_id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) collect(ctx context.Context, query string) ([]cluster.Record, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[cluster.Record])
}

// translate maps unique violations to storage.ErrDuplicate.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrDuplicate
	}
	return err
}
