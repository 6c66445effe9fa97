package cache

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/feed-copilot/internal/types"
)

// Table holds one row per slot.
const Table = "profile_cache"

const createTableSQL = `CREATE TABLE IF NOT EXISTS ` + Table + ` (
	slot       TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore keeps the slot in a PostgreSQL row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres establishes a connection pool and ensures the table exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, &StoreError{Backend: BackendPostgres, Op: "connect", Cause: errors.New("database URL is required")}
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, &StoreError{Backend: BackendPostgres, Op: "connect", Cause: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &StoreError{Backend: BackendPostgres, Op: "ping", Cause: err}
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, &StoreError{Backend: BackendPostgres, Op: "migrate", Cause: err}
	}

	return &PostgresStore{pool: pool}, nil
}

func selectSlot() (string, []any, error) {
	return psql.Select("payload").From(Table).Where(sq.Eq{"slot": Slot}).ToSql()
}

func upsertSlot(payload []byte) (string, []any, error) {
	return psql.Insert(Table).
		Columns("slot", "payload", "updated_at").
		Values(Slot, payload, sq.Expr("NOW()")).
		Suffix("ON CONFLICT (slot) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at").
		ToSql()
}

func deleteSlot() (string, []any, error) {
	return psql.Delete(Table).Where(sq.Eq{"slot": Slot}).ToSql()
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (types.CachedProfileSet, error) {
	query, args, err := selectSlot()
	if err != nil {
		return nil, &StoreError{Backend: BackendPostgres, Op: "load", Cause: err}
	}

	var payload []byte
	err = s.pool.QueryRow(ctx, query, args...).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.CachedProfileSet{}, nil
	}
	if err != nil {
		return nil, &StoreError{Backend: BackendPostgres, Op: "load", Cause: err}
	}

	set, err := decode(payload)
	if err != nil {
		return nil, &StoreError{Backend: BackendPostgres, Op: "load", Cause: err}
	}
	return set, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, set types.CachedProfileSet) error {
	payload, err := encode(set)
	if err != nil {
		return &StoreError{Backend: BackendPostgres, Op: "save", Cause: err}
	}

	query, args, err := upsertSlot(payload)
	if err != nil {
		return &StoreError{Backend: BackendPostgres, Op: "save", Cause: err}
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return &StoreError{Backend: BackendPostgres, Op: "save", Cause: fmt.Errorf("upsert %s: %w", Slot, err)}
	}
	return nil
}

// Clear implements Store.
func (s *PostgresStore) Clear(ctx context.Context) error {
	query, args, err := deleteSlot()
	if err != nil {
		return &StoreError{Backend: BackendPostgres, Op: "clear", Cause: err}
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return &StoreError{Backend: BackendPostgres, Op: "clear", Cause: err}
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
