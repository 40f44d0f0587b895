package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/historylog"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// transitions across all server instances sharing one database.
const advisoryLockKey = int64(2_024_061_701)

const (
	pgItemCols    = `item_id, case_id, creator, state, removal_reason, released_to, created_at, updated_at`
	pgHistoryCols = `seq, item_seq, event_id, case_id, item_id, action, state, actor, timestamp,
		removal_reason, released_to, prev_hash, hash`
)

// PostgresStore persists the ledger to PostgreSQL. The schema lives in
// migrations/ and is applied by cmd/migrate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// InitAdmin implements Store.
func (s *PostgresStore) InitAdmin(ctx context.Context, admin model.Identity) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO registry_admin (id, identity) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`, admin)
	if err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	existing, err := s.Admin(ctx)
	if err != nil {
		return err
	}
	if existing != admin {
		return model.ErrAdminAlreadySet
	}
	return nil
}

// Admin implements Store.
func (s *PostgresStore) Admin(ctx context.Context) (model.Identity, error) {
	var id model.Identity
	err := s.pool.QueryRow(ctx, `SELECT identity FROM registry_admin WHERE id = 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", model.ErrAdminNotSet
	}
	if err != nil {
		return "", fmt.Errorf("read admin: %w", err)
	}
	return id, nil
}

// AddAuthorized implements Store.
func (s *PostgresStore) AddAuthorized(ctx context.Context, id model.Identity) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO authorized_users (identity) VALUES ($1) ON CONFLICT (identity) DO NOTHING`, id)
	if err != nil {
		return false, fmt.Errorf("insert authorized user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsAuthorized implements Store.
func (s *PostgresStore) IsAuthorized(ctx context.Context, id model.Identity) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM authorized_users WHERE identity = $1)`, id,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check authorized user: %w", err)
	}
	return exists, nil
}

// ListAuthorized implements Store.
func (s *PostgresStore) ListAuthorized(ctx context.Context) ([]model.Identity, error) {
	rows, err := s.pool.Query(ctx, `SELECT identity FROM authorized_users ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("list authorized users: %w", err)
	}
	defer rows.Close()

	out := []model.Identity{}
	for rows.Next() {
		var id model.Identity
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan authorized user: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Apply implements Store.
// It acquires a transaction-scoped advisory lock, locks the item row, runs
// fn, and writes the item and its sealed history entry before committing.
func (s *PostgresStore) Apply(ctx context.Context, itemID string, fn TransitionFunc) (*historylog.Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Released automatically when the transaction commits or rolls back.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	current, err := scanPgItem(tx.QueryRow(ctx,
		`SELECT `+pgItemCols+` FROM evidence_items WHERE item_id = $1 FOR UPDATE`, itemID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		current = nil
	case err != nil:
		return nil, fmt.Errorf("read item: %w", err)
	}

	change, err := fn(current)
	if err != nil {
		return nil, err
	}
	if change == nil || change.Item.ItemID != itemID {
		return nil, fmt.Errorf("transition for %q returned no change for that item", itemID)
	}

	var prevSeq int64
	var prevHash string
	err = tx.QueryRow(ctx, `SELECT seq, hash FROM custody_history ORDER BY seq DESC LIMIT 1`).
		Scan(&prevSeq, &prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read history tail: %w", err)
	}
	var itemCount int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM custody_history WHERE item_id = $1`, itemID,
	).Scan(&itemCount); err != nil {
		return nil, fmt.Errorf("count item history: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	next := change.Item
	next.UpdatedAt = now
	entry := historylog.NewEntry(&next, change.Action, change.Actor, now)
	historylog.Seal(entry, prevSeq, prevHash, itemCount+1)

	if current == nil {
		next.CreatedAt = now
		if _, err := tx.Exec(ctx,
			`INSERT INTO cases (case_id) VALUES ($1) ON CONFLICT (case_id) DO NOTHING`, next.CaseID,
		); err != nil {
			return nil, fmt.Errorf("insert case: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO evidence_items (`+pgItemCols+`, created_seq)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			next.ItemID, next.CaseID, next.Creator, next.State, next.RemovalReason,
			next.ReleasedTo, next.CreatedAt, next.UpdatedAt, entry.Seq,
		); err != nil {
			return nil, fmt.Errorf("insert item: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx,
			`UPDATE evidence_items
			 SET state = $2, removal_reason = $3, released_to = $4, updated_at = $5
			 WHERE item_id = $1`,
			next.ItemID, next.State, next.RemovalReason, next.ReleasedTo, next.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("update item: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO custody_history (`+pgHistoryCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.Seq, entry.ItemSeq, entry.EventID, entry.CaseID, entry.ItemID,
		entry.Action, entry.State, entry.Actor, entry.Timestamp,
		entry.RemovalReason, entry.ReleasedTo, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert history entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Debug("history entry appended",
		zap.Int64("seq", entry.Seq),
		zap.String("item_id", entry.ItemID),
		zap.String("action", string(entry.Action)),
	)
	return entry, nil
}

// GetItem implements Store.
func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (*model.Item, error) {
	it, err := scanPgItem(s.pool.QueryRow(ctx,
		`SELECT `+pgItemCols+` FROM evidence_items WHERE item_id = $1`, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %q", model.ErrNotFound, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %q: %w", itemID, err)
	}
	return it, nil
}

// ListCases implements Store.
func (s *PostgresStore) ListCases(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT case_id FROM cases ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListItemsByCase implements Store.
func (s *PostgresStore) ListItemsByCase(ctx context.Context, caseID string) ([]*model.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgItemCols+` FROM evidence_items WHERE case_id = $1 ORDER BY created_seq`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []*model.Item
	for rows.Next() {
		it, err := scanPgItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: case %q", model.ErrNotFound, caseID)
	}
	return out, nil
}

// History implements Store.
func (s *PostgresStore) History(ctx context.Context, itemID string) ([]historylog.Entry, error) {
	out, err := s.queryEntries(ctx,
		`SELECT `+pgHistoryCols+` FROM custody_history WHERE item_id = $1 ORDER BY item_seq`, itemID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: item %q", model.ErrNotFound, itemID)
	}
	return out, nil
}

// Entries implements Store. O(n) in log length.
func (s *PostgresStore) Entries(ctx context.Context) ([]historylog.Entry, error) {
	return s.queryEntries(ctx, `SELECT `+pgHistoryCols+` FROM custody_history ORDER BY seq`)
}

func (s *PostgresStore) queryEntries(ctx context.Context, query string, args ...any) ([]historylog.Entry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []historylog.Entry{}
	for rows.Next() {
		var e historylog.Entry
		if err := rows.Scan(
			&e.Seq, &e.ItemSeq, &e.EventID, &e.CaseID, &e.ItemID, &e.Action, &e.State, &e.Actor,
			&e.Timestamp, &e.RemovalReason, &e.ReleasedTo, &e.PrevHash, &e.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close implements Store. The pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

func scanPgItem(row pgx.Row) (*model.Item, error) {
	var it model.Item
	if err := row.Scan(
		&it.ItemID, &it.CaseID, &it.Creator, &it.State, &it.RemovalReason,
		&it.ReleasedTo, &it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return nil, err
	}
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return &it, nil
}
