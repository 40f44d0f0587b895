package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/historylog"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS registry_admin (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	identity TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS authorized_users (
	identity TEXT PRIMARY KEY,
	added_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cases (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	case_id TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS evidence_items (
	item_id        TEXT PRIMARY KEY,
	case_id        TEXT NOT NULL,
	creator        TEXT NOT NULL,
	state          TEXT NOT NULL,
	removal_reason TEXT NOT NULL,
	released_to    TEXT NOT NULL DEFAULT '',
	created_seq    INTEGER NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS evidence_items_case_idx ON evidence_items (case_id, created_seq);
CREATE TABLE IF NOT EXISTS custody_history (
	seq            INTEGER PRIMARY KEY,
	item_seq       INTEGER NOT NULL,
	event_id       TEXT NOT NULL,
	case_id        TEXT NOT NULL,
	item_id        TEXT NOT NULL,
	action         TEXT NOT NULL,
	state          TEXT NOT NULL,
	actor          TEXT NOT NULL,
	timestamp      TEXT NOT NULL,
	removal_reason TEXT NOT NULL,
	released_to    TEXT NOT NULL DEFAULT '',
	prev_hash      TEXT NOT NULL,
	hash           TEXT NOT NULL,
	UNIQUE (item_id, item_seq)
);`

const (
	sqliteItemCols    = `item_id, case_id, creator, state, removal_reason, released_to, created_at, updated_at`
	sqliteHistoryCols = `seq, item_seq, event_id, case_id, item_id, action, state, actor, timestamp,
		removal_reason, released_to, prev_hash, hash`
)

// SQLiteStore persists the ledger to a single SQLite file. SQLite allows one
// writer at a time; the store additionally serialises transitions with a
// process mutex and keeps a single connection so reads see committed state.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = "custody.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range strings.Split(sqliteSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

// InitAdmin implements Store.
func (s *SQLiteStore) InitAdmin(ctx context.Context, admin model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT identity FROM registry_admin WHERE id = 1`).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO registry_admin (id, identity) VALUES (1, ?)`, string(admin),
		); err != nil {
			return fmt.Errorf("insert admin: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read admin: %w", err)
	case model.Identity(existing) == admin:
		return nil
	default:
		return model.ErrAdminAlreadySet
	}
}

// Admin implements Store.
func (s *SQLiteStore) Admin(ctx context.Context) (model.Identity, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT identity FROM registry_admin WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrAdminNotSet
	}
	if err != nil {
		return "", fmt.Errorf("read admin: %w", err)
	}
	return model.Identity(id), nil
}

// AddAuthorized implements Store.
func (s *SQLiteStore) AddAuthorized(ctx context.Context, id model.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO authorized_users (identity, added_at) VALUES (?, ?)`,
		string(id), formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("insert authorized user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// IsAuthorized implements Store.
func (s *SQLiteStore) IsAuthorized(ctx context.Context, id model.Identity) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM authorized_users WHERE identity = ?)`, string(id),
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check authorized user: %w", err)
	}
	return exists, nil
}

// ListAuthorized implements Store.
func (s *SQLiteStore) ListAuthorized(ctx context.Context) ([]model.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identity FROM authorized_users ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("list authorized users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []model.Identity{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan authorized user: %w", err)
		}
		out = append(out, model.Identity(id))
	}
	return out, rows.Err()
}

// Apply implements Store.
func (s *SQLiteStore) Apply(ctx context.Context, itemID string, fn TransitionFunc) (_ *historylog.Entry, retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := scanSQLiteItem(tx.QueryRowContext(ctx,
		`SELECT `+sqliteItemCols+` FROM evidence_items WHERE item_id = ?`, itemID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
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
	err = tx.QueryRowContext(ctx, `SELECT seq, hash FROM custody_history ORDER BY seq DESC LIMIT 1`).
		Scan(&prevSeq, &prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read history tail: %w", err)
	}
	var itemCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM custody_history WHERE item_id = ?`, itemID,
	).Scan(&itemCount); err != nil {
		return nil, fmt.Errorf("count item history: %w", err)
	}

	now := time.Now().UTC()
	next := change.Item
	next.UpdatedAt = now
	entry := historylog.NewEntry(&next, change.Action, change.Actor, now)
	historylog.Seal(entry, prevSeq, prevHash, itemCount+1)

	if current == nil {
		next.CreatedAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO cases (case_id) VALUES (?)`, next.CaseID,
		); err != nil {
			return nil, fmt.Errorf("insert case: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO evidence_items (`+sqliteItemCols+`, created_seq)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			next.ItemID, next.CaseID, string(next.Creator), string(next.State),
			string(next.RemovalReason), next.ReleasedTo,
			formatTime(next.CreatedAt), formatTime(next.UpdatedAt), entry.Seq,
		); err != nil {
			return nil, fmt.Errorf("insert item: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`UPDATE evidence_items
			 SET state = ?, removal_reason = ?, released_to = ?, updated_at = ?
			 WHERE item_id = ?`,
			string(next.State), string(next.RemovalReason), next.ReleasedTo,
			formatTime(next.UpdatedAt), next.ItemID,
		); err != nil {
			return nil, fmt.Errorf("update item: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO custody_history (`+sqliteHistoryCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.ItemSeq, entry.EventID.String(), entry.CaseID, entry.ItemID,
		string(entry.Action), string(entry.State), string(entry.Actor), formatTime(entry.Timestamp),
		string(entry.RemovalReason), entry.ReleasedTo, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert history entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
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
func (s *SQLiteStore) GetItem(ctx context.Context, itemID string) (*model.Item, error) {
	it, err := scanSQLiteItem(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteItemCols+` FROM evidence_items WHERE item_id = ?`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %q", model.ErrNotFound, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %q: %w", itemID, err)
	}
	return it, nil
}

// ListCases implements Store.
func (s *SQLiteStore) ListCases(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT case_id FROM cases ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *SQLiteStore) ListItemsByCase(ctx context.Context, caseID string) ([]*model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteItemCols+` FROM evidence_items WHERE case_id = ? ORDER BY created_seq`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Item
	for rows.Next() {
		it, err := scanSQLiteItem(rows)
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
func (s *SQLiteStore) History(ctx context.Context, itemID string) ([]historylog.Entry, error) {
	out, err := s.queryEntries(ctx,
		`SELECT `+sqliteHistoryCols+` FROM custody_history WHERE item_id = ? ORDER BY item_seq`, itemID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: item %q", model.ErrNotFound, itemID)
	}
	return out, nil
}

// Entries implements Store.
func (s *SQLiteStore) Entries(ctx context.Context) ([]historylog.Entry, error) {
	return s.queryEntries(ctx, `SELECT `+sqliteHistoryCols+` FROM custody_history ORDER BY seq`)
}

func (s *SQLiteStore) queryEntries(ctx context.Context, query string, args ...any) ([]historylog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []historylog.Entry{}
	for rows.Next() {
		var (
			e                                    historylog.Entry
			eventID, action, state, actor, ts, r string
		)
		if err := rows.Scan(
			&e.Seq, &e.ItemSeq, &eventID, &e.CaseID, &e.ItemID, &action, &state, &actor, &ts,
			&r, &e.ReleasedTo, &e.PrevHash, &e.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if e.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("parse event id at seq %d: %w", e.Seq, err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse timestamp at seq %d: %w", e.Seq, err)
		}
		e.Action = model.Action(action)
		e.State = model.State(state)
		e.Actor = model.Identity(actor)
		e.RemovalReason = model.RemovalReason(r)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteItem(row rowScanner) (*model.Item, error) {
	var (
		it                                   model.Item
		creator, state, reason, created, upd string
	)
	if err := row.Scan(&it.ItemID, &it.CaseID, &creator, &state, &reason, &it.ReleasedTo, &created, &upd); err != nil {
		return nil, err
	}
	var err error
	if it.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if it.UpdatedAt, err = parseTime(upd); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	it.Creator = model.Identity(creator)
	it.State = model.State(state)
	it.RemovalReason = model.RemovalReason(reason)
	return &it, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }
