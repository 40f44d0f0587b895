// Package repository holds the transactional stores behind the custody ledger.
//
// Three engines implement Store:
//   - MemoryStore: in-process, for tests and single-process deployments.
//   - SQLiteStore: embedded single-file persistence.
//   - PostgresStore: durable, multi-instance persistence.
//
// All engines serialise transitions behind a single writer so that the
// per-item precondition checks, the item record update, and the history
// append happen as one indivisible step, and so that the history hash chain
// stays linear.
package repository

import (
	"context"

	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/historylog"
)

// Change is the outcome of a TransitionFunc: the item as it must look after
// the transition and the identity that performed it.
type Change struct {
	Item   model.Item
	Action model.Action
	Actor  model.Identity
}

// TransitionFunc inspects the current item (nil if itemID does not exist)
// and either returns the change to commit or an error that aborts the
// transaction. It runs while the store holds the writer lock and must not
// call back into the store.
type TransitionFunc func(current *model.Item) (*Change, error)

// Store is the persistence contract of the custody ledger.
type Store interface {
	// InitAdmin records the administrator identity. Calling it again with the
	// same identity is a no-op; a different identity yields ErrAdminAlreadySet.
	InitAdmin(ctx context.Context, admin model.Identity) error
	// Admin returns the administrator identity or ErrAdminNotSet.
	Admin(ctx context.Context) (model.Identity, error)
	// AddAuthorized inserts id into the authorized set and reports whether it
	// was newly added.
	AddAuthorized(ctx context.Context, id model.Identity) (bool, error)
	// IsAuthorized reports membership in the authorized set only; the admin
	// rule is applied by the service layer.
	IsAuthorized(ctx context.Context, id model.Identity) (bool, error)
	// ListAuthorized returns the authorized set sorted lexically.
	ListAuthorized(ctx context.Context) ([]model.Identity, error)

	// Apply runs fn against itemID under the writer lock. When fn succeeds
	// the item record, the case index and one sealed history entry are
	// persisted together and the entry is returned. When fn fails nothing
	// changes and fn's error is returned unwrapped.
	Apply(ctx context.Context, itemID string, fn TransitionFunc) (*historylog.Entry, error)

	// GetItem returns the item or ErrNotFound.
	GetItem(ctx context.Context, itemID string) (*model.Item, error)
	// ListCases returns case ids in order of first appearance.
	ListCases(ctx context.Context) ([]string, error)
	// ListItemsByCase returns the items of a case in creation order, or
	// ErrNotFound for an unknown case.
	ListItemsByCase(ctx context.Context, caseID string) ([]*model.Item, error)
	// History returns the entries of one item oldest first, or ErrNotFound
	// if the item never existed.
	History(ctx context.Context, itemID string) ([]historylog.Entry, error)
	// Entries returns the complete log in Seq order.
	Entries(ctx context.Context) ([]historylog.Entry, error)

	Close() error
}
