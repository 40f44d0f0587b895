package service

import (
	"context"

	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/historylog"
	"go.uber.org/zap"
)

// queryStore is the read side of repository.Store.
type queryStore interface {
	GetItem(ctx context.Context, itemID string) (*model.Item, error)
	ListCases(ctx context.Context) ([]string, error)
	ListItemsByCase(ctx context.Context, caseID string) ([]*model.Item, error)
	History(ctx context.Context, itemID string) ([]historylog.Entry, error)
	Entries(ctx context.Context) ([]historylog.Entry, error)
}

// LedgerOverview summarises the whole history log.
type LedgerOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// QueryService is the read-only facade over the ledger. Queries need no
// authorization.
type QueryService struct {
	store  queryStore
	logger *zap.Logger
}

// NewQueryService creates a QueryService.
func NewQueryService(store queryStore, logger *zap.Logger) *QueryService {
	return &QueryService{store: store, logger: logger}
}

// ListCases returns every case id in order of first appearance.
func (q *QueryService) ListCases(ctx context.Context) ([]string, error) {
	return q.store.ListCases(ctx)
}

// CurrentState returns the current projection of an item.
func (q *QueryService) CurrentState(ctx context.Context, itemID string) (*model.Item, error) {
	return q.store.GetItem(ctx, itemID)
}

// HistoryOf returns the item's history oldest first.
func (q *QueryService) HistoryOf(ctx context.Context, itemID string) ([]historylog.Entry, error) {
	return q.store.History(ctx, itemID)
}

// ItemsInCase returns the items of a case in creation order.
func (q *QueryService) ItemsInCase(ctx context.Context, caseID string) ([]*model.Item, error) {
	return q.store.ListItemsByCase(ctx, caseID)
}

// LedgerOverview returns the entry count and chain root of the history log.
func (q *QueryService) LedgerOverview(ctx context.Context) (*LedgerOverview, error) {
	entries, err := q.store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return &LedgerOverview{Entries: len(entries), Root: historylog.Root(entries)}, nil
}

// VerifyResult is the outcome of a full chain verification.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
}

// VerifyLedger recomputes the hash chain over the full log. The returned
// error is reserved for storage failures; a broken chain is reported in the
// result.
func (q *QueryService) VerifyLedger(ctx context.Context) (*VerifyResult, error) {
	entries, err := q.store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{Valid: true, Entries: len(entries)}
	if err := historylog.Verify(entries); err != nil {
		q.logger.Warn("history chain verification failed", zap.Error(err))
		res.Valid = false
		res.Error = err.Error()
	}
	return res, nil
}
