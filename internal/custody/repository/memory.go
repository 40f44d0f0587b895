package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/historylog"
)

// MemoryStore is an in-memory, thread-safe Store. Writers hold the exclusive
// lock for the whole transition; readers share the read lock and therefore
// always see either the state before or after a transition.
type MemoryStore struct {
	mu         sync.RWMutex
	admin      model.Identity
	authorized map[model.Identity]struct{}
	items      map[string]*model.Item
	itemOrder  map[string][]string // case id -> item ids in creation order
	cases      []string
	entries    []historylog.Entry
	byItem     map[string][]int // item id -> indexes into entries
	now        func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		authorized: make(map[model.Identity]struct{}),
		items:      make(map[string]*model.Item),
		itemOrder:  make(map[string][]string),
		byItem:     make(map[string][]int),
		now:        time.Now,
	}
}

// InitAdmin implements Store.
func (s *MemoryStore) InitAdmin(_ context.Context, admin model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.admin {
	case "":
		s.admin = admin
		return nil
	case admin:
		return nil
	default:
		return model.ErrAdminAlreadySet
	}
}

// Admin implements Store.
func (s *MemoryStore) Admin(_ context.Context) (model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.admin == "" {
		return "", model.ErrAdminNotSet
	}
	return s.admin, nil
}

// AddAuthorized implements Store.
func (s *MemoryStore) AddAuthorized(_ context.Context, id model.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authorized[id]; ok {
		return false, nil
	}
	s.authorized[id] = struct{}{}
	return true, nil
}

// IsAuthorized implements Store.
func (s *MemoryStore) IsAuthorized(_ context.Context, id model.Identity) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.authorized[id]
	return ok, nil
}

// ListAuthorized implements Store.
func (s *MemoryStore) ListAuthorized(_ context.Context) ([]model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Identity, 0, len(s.authorized))
	for id := range s.authorized {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Apply implements Store.
func (s *MemoryStore) Apply(_ context.Context, itemID string, fn TransitionFunc) (*historylog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *model.Item
	if it, ok := s.items[itemID]; ok {
		cp := *it
		current = &cp
	}

	change, err := fn(current)
	if err != nil {
		return nil, err
	}
	if change == nil || change.Item.ItemID != itemID {
		return nil, fmt.Errorf("transition for %q returned no change for that item", itemID)
	}

	now := s.now().UTC()
	next := change.Item
	if current == nil {
		next.CreatedAt = now
		if _, known := s.itemOrder[next.CaseID]; !known {
			s.cases = append(s.cases, next.CaseID)
		}
		s.itemOrder[next.CaseID] = append(s.itemOrder[next.CaseID], itemID)
	}
	next.UpdatedAt = now
	s.items[itemID] = &next

	entry := historylog.NewEntry(&next, change.Action, change.Actor, now)
	var prevSeq int64
	var prevHash string
	if n := len(s.entries); n > 0 {
		prevSeq, prevHash = s.entries[n-1].Seq, s.entries[n-1].Hash
	}
	historylog.Seal(entry, prevSeq, prevHash, len(s.byItem[itemID])+1)

	s.entries = append(s.entries, *entry)
	s.byItem[itemID] = append(s.byItem[itemID], len(s.entries)-1)

	out := *entry
	return &out, nil
}

// GetItem implements Store.
func (s *MemoryStore) GetItem(_ context.Context, itemID string) (*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: item %q", model.ErrNotFound, itemID)
	}
	cp := *it
	return &cp, nil
}

// ListCases implements Store.
func (s *MemoryStore) ListCases(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.cases))
	copy(out, s.cases)
	return out, nil
}

// ListItemsByCase implements Store.
func (s *MemoryStore) ListItemsByCase(_ context.Context, caseID string) ([]*model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.itemOrder[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: case %q", model.ErrNotFound, caseID)
	}
	out := make([]*model.Item, 0, len(ids))
	for _, id := range ids {
		cp := *s.items[id]
		out = append(out, &cp)
	}
	return out, nil
}

// History implements Store.
func (s *MemoryStore) History(_ context.Context, itemID string) ([]historylog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byItem[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: item %q", model.ErrNotFound, itemID)
	}
	out := make([]historylog.Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// Entries implements Store.
func (s *MemoryStore) Entries(_ context.Context) ([]historylog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]historylog.Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
