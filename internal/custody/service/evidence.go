package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/repository"
	"github.com/jmerrifield20/ChainOfCustody/internal/historylog"
	"go.uber.org/zap"
)

// Authorizer is the capability check every mutating operation consults.
// *Registry satisfies this interface.
type Authorizer interface {
	Authorize(ctx context.Context, id model.Identity) error
}

// transitionStore is the slice of repository.Store the EvidenceService needs.
type transitionStore interface {
	Apply(ctx context.Context, itemID string, fn repository.TransitionFunc) (*historylog.Entry, error)
}

// Notifier receives every accepted transition after it is committed.
// *webhooks.Service satisfies this interface.
type Notifier interface {
	Notify(ctx context.Context, e *historylog.Entry)
}

// EvidenceService runs the evidence state machine:
//
//	add -> CHECKEDIN <-> CHECKEDOUT
//	CHECKEDIN | CHECKEDOUT -> REMOVED (terminal, creator only)
//
// Every accepted transition produces exactly one history entry, written in
// the same store transaction as the item record.
type EvidenceService struct {
	store    transitionStore
	authz    Authorizer
	notifier Notifier
	logger   *zap.Logger
}

// NewEvidenceService creates an EvidenceService.
func NewEvidenceService(store transitionStore, authz Authorizer, logger *zap.Logger) *EvidenceService {
	return &EvidenceService{store: store, authz: authz, logger: logger}
}

// SetNotifier configures the post-commit transition callback.
func (s *EvidenceService) SetNotifier(n Notifier) {
	s.notifier = n
}

// AddEvidence registers a new item under caseID in state CHECKEDIN with
// actor as its creator. The case is created on first use.
func (s *EvidenceService) AddEvidence(ctx context.Context, actor model.Identity, caseID, itemID string) (*historylog.Entry, error) {
	if err := s.authz.Authorize(ctx, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(caseID) == "" {
		return nil, fmt.Errorf("%w: case id is required", model.ErrInvalidArgument)
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, fmt.Errorf("%w: item id is required", model.ErrInvalidArgument)
	}

	entry, err := s.store.Apply(ctx, itemID, func(cur *model.Item) (*repository.Change, error) {
		if cur != nil {
			return nil, fmt.Errorf("%w: item %q already exists", model.ErrDuplicateItem, itemID)
		}
		return &repository.Change{
			Item: model.Item{
				ItemID:        itemID,
				CaseID:        caseID,
				Creator:       actor,
				State:         model.StateCheckedIn,
				RemovalReason: model.ReasonNone,
			},
			Action: model.ActionAdd,
			Actor:  actor,
		}, nil
	})
	return s.finish(ctx, model.ActionAdd, actor, itemID, entry, err)
}

// CheckoutEvidence moves an item from CHECKEDIN to CHECKEDOUT.
func (s *EvidenceService) CheckoutEvidence(ctx context.Context, actor model.Identity, itemID string) (*historylog.Entry, error) {
	return s.toggle(ctx, actor, itemID, model.ActionCheckout, model.StateCheckedIn, model.StateCheckedOut)
}

// CheckinEvidence moves an item from CHECKEDOUT back to CHECKEDIN.
func (s *EvidenceService) CheckinEvidence(ctx context.Context, actor model.Identity, itemID string) (*historylog.Entry, error) {
	return s.toggle(ctx, actor, itemID, model.ActionCheckin, model.StateCheckedOut, model.StateCheckedIn)
}

func (s *EvidenceService) toggle(ctx context.Context, actor model.Identity, itemID string, action model.Action, from, to model.State) (*historylog.Entry, error) {
	if err := s.authz.Authorize(ctx, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, fmt.Errorf("%w: item id is required", model.ErrInvalidArgument)
	}

	entry, err := s.store.Apply(ctx, itemID, func(cur *model.Item) (*repository.Change, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: item %q", model.ErrNotFound, itemID)
		}
		if cur.State != from {
			return nil, fmt.Errorf("%w: cannot %s item %q in state %s", model.ErrInvalidTransition, action, itemID, cur.State)
		}
		next := *cur
		next.State = to
		return &repository.Change{Item: next, Action: action, Actor: actor}, nil
	})
	return s.finish(ctx, action, actor, itemID, entry, err)
}

// RemoveEvidence permanently removes an item. Only the item's creator may
// remove it, and reason must be DISPOSED, DESTROYED or RELEASED. releasedTo
// is required for RELEASED and discarded otherwise.
func (s *EvidenceService) RemoveEvidence(ctx context.Context, actor model.Identity, itemID string, reason model.RemovalReason, releasedTo string) (*historylog.Entry, error) {
	if err := s.authz.Authorize(ctx, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, fmt.Errorf("%w: item id is required", model.ErrInvalidArgument)
	}
	switch reason {
	case model.ReasonDisposed, model.ReasonDestroyed:
		releasedTo = ""
	case model.ReasonReleased:
		releasedTo = strings.TrimSpace(releasedTo)
		if releasedTo == "" {
			return nil, fmt.Errorf("%w: released_to is required when reason is RELEASED", model.ErrInvalidArgument)
		}
	default:
		return nil, fmt.Errorf("%w: invalid removal reason %q", model.ErrInvalidArgument, reason)
	}

	entry, err := s.store.Apply(ctx, itemID, func(cur *model.Item) (*repository.Change, error) {
		if cur == nil {
			return nil, fmt.Errorf("%w: item %q", model.ErrNotFound, itemID)
		}
		if cur.Creator != actor {
			return nil, fmt.Errorf("%w: only the creator of item %q can remove it", model.ErrForbidden, itemID)
		}
		if cur.State.Terminal() {
			return nil, fmt.Errorf("%w: item %q is already removed", model.ErrInvalidTransition, itemID)
		}
		next := *cur
		next.State = model.StateRemoved
		next.RemovalReason = reason
		next.ReleasedTo = releasedTo
		return &repository.Change{Item: next, Action: model.ActionRemove, Actor: actor}, nil
	})
	return s.finish(ctx, model.ActionRemove, actor, itemID, entry, err)
}

// finish logs the outcome of a transition and passes it through.
func (s *EvidenceService) finish(ctx context.Context, action model.Action, actor model.Identity, itemID string, entry *historylog.Entry, err error) (*historylog.Entry, error) {
	if err != nil {
		if isRejection(err) {
			s.logger.Debug("transition rejected",
				zap.String("action", string(action)),
				zap.String("item_id", itemID),
				zap.String("actor", string(actor)),
				zap.Error(err),
			)
		} else {
			s.logger.Error("transition failed",
				zap.String("action", string(action)),
				zap.String("item_id", itemID),
				zap.Error(err),
			)
		}
		return nil, err
	}
	s.logger.Info("evidence "+string(action),
		zap.String("item_id", entry.ItemID),
		zap.String("case_id", entry.CaseID),
		zap.String("actor", string(entry.Actor)),
		zap.String("state", string(entry.State)),
		zap.Int64("seq", entry.Seq),
	)
	if s.notifier != nil {
		s.notifier.Notify(ctx, entry)
	}
	return entry, nil
}

// isRejection reports whether err is a business-rule rejection rather than a
// storage failure.
func isRejection(err error) bool {
	for _, target := range []error{
		model.ErrNotFound, model.ErrDuplicateItem, model.ErrInvalidTransition,
		model.ErrForbidden, model.ErrInvalidArgument, model.ErrUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
