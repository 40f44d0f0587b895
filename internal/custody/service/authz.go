// Package service implements the custody ledger's business rules on top of a
// repository.Store: the authorization registry, the evidence state machine
// and the read-only query facade.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/repository"
	"go.uber.org/zap"
)

// authzStore is the slice of repository.Store the Registry needs.
type authzStore interface {
	InitAdmin(ctx context.Context, admin model.Identity) error
	Admin(ctx context.Context) (model.Identity, error)
	AddAuthorized(ctx context.Context, id model.Identity) (bool, error)
	IsAuthorized(ctx context.Context, id model.Identity) (bool, error)
	ListAuthorized(ctx context.Context) ([]model.Identity, error)
}

var _ authzStore = (repository.Store)(nil)

// Registry decides who may act on the ledger. There is exactly one admin,
// fixed at initialization, and a grow-only set of authorized identities.
type Registry struct {
	store  authzStore
	logger *zap.Logger
}

// NewRegistry creates a Registry backed by store.
func NewRegistry(store authzStore, logger *zap.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// Initialize records admin as the registry administrator.
func (r *Registry) Initialize(ctx context.Context, admin model.Identity) error {
	if strings.TrimSpace(string(admin)) == "" {
		return fmt.Errorf("%w: admin identity is required", model.ErrInvalidArgument)
	}
	if err := r.store.InitAdmin(ctx, admin); err != nil {
		return fmt.Errorf("initialize admin: %w", err)
	}
	r.logger.Info("authorization registry initialized", zap.String("admin", string(admin)))
	return nil
}

// AddAuthorizedUser grants target permission to act on the ledger. Only the
// admin may call it. Adding an identity twice is a no-op.
func (r *Registry) AddAuthorizedUser(ctx context.Context, caller, target model.Identity) error {
	admin, err := r.store.Admin(ctx)
	if err != nil && !errors.Is(err, model.ErrAdminNotSet) {
		return fmt.Errorf("read admin: %w", err)
	}
	if caller == "" || caller != admin {
		return fmt.Errorf("%w: only the admin can authorize users", model.ErrPermissionDenied)
	}
	if strings.TrimSpace(string(target)) == "" {
		return fmt.Errorf("%w: identity is required", model.ErrInvalidArgument)
	}

	added, err := r.store.AddAuthorized(ctx, target)
	if err != nil {
		return fmt.Errorf("add authorized user: %w", err)
	}
	if added {
		r.logger.Info("user authorized", zap.String("identity", string(target)), zap.String("by", string(caller)))
	}
	return nil
}

// IsAuthorized reports whether id is the admin or a member of the
// authorized set. The empty identity is never authorized.
func (r *Registry) IsAuthorized(ctx context.Context, id model.Identity) (bool, error) {
	if id == "" {
		return false, nil
	}
	admin, err := r.store.Admin(ctx)
	switch {
	case err == nil && admin == id:
		return true, nil
	case err != nil && !errors.Is(err, model.ErrAdminNotSet):
		return false, fmt.Errorf("read admin: %w", err)
	}
	ok, err := r.store.IsAuthorized(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check authorized user: %w", err)
	}
	return ok, nil
}

// Authorize returns ErrUnauthorized unless id may act on the ledger. Every
// mutating evidence operation goes through it.
func (r *Registry) Authorize(ctx context.Context, id model.Identity) error {
	ok, err := r.IsAuthorized(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q is not an authorized user", model.ErrUnauthorized, id)
	}
	return nil
}

// Admin returns the administrator identity.
func (r *Registry) Admin(ctx context.Context) (model.Identity, error) {
	return r.store.Admin(ctx)
}

// AuthorizedUsers returns the explicitly authorized identities, sorted. The
// admin is not listed unless it was added explicitly.
func (r *Registry) AuthorizedUsers(ctx context.Context) ([]model.Identity, error) {
	users, err := r.store.ListAuthorized(ctx)
	if err != nil {
		return nil, fmt.Errorf("list authorized users: %w", err)
	}
	return users, nil
}
