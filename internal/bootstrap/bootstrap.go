// Package bootstrap brings a fresh ledger into its deployment state: the
// admin identity, the standing role users, and optional development data.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"go.uber.org/zap"
)

// Standard roles provisioned at deployment.
const (
	RolePolice    = "POLICE"
	RoleLawyer    = "LAWYER"
	RoleAnalyst   = "ANALYST"
	RoleExecutive = "EXECUTIVE"
)

// Development seed data, created by the POLICE identity.
const (
	SeedCaseID = "c84e339e-5c0f-4f4d-84c5-bb79a3c1d2a2"
	SeedItemID = "1004820154"
)

// Config describes the deployment state to establish.
type Config struct {
	Admin model.Identity
	// Users maps a role name (POLICE, LAWYER, ...) to the identity holding it.
	Users map[string]model.Identity
	// SeedTestData adds one evidence item under SeedCaseID. Failure is logged
	// and ignored.
	SeedTestData bool
}

// Registry is the part of service.Registry bootstrap uses.
type Registry interface {
	Initialize(ctx context.Context, admin model.Identity) error
	AddAuthorizedUser(ctx context.Context, caller, target model.Identity) error
}

// Evidence is the part of service.EvidenceService bootstrap uses.
type Evidence interface {
	AddEvidence(ctx context.Context, actor model.Identity, caseID, itemID string) error
}

// EvidenceFunc adapts a function to Evidence.
type EvidenceFunc func(ctx context.Context, actor model.Identity, caseID, itemID string) error

// AddEvidence calls f.
func (f EvidenceFunc) AddEvidence(ctx context.Context, actor model.Identity, caseID, itemID string) error {
	return f(ctx, actor, caseID, itemID)
}

// Run initializes the admin and authorizes every configured role user. Any
// failure there aborts. Seeding test data is best effort.
func Run(ctx context.Context, cfg Config, reg Registry, ev Evidence, logger *zap.Logger) error {
	if cfg.Admin == "" {
		return errors.New("bootstrap: admin identity is not configured")
	}
	if err := reg.Initialize(ctx, cfg.Admin); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	roles := make([]string, 0, len(cfg.Users))
	for role := range cfg.Users {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		id := cfg.Users[role]
		if id == "" {
			continue
		}
		if err := reg.AddAuthorizedUser(ctx, cfg.Admin, id); err != nil {
			return fmt.Errorf("bootstrap: authorize %s user: %w", strings.ToLower(role), err)
		}
		logger.Info("role user authorized", zap.String("role", role), zap.String("identity", string(id)))
	}

	if !cfg.SeedTestData {
		return nil
	}
	creator := cfg.Users[RolePolice]
	if creator == "" {
		logger.Warn("seed data skipped: no POLICE identity configured")
		return nil
	}
	if err := ev.AddEvidence(ctx, creator, SeedCaseID, SeedItemID); err != nil {
		if errors.Is(err, model.ErrDuplicateItem) {
			logger.Info("seed data already present", zap.String("item_id", SeedItemID))
		} else {
			logger.Warn("seed data not created", zap.Error(err))
		}
		return nil
	}
	logger.Info("seed data created", zap.String("case_id", SeedCaseID), zap.String("item_id", SeedItemID))
	return nil
}
