package webhooks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
)

// Repository stores subscriptions and the delivery log.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByOwner(ctx context.Context, owner model.Identity) ([]*Subscription, error)
	ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RecordDelivery(ctx context.Context, d *Delivery) error
	// RecentDeliveries returns up to limit deliveries to owner's
	// subscriptions, newest first.
	RecentDeliveries(ctx context.Context, owner model.Identity, limit int) ([]*Delivery, error)
}

// ── In-memory ────────────────────────────────────────────────────────────

// maxMemoryDeliveries bounds the in-memory delivery log.
const maxMemoryDeliveries = 500

// MemoryRepository keeps subscriptions in process memory.
type MemoryRepository struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]*Subscription
	deliveries []*Delivery
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[uuid.UUID]*Subscription)}
}

func (r *MemoryRepository) Create(_ context.Context, sub *Subscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	cp.Events = append([]string(nil), sub.Events...)
	r.subs[sub.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", model.ErrNotFound, id)
	}
	cp := *sub
	return &cp, nil
}

func (r *MemoryRepository) ListByOwner(_ context.Context, owner model.Identity) ([]*Subscription, error) {
	return r.filter(func(s *Subscription) bool { return s.Owner == owner }), nil
}

func (r *MemoryRepository) ListByEvent(_ context.Context, eventType string) ([]*Subscription, error) {
	return r.filter(func(s *Subscription) bool { return s.Wants(eventType) }), nil
}

func (r *MemoryRepository) filter(keep func(*Subscription) bool) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return fmt.Errorf("%w: subscription %s", model.ErrNotFound, id)
	}
	delete(r.subs, id)
	return nil
}

func (r *MemoryRepository) RecordDelivery(_ context.Context, d *Delivery) error {
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deliveries = append(r.deliveries, &cp)
	if over := len(r.deliveries) - maxMemoryDeliveries; over > 0 {
		r.deliveries = r.deliveries[over:]
	}
	return nil
}

func (r *MemoryRepository) RecentDeliveries(_ context.Context, owner model.Identity, limit int) ([]*Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Delivery, 0, limit)
	for i := len(r.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		sub, ok := r.subs[r.deliveries[i].SubscriptionID]
		if !ok || sub.Owner != owner {
			continue
		}
		cp := *r.deliveries[i]
		out = append(out, &cp)
	}
	return out, nil
}

// ── PostgreSQL ───────────────────────────────────────────────────────────

// PostgresRepository persists subscriptions in the webhook_subscriptions and
// webhook_deliveries tables (migrations/002_webhooks.up.sql).
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const subColumns = `id, owner, url, events, secret, active, created_at`

func (r *PostgresRepository) Create(ctx context.Context, sub *Subscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	query := `INSERT INTO webhook_subscriptions (` + subColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		sub.ID, string(sub.Owner), sub.URL, sub.Events, sub.Secret, sub.Active, sub.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := r.db.QueryRow(ctx, `SELECT `+subColumns+` FROM webhook_subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("%w: subscription %s", model.ErrNotFound, id)
	}
	return sub, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, owner model.Identity) ([]*Subscription, error) {
	return r.query(ctx, `SELECT `+subColumns+` FROM webhook_subscriptions
	                     WHERE owner = $1 ORDER BY created_at`, string(owner))
}

func (r *PostgresRepository) ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error) {
	return r.query(ctx, `SELECT `+subColumns+` FROM webhook_subscriptions
	                     WHERE active = true AND $1 = ANY(events)
	                     ORDER BY created_at`, eventType)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]*Subscription, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub   Subscription
		owner string
	)
	if err := row.Scan(&sub.ID, &owner, &sub.URL, &sub.Events, &sub.Secret, &sub.Active, &sub.CreatedAt); err != nil {
		return nil, err
	}
	sub.Owner = model.Identity(owner)
	return &sub, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: subscription %s", model.ErrNotFound, id)
	}
	return nil
}

func (r *PostgresRepository) RecordDelivery(ctx context.Context, d *Delivery) error {
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()

	query := `INSERT INTO webhook_deliveries (id, subscription_id, event_type, status_code, attempt, success, error_message, delivered_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query,
		d.ID, d.SubscriptionID, d.EventType,
		d.StatusCode, d.Attempt, d.Success, d.ErrorMessage, d.DeliveredAt,
	)
	return err
}

func (r *PostgresRepository) RecentDeliveries(ctx context.Context, owner model.Identity, limit int) ([]*Delivery, error) {
	rows, err := r.db.Query(ctx, `SELECT d.id, d.subscription_id, d.event_type, d.status_code, d.attempt, d.success, d.error_message, d.delivered_at
	                              FROM webhook_deliveries d
	                              JOIN webhook_subscriptions s ON s.id = d.subscription_id
	                              WHERE s.owner = $1
	                              ORDER BY d.delivered_at DESC LIMIT $2`, string(owner), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Delivery{}
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.StatusCode, &d.Attempt, &d.Success, &d.ErrorMessage, &d.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

