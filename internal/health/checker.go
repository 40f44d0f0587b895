// Package health periodically re-verifies the history hash chain and reports
// the result to /healthz.
package health

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jmerrifield20/ChainOfCustody/internal/custody/service"
	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	FailThreshold int // consecutive storage errors before reporting degraded
}

// Verifier recomputes the chain. *service.QueryService satisfies this interface.
type Verifier interface {
	VerifyLedger(ctx context.Context) (*service.VerifyResult, error)
}

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(success bool)

// WebhookDispatchFunc is an optional callback for dispatching the
// ledger.tampered event.
type WebhookDispatchFunc func(ctx context.Context, eventType string, payload map[string]string)

// Status is the latest health snapshot.
type Status struct {
	Status     string    `json:"status"` // "ok", "degraded" or "tampered"
	ChainValid bool      `json:"chain_valid"`
	Entries    int       `json:"entries"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Healthy reports whether the server should be considered ready.
func (s Status) Healthy() bool { return s.Status == "ok" }

// Checker runs periodic chain verification.
type Checker struct {
	verifier  Verifier
	cfg       Config
	onMetrics MetricsRecordFunc
	onWebhook WebhookDispatchFunc
	logger    *zap.Logger

	mu        sync.RWMutex
	status    Status
	failCount int
}

// New creates a new Checker. Until the first check completes Status reports ok.
func New(verifier Verifier, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
		status:   Status{Status: "ok", ChainValid: true},
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// SetWebhookDispatch configures the webhook dispatch callback.
func (h *Checker) SetWebhookDispatch(fn WebhookDispatchFunc) {
	h.onWebhook = fn
}

// Start runs the check loop until quit is signalled.
func (h *Checker) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.CheckInterval)
			h.Check(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// Check verifies the chain once and updates the status. Callbacks run after
// the status lock is released so Status never waits on them.
func (h *Checker) Check(ctx context.Context) Status {
	res, err := h.verifier.VerifyLedger(ctx)
	st, tampered := h.record(res, err)

	if h.onMetrics != nil {
		h.onMetrics(err == nil && res.Valid)
	}
	if tampered && h.onWebhook != nil {
		h.onWebhook(ctx, "ledger.tampered", map[string]string{
			"entries": strconv.Itoa(st.Entries),
			"error":   st.Error,
		})
	}
	return st
}

// record applies one verification outcome under the lock. tampered is true
// only on the check that first observes a broken chain.
func (h *Checker) record(res *service.VerifyResult, err error) (st Status, tampered bool) {
	now := time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		h.failCount++
		h.logger.Warn("health: chain check failed", zap.Int("fail_count", h.failCount), zap.Error(err))
		if h.failCount >= h.cfg.FailThreshold {
			h.status = Status{Status: "degraded", ChainValid: h.status.ChainValid, Entries: h.status.Entries, Error: err.Error(), CheckedAt: now}
		}
		return h.status, false
	}

	prevFails := h.failCount
	h.failCount = 0

	if !res.Valid {
		tampered = h.status.ChainValid
		if tampered {
			h.logger.Error("health: history chain no longer verifies", zap.String("error", res.Error))
		}
		h.status = Status{Status: "tampered", ChainValid: false, Entries: res.Entries, Error: res.Error, CheckedAt: now}
		return h.status, tampered
	}

	if prevFails >= h.cfg.FailThreshold {
		h.logger.Info("health: recovered")
	}
	h.status = Status{Status: "ok", ChainValid: true, Entries: res.Entries, CheckedAt: now}
	return h.status, false
}

// Status returns the latest snapshot.
func (h *Checker) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}
