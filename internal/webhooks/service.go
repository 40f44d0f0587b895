// Package webhooks delivers custody events to subscribed HTTP endpoints.
// Each delivery is a JSON POST signed with HMAC-SHA256 over the body using
// the subscription secret, sent in the X-Custody-Signature header.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/historylog"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC of the request body.
const SignatureHeader = "X-Custody-Signature"

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Authorizer gates who may subscribe. *service.Registry satisfies this interface.
type Authorizer interface {
	Authorize(ctx context.Context, id model.Identity) error
}

// Service manages subscriptions and event dispatching.
type Service struct {
	repo        Repository
	authz       Authorizer
	httpClient  *http.Client
	retryDelays []time.Duration
	onMetrics   MetricsRecorder
	logger      *zap.Logger

	// base scopes every delivery; Close cancels it.
	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

// NewService creates a new webhook Service.
func NewService(repo Repository, authz Authorizer, logger *zap.Logger) *Service {
	base, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:        repo,
		authz:       authz,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 25 * time.Second},
		logger:      logger,
		base:        base,
		cancelBase:  cancel,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// SetRetryDelays overrides the wait before each retry. A delivery is
// attempted len(delays)+1 times.
func (s *Service) SetRetryDelays(delays []time.Duration) {
	s.retryDelays = delays
}

// Subscribe registers a new endpoint owned by caller with a generated secret.
// The returned subscription is the only place the secret is exposed.
func (s *Service) Subscribe(ctx context.Context, caller model.Identity, req *CreateSubscriptionRequest) (*Subscription, error) {
	if err := s.authz.Authorize(ctx, caller); err != nil {
		return nil, err
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be an absolute http(s) URL", model.ErrInvalidArgument)
	}
	if len(req.Events) == 0 {
		return nil, fmt.Errorf("%w: at least one event is required", model.ErrInvalidArgument)
	}
	for _, e := range req.Events {
		if !knownEvents[e] {
			return nil, fmt.Errorf("%w: unknown event %q", model.ErrInvalidArgument, e)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	sub := &Subscription{
		Owner:  caller,
		URL:    req.URL,
		Events: req.Events,
		Secret: secret,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	s.logger.Info("webhook subscription created",
		zap.String("id", sub.ID.String()),
		zap.String("owner", string(caller)),
		zap.Strings("events", sub.Events),
	)
	return sub, nil
}

// Unsubscribe deletes a subscription. Only its owner may delete it.
func (s *Service) Unsubscribe(ctx context.Context, caller model.Identity, subID uuid.UUID) error {
	if err := s.authz.Authorize(ctx, caller); err != nil {
		return err
	}
	sub, err := s.repo.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.Owner != caller {
		return fmt.Errorf("%w: subscription %s belongs to another identity", model.ErrForbidden, subID)
	}
	return s.repo.Delete(ctx, subID)
}

// ListByOwner returns the caller's subscriptions.
func (s *Service) ListByOwner(ctx context.Context, caller model.Identity) ([]*Subscription, error) {
	if err := s.authz.Authorize(ctx, caller); err != nil {
		return nil, err
	}
	return s.repo.ListByOwner(ctx, caller)
}

// RecentDeliveries returns the latest delivery attempts to the caller's
// subscriptions, newest first.
func (s *Service) RecentDeliveries(ctx context.Context, caller model.Identity, limit int) ([]*Delivery, error) {
	if err := s.authz.Authorize(ctx, caller); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.RecentDeliveries(ctx, caller, limit)
}

// Notify dispatches the event for an accepted ledger transition.
func (s *Service) Notify(ctx context.Context, e *historylog.Entry) {
	eventType := EventForAction(e.Action)
	if eventType == "" {
		return
	}
	s.Dispatch(ctx, eventType, EntryPayload(e))
}

// EntryPayload flattens a history entry into an event payload.
func EntryPayload(e *historylog.Entry) map[string]string {
	p := map[string]string{
		"seq":            strconv.FormatInt(e.Seq, 10),
		"event_id":       e.EventID.String(),
		"case_id":        e.CaseID,
		"item_id":        e.ItemID,
		"action":         string(e.Action),
		"state":          string(e.State),
		"actor":          string(e.Actor),
		"removal_reason": string(e.RemovalReason),
		"hash":           e.Hash,
	}
	if e.ReleasedTo != "" {
		p["released_to"] = e.ReleasedTo
	}
	return p
}

// Dispatch fans out an event to all matching subscriptions. Deliveries run in
// the background and outlive ctx; they stop only when the Service is closed.
func (s *Service) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	if s.base.Err() != nil {
		return
	}
	subs, err := s.repo.ListByEvent(ctx, eventType)
	if err != nil {
		s.logger.Error("webhook: list subscribers", zap.Error(err))
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	for _, sub := range subs {
		s.wg.Add(1)
		go func(sub *Subscription) {
			defer s.wg.Done()
			s.deliver(s.base, sub, event)
		}(sub)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close abandons pending retries and in-flight requests, then waits for the
// delivery goroutines to exit. Later Dispatch calls are dropped.
func (s *Service) Close() {
	s.cancelBase()
	s.wg.Wait()
}

// deliver sends the event to a single subscription with retries.
func (s *Service) deliver(ctx context.Context, sub *Subscription, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	signature := signPayload(body, sub.Secret)
	attempts := len(s.retryDelays) + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(s.retryDelays[attempt-2]):
			case <-ctx.Done():
				s.logger.Info("webhook: retry abandoned on shutdown",
					zap.String("url", sub.URL), zap.Int("attempt", attempt))
				return
			}
		}

		success, statusCode, errMsg := s.doDelivery(ctx, sub.URL, body, signature)
		if ctx.Err() != nil {
			s.logger.Info("webhook: delivery abandoned on shutdown", zap.String("url", sub.URL))
			return
		}

		delivery := &Delivery{
			SubscriptionID: sub.ID,
			EventType:      event.Type,
			StatusCode:     statusCode,
			Attempt:        attempt,
			Success:        success,
			ErrorMessage:   errMsg,
		}
		if recordErr := s.repo.RecordDelivery(ctx, delivery); recordErr != nil {
			s.logger.Warn("webhook: record delivery", zap.Error(recordErr))
		}

		if s.onMetrics != nil {
			s.onMetrics(success)
		}

		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (s *Service) doDelivery(ctx context.Context, endpoint string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// VerifySignature reports whether signature matches body under secret.
// Receivers use it to authenticate deliveries.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
