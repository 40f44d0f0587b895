package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Error codes reported by the server in APIError.Code.
const (
	CodeUnauthorized      = "unauthorized"
	CodePermissionDenied  = "permission_denied"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeDuplicateItem     = "duplicate_item"
	CodeInvalidTransition = "invalid_transition"
	CodeInvalidArgument   = "invalid_argument"
	CodeInternal          = "internal"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Item is the current projection of an evidence item.
type Item struct {
	ItemID        string    `json:"item_id"`
	CaseID        string    `json:"case_id"`
	Creator       string    `json:"creator"`
	State         string    `json:"state"`
	RemovalReason string    `json:"removal_reason"`
	ReleasedTo    string    `json:"released_to,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HistoryEntry is one recorded custody event.
type HistoryEntry struct {
	Seq           int64     `json:"seq"`
	ItemSeq       int       `json:"item_seq"`
	EventID       string    `json:"event_id"`
	CaseID        string    `json:"case_id"`
	ItemID        string    `json:"item_id"`
	Action        string    `json:"action"`
	State         string    `json:"state"`
	Actor         string    `json:"actor"`
	Timestamp     time.Time `json:"timestamp"`
	RemovalReason string    `json:"removal_reason"`
	ReleasedTo    string    `json:"released_to,omitempty"`
	PrevHash      string    `json:"prev_hash"`
	Hash          string    `json:"hash"`
}

// UserStatus is the result of CheckUser.
type UserStatus struct {
	Identity   string `json:"identity"`
	Authorized bool   `json:"authorized"`
	Admin      bool   `json:"admin"`
}

// LedgerOverview is the result of LedgerOverview.
type LedgerOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// VerifyResult is the result of VerifyLedger.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
}

// Client talks to a custodyd server.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
	identity    string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a caller token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithIdentity sends identity in the X-Caller-Identity header. Servers that
// have a token secret configured ignore it.
func WithIdentity(identity string) Option {
	return func(c *Client) error {
		c.identity = identity
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", base, err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Admin returns the registry administrator identity.
func (c *Client) Admin(ctx context.Context) (string, error) {
	var out struct {
		Admin string `json:"admin"`
	}
	if err := c.call(ctx, http.MethodGet, "/admin", nil, &out); err != nil {
		return "", err
	}
	return out.Admin, nil
}

// AuthorizeUser grants identity permission to act on the ledger. The caller
// must be the admin.
func (c *Client) AuthorizeUser(ctx context.Context, identity string) error {
	return c.call(ctx, http.MethodPost, "/users", map[string]string{"identity": identity}, nil)
}

// ListUsers returns the explicitly authorized identities.
func (c *Client) ListUsers(ctx context.Context) ([]string, error) {
	var out struct {
		Users []string `json:"users"`
	}
	if err := c.call(ctx, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// CheckUser reports whether identity is authorized and whether it is the admin.
func (c *Client) CheckUser(ctx context.Context, identity string) (*UserStatus, error) {
	var out UserStatus
	if err := c.call(ctx, http.MethodGet, "/users/"+url.PathEscape(identity), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddEvidence registers a new item under caseID.
func (c *Client) AddEvidence(ctx context.Context, caseID, itemID string) (*HistoryEntry, error) {
	return c.mutate(ctx, "/evidence", map[string]string{"case_id": caseID, "item_id": itemID})
}

// Checkout checks an item out of the evidence room.
func (c *Client) Checkout(ctx context.Context, itemID string) (*HistoryEntry, error) {
	return c.mutate(ctx, "/evidence/"+url.PathEscape(itemID)+"/checkout", nil)
}

// Checkin returns a checked-out item.
func (c *Client) Checkin(ctx context.Context, itemID string) (*HistoryEntry, error) {
	return c.mutate(ctx, "/evidence/"+url.PathEscape(itemID)+"/checkin", nil)
}

// Remove permanently removes an item. reason is DISPOSED, DESTROYED or
// RELEASED; releasedTo is required for RELEASED.
func (c *Client) Remove(ctx context.Context, itemID, reason, releasedTo string) (*HistoryEntry, error) {
	return c.mutate(ctx, "/evidence/"+url.PathEscape(itemID)+"/remove",
		map[string]string{"reason": reason, "released_to": releasedTo})
}

func (c *Client) mutate(ctx context.Context, path string, body any) (*HistoryEntry, error) {
	var out struct {
		Entry *HistoryEntry `json:"entry"`
	}
	if body == nil {
		body = struct{}{}
	}
	if err := c.call(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return out.Entry, nil
}

// GetItem returns the current state of an item.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var out Item
	if err := c.call(ctx, http.MethodGet, "/evidence/"+url.PathEscape(itemID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns an item's custody history, oldest first.
func (c *Client) History(ctx context.Context, itemID string) ([]HistoryEntry, error) {
	var out struct {
		Entries []HistoryEntry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, "/evidence/"+url.PathEscape(itemID)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// ListCases returns case ids in order of first appearance.
func (c *Client) ListCases(ctx context.Context) ([]string, error) {
	var out struct {
		Cases []string `json:"cases"`
	}
	if err := c.call(ctx, http.MethodGet, "/cases", nil, &out); err != nil {
		return nil, err
	}
	return out.Cases, nil
}

// ListItems returns the items of a case in creation order.
func (c *Client) ListItems(ctx context.Context, caseID string) ([]Item, error) {
	var out struct {
		Items []Item `json:"items"`
	}
	if err := c.call(ctx, http.MethodGet, "/cases/"+url.PathEscape(caseID)+"/items", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// LedgerOverview returns the history log size and chain root.
func (c *Client) LedgerOverview(ctx context.Context) (*LedgerOverview, error) {
	var out LedgerOverview
	if err := c.call(ctx, http.MethodGet, "/ledger", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyLedger asks the server to recompute the history hash chain.
func (c *Client) VerifyLedger(ctx context.Context) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.call(ctx, http.MethodGet, "/ledger/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call sends a request to /api/v1+path and decodes a 2xx JSON response into
// out (which may be nil).
// Webhook is an event subscription.
type Webhook struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscribe registers endpoint for events and returns the subscription with its
// signing secret. The secret is not retrievable later.
func (c *Client) Subscribe(ctx context.Context, endpoint string, events []string) (*Webhook, string, error) {
	var resp struct {
		Subscription Webhook `json:"subscription"`
		Secret       string  `json:"secret"`
	}
	body := map[string]any{"url": endpoint, "events": events}
	if err := c.call(ctx, http.MethodPost, "/webhooks", body, &resp); err != nil {
		return nil, "", err
	}
	return &resp.Subscription, resp.Secret, nil
}

// ListWebhooks returns every subscription.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var resp struct {
		Subscriptions []Webhook `json:"subscriptions"`
	}
	if err := c.call(ctx, http.MethodGet, "/webhooks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Subscriptions, nil
}

// Unsubscribe deletes a subscription owned by the caller.
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/webhooks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/api/v1"+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	if c.identity != "" {
		req.Header.Set("X-Caller-Identity", c.identity)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var eb struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			apiErr.Message = eb.Error
			apiErr.Code = eb.Code
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
