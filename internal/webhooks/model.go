package webhooks

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
)

// Event types dispatched by the system.
const (
	EventEvidenceAdded      = "evidence.added"
	EventEvidenceCheckedOut = "evidence.checked_out"
	EventEvidenceCheckedIn  = "evidence.checked_in"
	EventEvidenceRemoved    = "evidence.removed"
	EventLedgerTampered     = "ledger.tampered"
)

var knownEvents = map[string]bool{
	EventEvidenceAdded:      true,
	EventEvidenceCheckedOut: true,
	EventEvidenceCheckedIn:  true,
	EventEvidenceRemoved:    true,
	EventLedgerTampered:     true,
}

// EventForAction maps a ledger action to its event type.
func EventForAction(a model.Action) string {
	switch a {
	case model.ActionAdd:
		return EventEvidenceAdded
	case model.ActionCheckout:
		return EventEvidenceCheckedOut
	case model.ActionCheckin:
		return EventEvidenceCheckedIn
	case model.ActionRemove:
		return EventEvidenceRemoved
	}
	return ""
}

// Subscription is an endpoint that receives custody events.
type Subscription struct {
	ID        uuid.UUID      `json:"id"`
	Owner     model.Identity `json:"owner"`
	URL       string         `json:"url"`
	Events    []string       `json:"events"`
	Secret    string         `json:"-"` // never returned in API responses
	Active    bool           `json:"active"`
	CreatedAt time.Time      `json:"created_at"`
}

// Wants reports whether the subscription listens for eventType.
func (s *Subscription) Wants(eventType string) bool {
	if !s.Active {
		return false
	}
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Event is the JSON body POSTed to subscribers.
type Event struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload"`
}

// Delivery records the outcome of a single delivery attempt.
type Delivery struct {
	ID             uuid.UUID `json:"id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	EventType      string    `json:"event_type"`
	StatusCode     int       `json:"status_code"`
	Attempt        int       `json:"attempt"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	DeliveredAt    time.Time `json:"delivered_at"`
}

// CreateSubscriptionRequest is the payload for creating a subscription.
type CreateSubscriptionRequest struct {
	URL    string   `json:"url"    binding:"required,url"`
	Events []string `json:"events" binding:"required"`
}
