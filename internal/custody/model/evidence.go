package model

import (
	"strings"
	"time"
)

// Identity is an opaque caller credential such as an account handle or a
// public key fingerprint. Two identities are equal only if byte-identical.
type Identity string

// State is the custody state of an evidence item.
type State string

const (
	StateCheckedIn  State = "CHECKEDIN"
	StateCheckedOut State = "CHECKEDOUT"
	StateRemoved    State = "REMOVED"
)

// Terminal reports whether no further transition is accepted from s.
func (s State) Terminal() bool { return s == StateRemoved }

// RemovalReason records why an item left custody. It is meaningful only when
// the item is in StateRemoved.
type RemovalReason string

const (
	ReasonNone      RemovalReason = "NONE"
	ReasonDisposed  RemovalReason = "DISPOSED"
	ReasonDestroyed RemovalReason = "DESTROYED"
	ReasonReleased  RemovalReason = "RELEASED"
)

// ParseRemovalReason converts user input ("released", "DISPOSED", ...) into a
// RemovalReason. Unknown values are reported with ok=false.
func ParseRemovalReason(s string) (RemovalReason, bool) {
	switch r := RemovalReason(strings.ToUpper(strings.TrimSpace(s))); r {
	case ReasonNone, ReasonDisposed, ReasonDestroyed, ReasonReleased:
		return r, true
	}
	return "", false
}

// Action names the operation that produced a history entry.
type Action string

const (
	ActionAdd      Action = "add"
	ActionCheckout Action = "checkout"
	ActionCheckin  Action = "checkin"
	ActionRemove   Action = "remove"
)

// Item is the current-state record of a single piece of evidence.
type Item struct {
	ItemID        string        `json:"item_id"`
	CaseID        string        `json:"case_id"`
	Creator       Identity      `json:"creator"`
	State         State         `json:"state"`
	RemovalReason RemovalReason `json:"removal_reason"`
	ReleasedTo    string        `json:"released_to,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
