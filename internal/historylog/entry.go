package historylog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
)

// GenesisHash is the well-known anchor of the chain. The first entry's
// PrevHash equals this constant.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is a single immutable custody event.
type Entry struct {
	Seq           int64               `json:"seq"`      // global, gap-free, starts at 1
	ItemSeq       int                 `json:"item_seq"` // position within the item's history, starts at 1
	EventID       uuid.UUID           `json:"event_id"`
	CaseID        string              `json:"case_id"`
	ItemID        string              `json:"item_id"`
	Action        model.Action        `json:"action"`
	State         model.State         `json:"state"`
	Actor         model.Identity      `json:"actor"`
	Timestamp     time.Time           `json:"timestamp"`
	RemovalReason model.RemovalReason `json:"removal_reason"`
	ReleasedTo    string              `json:"released_to,omitempty"`
	PrevHash      string              `json:"prev_hash"`
	Hash          string              `json:"hash"`
}

// NewEntry builds the unsealed entry recording that item reached its current
// state through action performed by actor.
func NewEntry(item *model.Item, action model.Action, actor model.Identity, at time.Time) *Entry {
	return &Entry{
		EventID:       uuid.New(),
		CaseID:        item.CaseID,
		ItemID:        item.ItemID,
		Action:        action,
		State:         item.State,
		Actor:         actor,
		Timestamp:     at.UTC().Truncate(time.Microsecond), // SQL engines keep microseconds
		RemovalReason: item.RemovalReason,
		ReleasedTo:    item.ReleasedTo,
	}
}

// Seal positions e after the entry with sequence prevSeq and hash prevHash and
// computes its own hash. An empty prevHash means e is the first entry.
func Seal(e *Entry, prevSeq int64, prevHash string, itemSeq int) {
	if prevHash == "" {
		prevHash = GenesisHash
	}
	e.Seq = prevSeq + 1
	e.ItemSeq = itemSeq
	e.PrevHash = prevHash
	e.Hash = hashEntry(e)
}

// hashEntry computes a deterministic SHA-256 hash over an entry's fields.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		e.Seq, e.ItemSeq, e.EventID, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.CaseID, e.ItemID, e.Action, e.State, e.Actor,
		e.RemovalReason, e.ReleasedTo, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}
