package historylog_test

import (
	"testing"
	"time"

	"github.com/jmerrifield20/ChainOfCustody/internal/custody/model"
	"github.com/jmerrifield20/ChainOfCustody/internal/historylog"
)

func buildChain(t *testing.T, states ...model.State) []historylog.Entry {
	t.Helper()
	var (
		out      []historylog.Entry
		prevSeq  int64
		prevHash string
	)
	for i, st := range states {
		item := &model.Item{ItemID: "item-1", CaseID: "case-1", Creator: "police", State: st, RemovalReason: model.ReasonNone}
		e := historylog.NewEntry(item, model.ActionCheckout, "analyst", time.Now())
		historylog.Seal(e, prevSeq, prevHash, i+1)
		prevSeq, prevHash = e.Seq, e.Hash
		out = append(out, *e)
	}
	return out
}

func TestSeal_firstEntryChainsFromGenesis(t *testing.T) {
	entries := buildChain(t, model.StateCheckedIn)

	if entries[0].Seq != 1 {
		t.Errorf("Seq: got %d, want 1", entries[0].Seq)
	}
	if entries[0].PrevHash != historylog.GenesisHash {
		t.Errorf("PrevHash: got %q, want GenesisHash", entries[0].PrevHash)
	}
	if entries[0].Hash == "" || entries[0].Hash == historylog.GenesisHash {
		t.Errorf("Hash was not computed: %q", entries[0].Hash)
	}
}

func TestSeal_chainsCorrectly(t *testing.T) {
	entries := buildChain(t, model.StateCheckedIn, model.StateCheckedOut)

	if entries[1].PrevHash != entries[0].Hash {
		t.Errorf("chain broken: e2.PrevHash=%q, want e1.Hash=%q", entries[1].PrevHash, entries[0].Hash)
	}
	if entries[1].ItemSeq != 2 {
		t.Errorf("ItemSeq: got %d, want 2", entries[1].ItemSeq)
	}
}

func TestVerify_valid(t *testing.T) {
	entries := buildChain(t, model.StateCheckedIn, model.StateCheckedOut, model.StateCheckedIn, model.StateRemoved)
	if err := historylog.Verify(entries); err != nil {
		t.Errorf("Verify() failed on valid chain: %v", err)
	}
}

func TestVerify_empty(t *testing.T) {
	if err := historylog.Verify(nil); err != nil {
		t.Errorf("Verify() on empty chain should pass: %v", err)
	}
}

func TestVerify_detectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]historylog.Entry)
	}{
		{"rewritten actor", func(e []historylog.Entry) { e[1].Actor = "mallory" }},
		{"rewritten state", func(e []historylog.Entry) { e[0].State = model.StateRemoved }},
		{"broken link", func(e []historylog.Entry) { e[2].PrevHash = historylog.GenesisHash }},
		{"sequence gap", func(e []historylog.Entry) { e[2].Seq = 7 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entries := buildChain(t, model.StateCheckedIn, model.StateCheckedOut, model.StateCheckedIn)
			tc.mutate(entries)
			if err := historylog.Verify(entries); err == nil {
				t.Error("Verify() should fail on a tampered chain")
			}
		})
	}
}

func TestVerify_deletedEntry(t *testing.T) {
	entries := buildChain(t, model.StateCheckedIn, model.StateCheckedOut, model.StateCheckedIn)
	entries = append(entries[:1], entries[2:]...)
	if err := historylog.Verify(entries); err == nil {
		t.Error("Verify() should fail when an entry is deleted")
	}
}

func TestRoot(t *testing.T) {
	if got := historylog.Root(nil); got != historylog.GenesisHash {
		t.Errorf("Root() on empty log: got %q, want GenesisHash", got)
	}
	entries := buildChain(t, model.StateCheckedIn, model.StateCheckedOut)
	if got := historylog.Root(entries); got != entries[1].Hash {
		t.Errorf("Root(): got %q, want %q", got, entries[1].Hash)
	}
}

func TestNewEntry_copiesItemProjection(t *testing.T) {
	item := &model.Item{
		ItemID: "item-9", CaseID: "case-9", Creator: "police",
		State: model.StateRemoved, RemovalReason: model.ReasonReleased, ReleasedTo: "Owner X",
	}
	e := historylog.NewEntry(item, model.ActionRemove, "police", time.Date(2024, 1, 2, 3, 4, 5, 6789, time.FixedZone("X", 3600)))

	if e.State != model.StateRemoved || e.RemovalReason != model.ReasonReleased || e.ReleasedTo != "Owner X" {
		t.Errorf("unexpected projection: %+v", e)
	}
	if e.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp should be UTC, got %v", e.Timestamp.Location())
	}
	if e.Timestamp.Nanosecond()%1000 != 0 {
		t.Errorf("timestamp should be truncated to microseconds, got %d ns", e.Timestamp.Nanosecond())
	}
}
