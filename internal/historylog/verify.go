package historylog

import "fmt"

// Verify walks entries, which must be the complete log in Seq order, and
// checks sequence contiguity, hash links, and every entry's own hash.
// Returns nil for an intact (or empty) chain.
func Verify(entries []Entry) error {
	prevHash := GenesisHash
	for i := range entries {
		curr := &entries[i]
		if want := int64(i + 1); curr.Seq != want {
			return fmt.Errorf("sequence gap: entry %d has seq %d, want %d", i, curr.Seq, want)
		}
		if curr.PrevHash != prevHash {
			return fmt.Errorf("hash chain broken at seq %d", curr.Seq)
		}
		if curr.Hash != hashEntry(curr) {
			return fmt.Errorf("entry %d has invalid hash", curr.Seq)
		}
		prevHash = curr.Hash
	}
	return nil
}

// Root returns the hash of the most recent entry (the chain tip), or
// GenesisHash when entries is empty.
func Root(entries []Entry) string {
	if len(entries) == 0 {
		return GenesisHash
	}
	return entries[len(entries)-1].Hash
}
