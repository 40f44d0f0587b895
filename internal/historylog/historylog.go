// Package historylog defines the append-only custody history of evidence items.
//
// Every accepted transition produces exactly one Entry. Entries form a single
// SHA-256 hash chain in Seq order: the first entry chains from GenesisHash
// (64 hex zeros) and each subsequent entry records the hash of its
// predecessor, so any rewrite of a stored entry is detectable via Verify.
//
// The package does not persist anything itself. Store engines seal entries
// with Seal inside the same transaction that updates the item record, which
// keeps the current state and the audit trail from diverging.
package historylog
