package rdb

import "encoding/hex"

// emptySnapshotHex is the fixed empty-snapshot byte sequence spec.md
// §4.5 gives verbatim, for a master that has no persisted snapshot on
// disk to hand a freshly-PSYNC'd replica.
const emptySnapshotHex = "524544495330303131fa0972656469732d76657205372e322e30fa0a72656469732d62697473c040fa056374696d65c26d08bc65fa08757365642d6d656dc2b0c41000fa08616f662d62617365c000fff06e3bfec0ff5aa2"

// EmptySnapshot returns the decoded fixed empty-snapshot bytes.
func EmptySnapshot() []byte {
	b, err := hex.DecodeString(emptySnapshotHex)
	if err != nil {
		// The constant above is a fixed literal verified by
		// TestDecodeEmptySnapshotFixture; this can't happen.
		panic(err)
	}
	return b
}
