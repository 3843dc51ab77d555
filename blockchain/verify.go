package blockchain

import (
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/params"
	"github.com/chaincore/core/primitives"
)

// verifyIntrinsic checks everything about a block that can be decided
// without reference to chain state (spec §4.F push step 1): proof of work,
// body hash, body ordering, timestamp drift, and header version.
func verifyIntrinsic(b *chain.Block, now uint64) *BlockError {
	if b.Body == nil {
		e := BlockErrorMissingBody
		return &e
	}
	if b.Header.Version != params.BlockVersion {
		e := BlockErrorVersionMismatch
		return &e
	}
	if b.Header.Timestamp > now+params.MaxTimestampDrift {
		e := BlockErrorTimestampTooFarInFuture
		return &e
	}
	if !primitives.HashMeetsTarget(b.Header.Hash(), b.Header.NBits) {
		e := BlockErrorInvalidPoW
		return &e
	}
	if b.Body.Hash() != b.Header.BodyHash {
		e := BlockErrorBodyHashMismatch
		return &e
	}
	if !b.Body.IsOrdered() {
		e := BlockErrorBodyNotOrdered
		return &e
	}
	return nil
}

// isImmediateSuccessorOf reports whether b is a valid direct child of prev:
// height advances by exactly one, the timestamp does not go backward, and
// prev_hash links to prev's own hash (spec §4.F push step 4).
func isImmediateSuccessorOf(b *chain.Block, prev *chain.Block) bool {
	if b.Header.Height != prev.Header.Height+1 {
		return false
	}
	if b.Header.Timestamp < prev.Header.Timestamp {
		return false
	}
	if b.Header.PrevHash != prev.Header.Hash() {
		return false
	}
	return true
}
