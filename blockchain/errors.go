// Package blockchain implements the consensus engine: the block push state
// machine, difficulty retargeting, and block locator generation (spec
// §4.F). It owns the accounts tree, transaction cache, and chain store,
// and is the single place that decides what the main chain is.
//
// Grounded on the *shape* of the teacher's state-transition machinery
// (explicit step-by-step application with typed error returns) generalized
// from single-transaction EVM application to whole-block application; the
// push/extend/rebranch control flow itself follows original_source's
// blockchain.rs exactly, translated into the teacher's idiom (a PushResult
// struct tagged by its Kind field, RWMutex-guarded state, a dedicated
// push-serializing mutex).
package blockchain

import (
	"errors"
	"fmt"
)

// BlockError classifies why block.verify (intrinsic validity, independent
// of chain state) rejected a block.
type BlockError int

const (
	BlockErrorInvalidPoW BlockError = iota
	BlockErrorBodyHashMismatch
	BlockErrorBodyNotOrdered
	BlockErrorTimestampTooFarInFuture
	BlockErrorVersionMismatch
	BlockErrorMissingBody
)

func (e BlockError) String() string {
	switch e {
	case BlockErrorInvalidPoW:
		return "InvalidPoW"
	case BlockErrorBodyHashMismatch:
		return "BodyHashMismatch"
	case BlockErrorBodyNotOrdered:
		return "BodyNotOrdered"
	case BlockErrorTimestampTooFarInFuture:
		return "TimestampTooFarInFuture"
	case BlockErrorVersionMismatch:
		return "VersionMismatch"
	case BlockErrorMissingBody:
		return "MissingBody"
	default:
		return "Unknown"
	}
}

// PushError is the reason a push(block) call was rejected outright (spec
// §7); it is always wrapped inside an Invalid PushResult.
type PushError struct {
	Kind           PushErrorKind
	BlockError     BlockError    // set iff Kind == PushErrorInvalidBlock
	AccountsError  error         // set iff Kind == PushErrorAccountsError
}

type PushErrorKind int

const (
	PushErrorInvalidBlock PushErrorKind = iota
	PushErrorInvalidSuccessor
	PushErrorDifficultyMismatch
	PushErrorDuplicateTransaction
	PushErrorAccountsError
	PushErrorInvalidFork
)

func (e *PushError) Error() string {
	switch e.Kind {
	case PushErrorInvalidBlock:
		return fmt.Sprintf("blockchain: invalid block (%s)", e.BlockError)
	case PushErrorInvalidSuccessor:
		return "blockchain: invalid successor"
	case PushErrorDifficultyMismatch:
		return "blockchain: difficulty mismatch"
	case PushErrorDuplicateTransaction:
		return "blockchain: duplicate transaction"
	case PushErrorAccountsError:
		return fmt.Sprintf("blockchain: accounts error (%v)", e.AccountsError)
	case PushErrorInvalidFork:
		return "blockchain: invalid fork"
	default:
		return "blockchain: push error"
	}
}

func invalidBlock(be BlockError) *PushError {
	return &PushError{Kind: PushErrorInvalidBlock, BlockError: be}
}

func accountsErr(err error) *PushError {
	return &PushError{Kind: PushErrorAccountsError, AccountsError: err}
}

// PushResultKind is the outer sum type push(block) returns (spec §7).
type PushResultKind int

const (
	Extended PushResultKind = iota
	Rebranched
	Forked
	Known
	Orphan
	Invalid
)

func (k PushResultKind) String() string {
	switch k {
	case Extended:
		return "Extended"
	case Rebranched:
		return "Rebranched"
	case Forked:
		return "Forked"
	case Known:
		return "Known"
	case Orphan:
		return "Orphan"
	case Invalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// PushResult is push(block)'s return value: Kind determines which of the
// remaining fields are meaningful.
type PushResult struct {
	Kind PushResultKind
	Err  *PushError // set iff Kind == Invalid
}

func (r PushResult) String() string {
	if r.Kind == Invalid {
		return r.Err.Error()
	}
	return r.Kind.String()
}

// ErrInconsistentStore is the fatal startup assertion failure (spec §4.F
// Startup: "any inconsistency is fatal").
var ErrInconsistentStore = errors.New("blockchain: inconsistent chain/accounts state, reset the consensus database")
