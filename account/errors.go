package account

import "errors"

// Errors returned by account state transitions (spec §7).
var (
	ErrInsufficientFunds    = errors.New("account: insufficient funds")
	ErrTypeMismatch         = errors.New("account: type mismatch")
	ErrInvalidSignature     = errors.New("account: invalid signature")
	ErrInvalidForSender     = errors.New("account: invalid for sender")
	ErrInvalidForRecipient  = errors.New("account: invalid for recipient")
	ErrInvalidPruning       = errors.New("account: invalid pruning")
	ErrInvalidSerialization = errors.New("account: invalid serialization")
	ErrInvalidTransaction   = errors.New("account: invalid transaction")
)
