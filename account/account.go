// Package account implements the three fixed account kinds (spec §3/§4.B):
// Basic, Vesting, and HTLC, and their pure state-transition operations.
//
// Grounded on blockchain/types/account/account_common.go's shared-fields
// idiom (AccountCommon embedded by concrete kinds, Encode/Decode pairs,
// type-dispatch via a discriminant byte) from the teacher repo, adapted
// from Klaytn's single-EVM-account model to this spec's three-kind model.
package account

import (
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/log"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/primitives/serial"
)

var logger = log.NewModuleLogger(log.Account)

// Account is implemented by Basic, Vesting, and HTLC. Its state-transition
// methods are unexported by design: only the three kinds defined in this
// package may implement it, matching the spec's closed set of account
// kinds (§1 Non-goals: "smart-contract execution beyond three fixed
// account kinds").
type Account interface {
	Kind() chain.AccountType
	Balance() primitives.Coin
	Encode() []byte

	verifyIncoming(tx *chain.Transaction) error
	verifyOutgoing(tx *chain.Transaction) error
	withIncoming(tx *chain.Transaction, height uint64) (Account, error)
	withOutgoing(tx *chain.Transaction, height uint64) (Account, error)
	withoutIncoming(tx *chain.Transaction, height uint64) (Account, error)
	withoutOutgoing(tx *chain.Transaction, height uint64) (Account, error)
}

// IsPrunable reports whether an account must be removed once its balance
// reaches zero: true for every non-Basic kind (spec §3 invariant).
func IsPrunable(a Account) bool {
	return a.Kind() != chain.AccountTypeBasic && a.Balance() == 0
}

// VerifyIncoming runs the stateless checks an incoming transaction must
// pass before with_incoming is applied.
func VerifyIncoming(a Account, tx *chain.Transaction) error { return a.verifyIncoming(tx) }

// VerifyOutgoing runs the stateless checks an outgoing transaction must
// pass before with_outgoing is applied.
func VerifyOutgoing(a Account, tx *chain.Transaction) error { return a.verifyOutgoing(tx) }

// WithIncoming credits the account with tx's value.
func WithIncoming(a Account, tx *chain.Transaction, height uint64) (Account, error) {
	return a.withIncoming(tx, height)
}

// WithOutgoing debits the account for tx's value+fee. The balance check is
// performed once, here, before dispatching to the variant-specific
// spending rule (spec §4.B: "checked before dispatching to the variant").
func WithOutgoing(a Account, tx *chain.Transaction, height uint64) (Account, error) {
	total, err := tx.Value.Add(tx.Fee)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	if a.Balance() < total {
		return nil, ErrInsufficientFunds
	}
	return a.withOutgoing(tx, height)
}

// WithoutIncoming is the exact inverse of WithIncoming, used while
// reverting a block.
func WithoutIncoming(a Account, tx *chain.Transaction, height uint64) (Account, error) {
	return a.withoutIncoming(tx, height)
}

// WithoutOutgoing is the exact inverse of WithOutgoing, used while
// reverting a block.
func WithoutOutgoing(a Account, tx *chain.Transaction, height uint64) (Account, error) {
	return a.withoutOutgoing(tx, height)
}

// CreateFromTransaction builds a brand-new contract account (Vesting or
// HTLC) from a recipient-creating transaction's Data field, at the height
// the transaction is first applied. Basic accounts never go through this
// path; crediting an absent address with a Basic-typed transaction simply
// yields a fresh zero-balance Basic account credited in the ordinary way.
func CreateFromTransaction(tx *chain.Transaction, height uint64) (Account, error) {
	switch tx.RecipientType {
	case chain.AccountTypeVesting:
		return newVestingFromData(tx, height)
	case chain.AccountTypeHTLC:
		return newHTLCFromData(tx, height)
	default:
		return nil, ErrInvalidTransaction
	}
}

// NewBasic returns a fresh Basic account with the given balance.
func NewBasic(balance primitives.Coin) *Basic {
	return &Basic{balance: balance}
}

const (
	tagBasic   uint8 = 0
	tagVesting uint8 = 1
	tagHTLC    uint8 = 2
)

// Decode reconstructs an Account from its canonical encoding, dispatching
// on the leading discriminant byte.
func Decode(b []byte) (Account, error) {
	r := serial.NewReader(b)
	tag, err := r.ReadDiscriminant()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	switch tag {
	case tagBasic:
		return decodeBasic(r)
	case tagVesting:
		return decodeVesting(r)
	case tagHTLC:
		return decodeHTLC(r)
	default:
		return nil, ErrInvalidSerialization
	}
}
