package account

import (
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/primitives/serial"
)

// Vesting is a contract account whose outgoing value is capped by a
// piecewise-linear unlocking schedule (spec §3/§4.B).
type Vesting struct {
	balance     primitives.Coin
	owner       primitives.Address
	start       uint64
	stepBlocks  uint64
	stepAmount  primitives.Coin
	totalAmount primitives.Coin
}

func (v *Vesting) Kind() chain.AccountType  { return chain.AccountTypeVesting }
func (v *Vesting) Balance() primitives.Coin { return v.balance }

// MinCap computes the minimum balance that must remain unspent at the
// given height: total_amount - step_amount * max(0, floor((height-start)/step_blocks))
// (spec §4.B).
func (v *Vesting) MinCap(height uint64) primitives.Coin {
	if v.stepBlocks == 0 || height <= v.start {
		return v.totalAmount
	}
	steps := (height - v.start) / v.stepBlocks
	unlocked := uint64(v.stepAmount) * steps
	if unlocked >= uint64(v.totalAmount) {
		return 0
	}
	return v.totalAmount - primitives.Coin(unlocked)
}

func (v *Vesting) Encode() []byte {
	w := serial.NewWriter()
	w.WriteDiscriminant(tagVesting)
	w.WriteUint64(uint64(v.balance))
	w.WriteFixed(v.owner[:])
	w.WriteUint64(v.start)
	w.WriteUint64(v.stepBlocks)
	w.WriteUint64(uint64(v.stepAmount))
	w.WriteUint64(uint64(v.totalAmount))
	return w.Bytes()
}

func decodeVesting(r *serial.Reader) (Account, error) {
	bal, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	ownerBytes, err := r.ReadFixed(primitives.AddressSize)
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	start, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	stepBlocks, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	stepAmount, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	totalAmount, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidSerialization
	}
	var owner primitives.Address
	copy(owner[:], ownerBytes)
	return &Vesting{
		balance:     primitives.Coin(bal),
		owner:       owner,
		start:       start,
		stepBlocks:  stepBlocks,
		stepAmount:  primitives.Coin(stepAmount),
		totalAmount: primitives.Coin(totalAmount),
	}, nil
}

// newVestingFromData parses a recipient-creating transaction's Data field
// into the fields of a brand new Vesting account, initially credited with
// tx.Value.
func newVestingFromData(tx *chain.Transaction, height uint64) (Account, error) {
	r := serial.NewReader(tx.Data)
	ownerBytes, err := r.ReadFixed(primitives.AddressSize)
	if err != nil {
		return nil, ErrInvalidTransaction
	}
	start, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidTransaction
	}
	stepBlocks, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidTransaction
	}
	stepAmount, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidTransaction
	}
	totalAmount, err := r.ReadUint64()
	if err != nil {
		return nil, ErrInvalidTransaction
	}
	var owner primitives.Address
	copy(owner[:], ownerBytes)
	return &Vesting{
		balance:     tx.Value,
		owner:       owner,
		start:       start,
		stepBlocks:  stepBlocks,
		stepAmount:  primitives.Coin(stepAmount),
		totalAmount: primitives.Coin(totalAmount),
	}, nil
}

func (v *Vesting) verifyIncoming(tx *chain.Transaction) error { return nil }

func (v *Vesting) verifyOutgoing(tx *chain.Transaction) error {
	proof, err := parseBasicProof(tx.Proof)
	if err != nil {
		return err
	}
	if primitives.AddressFromPublicKey(proof.PublicKey) != v.owner {
		return ErrInvalidForSender
	}
	if !primitives.Verify(proof.PublicKey, tx.SerializeContent(), proof.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

func (v *Vesting) withIncoming(tx *chain.Transaction, height uint64) (Account, error) {
	bal, err := v.balance.Add(tx.Value)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	out := *v
	out.balance = bal
	return &out, nil
}

func (v *Vesting) withOutgoing(tx *chain.Transaction, height uint64) (Account, error) {
	if err := v.verifyOutgoing(tx); err != nil {
		return nil, err
	}
	total, err := tx.Value.Add(tx.Fee)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	remaining, err := v.balance.Sub(total)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	if remaining < v.MinCap(height) {
		return nil, ErrInvalidForSender
	}
	out := *v
	out.balance = remaining
	return &out, nil
}

func (v *Vesting) withoutIncoming(tx *chain.Transaction, height uint64) (Account, error) {
	bal, err := v.balance.Sub(tx.Value)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	out := *v
	out.balance = bal
	return &out, nil
}

func (v *Vesting) withoutOutgoing(tx *chain.Transaction, height uint64) (Account, error) {
	total, err := tx.Value.Add(tx.Fee)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	bal, err := v.balance.Add(total)
	if err != nil {
		return nil, ErrInsufficientFunds
	}
	out := *v
	out.balance = bal
	return &out, nil
}
