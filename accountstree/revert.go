package accountstree

import (
	"github.com/chaincore/core/account"
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/storage"
)

// RevertBlock applies the exact inverse of CommitBlock, in reverse order
// (spec §4.C revert_block): restore pruned accounts, undo the miner
// credit, then for each transaction in reverse, undo the recipient credit
// and then the sender debit (the inverse of "debit sender, then credit
// recipient").
//
// A mismatch between the resulting hash and the parent block's
// accounts_hash is reported as ErrAccountsHashMismatch; the blockchain
// engine treats that as fatal when it occurs during a revert (spec §4.F,
// §7), since it means the store has already diverged from consensus
// history.
func (t *Tree) RevertBlock(batch storage.Batch, b *chain.Block, reward primitives.Coin, parentAccountsHash primitives.Hash) (primitives.Hash, error) {
	snap, err := t.store.NewSnapshot()
	if err != nil {
		return primitives.Hash{}, err
	}
	defer snap.Release()

	o := newOverlay(t, snap, nil)
	return t.applyRevert(o, batch, b, reward, parentAccountsHash)
}

func (t *Tree) applyRevert(o *overlay, batch storage.Batch, b *chain.Block, reward primitives.Coin, parentAccountsHash primitives.Hash) (primitives.Hash, error) {
	for _, pa := range b.Body.PrunedAccounts {
		acc, err := account.Decode(pa.Encoded)
		if err != nil {
			return primitives.Hash{}, account.ErrInvalidSerialization
		}
		o.set(pa.Address, acc)
	}

	var totalFees primitives.Coin
	for _, tx := range b.Body.Transactions {
		fees, err := totalFees.Add(tx.Fee)
		if err != nil {
			return primitives.Hash{}, account.ErrInsufficientFunds
		}
		totalFees = fees
	}
	minerReward, err := totalFees.Add(reward)
	if err != nil {
		return primitives.Hash{}, account.ErrInsufficientFunds
	}
	if err := t.undoMinerCredit(o, b.Body.MinerAddress, minerReward); err != nil {
		return primitives.Hash{}, err
	}

	for i := len(b.Body.Transactions) - 1; i >= 0; i-- {
		tx := b.Body.Transactions[i]
		if err := t.undoIncoming(o, tx, b.Header.Height); err != nil {
			return primitives.Hash{}, err
		}
		if err := t.undoOutgoing(o, tx, b.Header.Height); err != nil {
			return primitives.Hash{}, err
		}
	}

	// A transaction that created a contract account this block leaves a
	// zero-balance remainder once its incoming value is undone; the
	// invariant that non-Basic accounts never rest at zero balance applies
	// equally on the revert path. Only this call's own touched addresses are
	// considered, for the same reason as commit's pruneZeroBalances.
	for addr := range o.touched {
		acc := o.changed[addr]
		if acc != nil && account.IsPrunable(acc) {
			o.remove(addr)
		}
	}

	if err := o.writeTo(batch); err != nil {
		return primitives.Hash{}, err
	}
	result, err := o.hash(t)
	if err != nil {
		return primitives.Hash{}, err
	}
	if result != parentAccountsHash {
		return result, ErrAccountsHashMismatch
	}
	return result, nil
}

func (t *Tree) undoMinerCredit(o *overlay, miner primitives.Address, amount primitives.Coin) error {
	acc, err := o.get(miner)
	if err != nil {
		return err
	}
	if acc.Kind() != chain.AccountTypeBasic {
		return account.ErrTypeMismatch
	}
	basic := acc.(*account.Basic)
	newBal, err := basic.Balance().Sub(amount)
	if err != nil {
		return account.ErrInsufficientFunds
	}
	o.set(miner, account.NewBasic(newBal))
	return nil
}

func (t *Tree) undoIncoming(o *overlay, tx *chain.Transaction, height uint64) error {
	acc, err := o.get(tx.Recipient)
	if err != nil {
		return err
	}
	prev, err := account.WithoutIncoming(acc, tx, height)
	if err != nil {
		return err
	}
	o.set(tx.Recipient, prev)
	return nil
}

func (t *Tree) undoOutgoing(o *overlay, tx *chain.Transaction, height uint64) error {
	acc, err := o.get(tx.Sender)
	if err != nil {
		return err
	}
	prev, err := account.WithoutOutgoing(acc, tx, height)
	if err != nil {
		return err
	}
	o.set(tx.Sender, prev)
	return nil
}
