package accountstree

import (
	"errors"

	"github.com/chaincore/core/account"
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/storage"
)

// ErrAccountsHashMismatch is fatal when observed during revert (spec §7):
// it means the store has diverged from consensus history. When observed
// during commit it simply means the candidate block is invalid.
var ErrAccountsHashMismatch = errors.New("accountstree: accounts hash mismatch")

// overlay tracks the pending mutations against a fixed base snapshot, so
// CommitBlock/RevertBlock can compute the resulting root before anything is
// written to the shared batch's underlying store. A standalone call gets a
// fresh, empty changed map; a Txn instead passes its own accumulated map so
// that each block in a multi-block transaction sees every earlier block's
// changes layered on top of the same fixed snapshot.
type overlay struct {
	tree    *Tree
	snap    storage.Snapshot
	changed map[primitives.Address]account.Account // nil value = deleted
	touched map[primitives.Address]bool            // addresses set/removed by THIS call, not earlier Txn steps
}

func newOverlay(t *Tree, snap storage.Snapshot, changed map[primitives.Address]account.Account) *overlay {
	if changed == nil {
		changed = make(map[primitives.Address]account.Account)
	}
	return &overlay{tree: t, snap: snap, changed: changed, touched: make(map[primitives.Address]bool)}
}

func (o *overlay) get(addr primitives.Address) (account.Account, error) {
	if acc, ok := o.changed[addr]; ok {
		if acc == nil {
			return account.NewBasic(0), nil
		}
		return acc, nil
	}
	return o.tree.Get(addr, o.snap)
}

func (o *overlay) set(addr primitives.Address, acc account.Account) {
	if acc.Kind() == chain.AccountTypeBasic && acc.Balance() == 0 {
		// A zero-balance Basic account is the absent account: drop it.
		o.remove(addr)
		return
	}
	o.changed[addr] = acc
	o.touched[addr] = true
}

func (o *overlay) remove(addr primitives.Address) {
	o.changed[addr] = nil
	o.touched[addr] = true
}

// CommitBlock applies a block's transactions and miner reward to the tree
// within batch, per spec §4.C commit_block:
//  1. debit sender before credit recipient, for every transaction in order
//  2. credit the miner with fees + block reward
//  3. prune zero-balance non-Basic accounts and check against body.PrunedAccounts
//  4. return the resulting root; the caller compares it with header.AccountsHash
//
// The batch is never committed by this function; the caller decides after
// inspecting the returned hash (so a failed candidate block never touches
// the durable store).
func (t *Tree) CommitBlock(batch storage.Batch, b *chain.Block, reward primitives.Coin) (primitives.Hash, error) {
	snap, err := t.store.NewSnapshot()
	if err != nil {
		return primitives.Hash{}, err
	}
	defer snap.Release()

	o := newOverlay(t, snap, nil)
	return t.applyCommit(o, batch, b, reward)
}

func (t *Tree) applyCommit(o *overlay, batch storage.Batch, b *chain.Block, reward primitives.Coin) (primitives.Hash, error) {
	var totalFees primitives.Coin

	for _, tx := range b.Body.Transactions {
		if err := t.applyOutgoing(o, tx, b.Header.Height); err != nil {
			return primitives.Hash{}, err
		}
		if err := t.applyIncoming(o, tx, b.Header.Height); err != nil {
			return primitives.Hash{}, err
		}
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
	if err := t.creditMiner(o, b.Body.MinerAddress, minerReward); err != nil {
		return primitives.Hash{}, err
	}

	pruned, err := t.pruneZeroBalances(o)
	if err != nil {
		return primitives.Hash{}, err
	}
	if !prunedSetsMatch(pruned, b.Body.PrunedAccounts) {
		return primitives.Hash{}, account.ErrInvalidPruning
	}

	if err := o.writeTo(batch); err != nil {
		return primitives.Hash{}, err
	}
	return o.hash(t)
}

func (t *Tree) applyOutgoing(o *overlay, tx *chain.Transaction, height uint64) error {
	acc, err := o.get(tx.Sender)
	if err != nil {
		return err
	}
	if acc.Kind() != tx.SenderType {
		return account.ErrTypeMismatch
	}
	next, err := account.WithOutgoing(acc, tx, height)
	if err != nil {
		return err
	}
	o.set(tx.Sender, next)
	return nil
}

func (t *Tree) applyIncoming(o *overlay, tx *chain.Transaction, height uint64) error {
	acc, err := o.get(tx.Recipient)
	if err != nil {
		return err
	}
	isNew := acc.Kind() == chain.AccountTypeBasic && acc.Balance() == 0 && !o.wasExplicitlySet(tx.Recipient)
	if acc.Kind() != tx.RecipientType {
		if !isNew {
			return account.ErrTypeMismatch
		}
		created, err := account.CreateFromTransaction(tx, height)
		if err != nil {
			return err
		}
		o.set(tx.Recipient, created)
		return nil
	}
	next, err := account.WithIncoming(acc, tx, height)
	if err != nil {
		return err
	}
	o.set(tx.Recipient, next)
	return nil
}

// wasExplicitlySet reports whether addr has a real, persisted, non-absent
// account distinct from the implicit "absent account defaults to Basic(0)"
// convention; used to tell "recipient truly absent" from "recipient is a
// genuine zero-balance Basic account" when deciding whether a
// contract-creating transaction may create at that address.
func (o *overlay) wasExplicitlySet(addr primitives.Address) bool {
	if acc, ok := o.changed[addr]; ok {
		return acc != nil
	}
	b, err := o.snap.Get(key(addr))
	return err == nil && len(b) > 0
}

func (t *Tree) creditMiner(o *overlay, miner primitives.Address, amount primitives.Coin) error {
	acc, err := o.get(miner)
	if err != nil {
		return err
	}
	if acc.Kind() != chain.AccountTypeBasic {
		return account.ErrTypeMismatch
	}
	basic := acc.(*account.Basic)
	newBal, err := basic.Balance().Add(amount)
	if err != nil {
		return account.ErrInsufficientFunds
	}
	o.set(miner, account.NewBasic(newBal))
	return nil
}

// pruneZeroBalances only considers addresses THIS call touched, not every
// address accumulated so far in a multi-block Txn: commit_block's declared
// body.PrunedAccounts lists only what this one block prunes, so checking
// against addresses an earlier block in the same rebranch touched would
// spuriously re-report them here.
func (t *Tree) pruneZeroBalances(o *overlay) ([]chain.PrunedAccount, error) {
	var pruned []chain.PrunedAccount
	for addr := range o.touched {
		acc := o.changed[addr]
		if acc == nil {
			continue
		}
		if account.IsPrunable(acc) {
			pruned = append(pruned, chain.PrunedAccount{Address: addr, Encoded: acc.Encode()})
			o.remove(addr)
		}
	}
	chain.SortPrunedAccounts(pruned)
	return pruned, nil
}

func prunedSetsMatch(computed, declared []chain.PrunedAccount) bool {
	if len(computed) != len(declared) {
		return false
	}
	for i := range computed {
		if computed[i].Address != declared[i].Address {
			return false
		}
	}
	return true
}

// writeTo applies the overlay to batch. It never touches the tree's recency
// cache: batch may still be discarded by the caller (an invalid candidate
// block, or an aborted later step in a multi-block operation), and the
// cache must never hold values that were never actually committed. Callers
// call Tree.InvalidateCache once batch.Commit has actually succeeded.
func (o *overlay) writeTo(batch storage.Batch) error {
	for addr, acc := range o.changed {
		if acc == nil {
			if err := batch.Delete(key(addr)); err != nil {
				return err
			}
			continue
		}
		if err := batch.Put(key(addr), acc.Encode()); err != nil {
			return err
		}
	}
	return nil
}

// hash computes the resulting root: the base snapshot's accounts with the
// overlay's changes applied, in address order.
func (o *overlay) hash(t *Tree) (primitives.Hash, error) {
	merged := make(map[primitives.Address][]byte)
	it := o.snap.NewIterator([]byte(keyPrefix))
	for it.Next() {
		var addr primitives.Address
		copy(addr[:], it.Key()[len(keyPrefix):])
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		merged[addr] = v
	}
	it.Release()

	for addr, acc := range o.changed {
		if acc == nil {
			delete(merged, addr)
			continue
		}
		merged[addr] = acc.Encode()
	}

	addrs := make([]primitives.Address, 0, len(merged))
	for addr := range merged {
		addrs = append(addrs, addr)
	}
	sortAddresses(addrs)

	hasher := primitives.NewHasher()
	for _, addr := range addrs {
		hasher.Write(addr[:])
		v := merged[addr]
		var lenBuf [4]byte
		lenBuf[0] = byte(len(v) >> 24)
		lenBuf[1] = byte(len(v) >> 16)
		lenBuf[2] = byte(len(v) >> 8)
		lenBuf[3] = byte(len(v))
		hasher.Write(lenBuf[:])
		hasher.Write(v)
	}
	var out primitives.Hash
	copy(out[:], hasher.Sum(nil))
	return out, nil
}

func sortAddresses(addrs []primitives.Address) {
	for i := 1; i < len(addrs); i++ {
		for j := i; j > 0 && lessAddr(addrs[j], addrs[j-1]); j-- {
			addrs[j], addrs[j-1] = addrs[j-1], addrs[j]
		}
	}
}

func lessAddr(a, b primitives.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
