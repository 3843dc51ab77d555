package accountstree

import (
	"github.com/chaincore/core/account"
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/storage"
)

// Txn applies a sequence of commit_block/revert_block calls as one logical
// unit sharing a single batch and a single base snapshot, each call seeing
// the cumulative effect of every earlier call in the same Txn.
//
// A standalone Tree.CommitBlock/RevertBlock call always takes a fresh
// snapshot of the live store, which is only correct for a single block per
// batch (extend's case: one block, one batch, one commit). Rebranch applies
// several blocks against one shared batch with no intermediate commit -
// reverting the abandoned main chain, then committing the adopted fork - so
// each later block must see the earlier ones' not-yet-durable changes
// rather than re-reading the unchanged live store.
type Txn struct {
	tree    *Tree
	snap    storage.Snapshot
	batch   storage.Batch
	changed map[primitives.Address]account.Account
}

// NewTxn starts a multi-block transaction writing into batch. The caller
// must call Release when done, win or lose, to free the snapshot.
func (t *Tree) NewTxn(batch storage.Batch) (*Txn, error) {
	snap, err := t.store.NewSnapshot()
	if err != nil {
		return nil, err
	}
	return &Txn{tree: t, snap: snap, batch: batch, changed: nil}, nil
}

// Release frees the transaction's base snapshot.
func (txn *Txn) Release() {
	txn.snap.Release()
}

// CommitBlock applies b on top of every block already applied in this Txn.
func (txn *Txn) CommitBlock(b *chain.Block, reward primitives.Coin) (primitives.Hash, error) {
	o := txn.overlay()
	hash, err := txn.tree.applyCommit(o, txn.batch, b, reward)
	txn.changed = o.changed
	return hash, err
}

// RevertBlock undoes b on top of every block already applied in this Txn.
func (txn *Txn) RevertBlock(b *chain.Block, reward primitives.Coin, parentAccountsHash primitives.Hash) (primitives.Hash, error) {
	o := txn.overlay()
	hash, err := txn.tree.applyRevert(o, txn.batch, b, reward, parentAccountsHash)
	txn.changed = o.changed
	return hash, err
}

func (txn *Txn) overlay() *overlay {
	return newOverlay(txn.tree, txn.snap, txn.changed)
}
