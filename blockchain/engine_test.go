package blockchain

import (
	"testing"

	"github.com/chaincore/core/account"
	"github.com/chaincore/core/accountstree"
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/params"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/storage"
	"github.com/stretchr/testify/require"
)

const testNow uint64 = 2_000_000_000

func fixedNow() uint64 { return testNow }

// computeGenesisAccountsHash runs the same Init a real genesis authoring
// tool would, against a throwaway store, purely to get the root hash that
// belongs in the genesis header.
func computeGenesisAccountsHash(t *testing.T, accounts map[primitives.Address]account.Account) primitives.Hash {
	t.Helper()
	store := storage.NewMemStore()
	tree := accountstree.New(store)
	batch := store.NewBatch()
	require.NoError(t, tree.Init(batch, accounts))
	require.NoError(t, batch.Commit())
	hash, err := tree.Hash(nil)
	require.NoError(t, err)
	return hash
}

func newGenesis(t *testing.T, accounts map[primitives.Address]account.Account, miner primitives.Address) *chain.Block {
	t.Helper()
	body := &chain.Body{MinerAddress: miner}
	header := &chain.Header{
		Version:      params.BlockVersion,
		Height:       0,
		Timestamp:    testNow - 1_000_000,
		NBits:        params.BlockTargetMaxCompact,
		AccountsHash: computeGenesisAccountsHash(t, accounts),
		BodyHash:     body.Hash(),
	}
	return &chain.Block{Header: header, Body: body}
}

func mineNonce(t *testing.T, header *chain.Header) {
	t.Helper()
	for nonce := uint64(0); ; nonce++ {
		header.Nonce = nonce
		if primitives.HashMeetsTarget(header.Hash(), header.NBits) {
			return
		}
		if nonce > 5_000_000 {
			t.Fatalf("failed to find a nonce meeting target within a reasonable search")
		}
	}
}

// mineBlock builds a successor to prev: it asks bc for the required next
// target the same way Push will, dry-runs the accounts commit against bc's
// current accounts state to learn the resulting AccountsHash, then searches
// for a nonce satisfying the target - exactly what a real miner does. The
// AccountsHash is only right when prev is bc's head. Genesis-adjacent
// difficulty is the easiest target, which about one hash in 65,536 meets,
// well inside mineNonce's search limit.
func mineBlock(t *testing.T, bc *Blockchain, kv storage.KVStore, prev *chain.Block, miner primitives.Address) *chain.Block {
	t.Helper()
	return mineBlockOnState(t, bc, bc, kv, prev, miner)
}

// mineBlockOnState is mineBlock with the accounts dry-run done against
// state (whose store is kv) instead of bc, for a fork block whose
// predecessor is state's head but not bc's.
func mineBlockOnState(t *testing.T, bc, state *Blockchain, kv storage.KVStore, prev *chain.Block, miner primitives.Address) *chain.Block {
	t.Helper()

	prevHash := prev.Header.Hash()
	nextTarget, err := bc.GetNextTarget(&prevHash)
	require.NoError(t, err)

	body := &chain.Body{MinerAddress: miner}
	header := &chain.Header{
		Version:   params.BlockVersion,
		PrevHash:  prevHash,
		Height:    prev.Header.Height + 1,
		Timestamp: prev.Header.Timestamp + params.BlockTime,
		NBits:     primitives.TargetToCompact(nextTarget),
		BodyHash:  body.Hash(),
	}
	candidate := &chain.Block{Header: header, Body: body}

	batch := kv.NewBatch()
	accountsHash, err := state.Accounts().CommitBlock(batch, candidate, bc.reward())
	require.NoError(t, err)
	batch.Discard()
	header.AccountsHash = accountsHash

	mineNonce(t, header)
	return candidate
}

func setupChain(t *testing.T) (*Blockchain, storage.KVStore, *chain.Block) {
	t.Helper()
	minerGenesis := primitives.Address{0xAA}
	genesisAccounts := map[primitives.Address]account.Account{
		minerGenesis: account.NewBasic(0),
	}
	genesis := newGenesis(t, genesisAccounts, minerGenesis)

	kv := storage.NewMemStore()
	bc, err := New(kv, Genesis{NetworkID: 1, Block: genesis, Accounts: genesisAccounts}, fixedNow)
	require.NoError(t, err)
	return bc, kv, genesis
}

func TestPushExtendsSingleBlock(t *testing.T) {
	bc, kv, genesis := setupChain(t)

	miner1 := primitives.Address{0x01}
	block1 := mineBlock(t, bc, kv, genesis, miner1)

	result := bc.Push(block1)
	require.Equal(t, Extended, result.Kind)
	require.Equal(t, uint64(1), bc.Height())
	require.Equal(t, block1.Header.Hash(), bc.HeadHash())

	minerAcc, err := bc.Accounts().Get(miner1, nil)
	require.NoError(t, err)
	require.EqualValues(t, params.BlockRewardAtGenesis, minerAcc.Balance())
}

func TestPushKnownBlockIsIdempotent(t *testing.T) {
	bc, kv, genesis := setupChain(t)

	block1 := mineBlock(t, bc, kv, genesis, primitives.Address{0x01})
	require.Equal(t, Extended, bc.Push(block1).Kind)

	result := bc.Push(block1)
	require.Equal(t, Known, result.Kind)
	require.Equal(t, uint64(1), bc.Height())
}

func TestPushOrphanBlockIsRejected(t *testing.T) {
	bc, kv, genesis := setupChain(t)

	block1 := mineBlock(t, bc, kv, genesis, primitives.Address{0x01})
	// Detach it from genesis: its predecessor becomes unknown to the
	// store, and the header must be remined since changing PrevHash
	// changes the header's identity hash (and so its PoW validity).
	block1.Header.PrevHash = primitives.Hash{0xEE}
	mineNonce(t, block1.Header)

	result := bc.Push(block1)
	require.Equal(t, Orphan, result.Kind)
	require.Equal(t, uint64(0), bc.Height())
}

func TestPushBuildsThreeBlockChain(t *testing.T) {
	bc, kv, genesis := setupChain(t)

	block1 := mineBlock(t, bc, kv, genesis, primitives.Address{0x01})
	require.Equal(t, Extended, bc.Push(block1).Kind)

	block2 := mineBlock(t, bc, kv, block1, primitives.Address{0x02})
	require.Equal(t, Extended, bc.Push(block2).Kind)

	block3 := mineBlock(t, bc, kv, block2, primitives.Address{0x03})
	require.Equal(t, Extended, bc.Push(block3).Kind)

	require.Equal(t, uint64(3), bc.Height())
	require.Equal(t, block3.Header.Hash(), bc.HeadHash())
}

func TestPushEqualDifficultyForkDoesNotRebranch(t *testing.T) {
	bc, kv, genesis := setupChain(t)

	block1 := mineBlock(t, bc, kv, genesis, primitives.Address{0x01})
	require.Equal(t, Extended, bc.Push(block1).Kind)

	// Same height, same predecessor, different miner -> same total
	// difficulty as block1 (next_target only depends on the predecessor).
	// A tie never displaces the current head (spec: strictly greater only).
	block1b := mineBlock(t, bc, kv, genesis, primitives.Address{0x0B})
	result := bc.Push(block1b)
	require.Equal(t, Forked, result.Kind)
	require.Equal(t, uint64(1), bc.Height())
	require.Equal(t, block1.Header.Hash(), bc.HeadHash())
}

func TestPushRebranchesToHeavierFork(t *testing.T) {
	bc, kv, genesis := setupChain(t)

	block1 := mineBlock(t, bc, kv, genesis, primitives.Address{0x01})
	require.Equal(t, Extended, bc.Push(block1).Kind)

	var events []interface{}
	bc.Notifier.Register(listenerFunc(func(evt interface{}) { events = append(events, evt) }))

	// The fork's accounts state (genesis plus block1b) is not bc's head
	// state, so a second chain built on the same genesis follows the fork
	// and supplies it for the AccountsHash dry-runs.
	forkState, forkKV, _ := setupChain(t)
	block1b := mineBlock(t, forkState, forkKV, genesis, primitives.Address{0x0B})
	require.Equal(t, Extended, forkState.Push(block1b).Kind)
	require.Equal(t, Forked, bc.Push(block1b).Kind)

	block2b := mineBlockOnState(t, bc, forkState, forkKV, block1b, primitives.Address{0x2B})
	result := bc.Push(block2b)
	require.Equal(t, Rebranched, result.Kind)

	require.Equal(t, uint64(2), bc.Height())
	require.Equal(t, block2b.Header.Hash(), bc.HeadHash())

	require.Len(t, events, 1)
	rebranched, ok := events[0].(RebranchedEvent)
	require.True(t, ok)
	require.Len(t, rebranched.Reverted, 1)
	require.Equal(t, block1.Header.Hash(), rebranched.Reverted[0].Header.Hash())
	require.Len(t, rebranched.Adopted, 2)
	require.Equal(t, block1b.Header.Hash(), rebranched.Adopted[0].Header.Hash())
	require.Equal(t, block2b.Header.Hash(), rebranched.Adopted[1].Header.Hash())

	// The accounts tree must now reflect the adopted fork, not the
	// abandoned one: block1's miner was never actually rewarded.
	revertedMiner, err := bc.Accounts().Get(primitives.Address{0x01}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, revertedMiner.Balance())

	adoptedMiner, err := bc.Accounts().Get(primitives.Address{0x2B}, nil)
	require.NoError(t, err)
	require.EqualValues(t, params.BlockRewardAtGenesis, adoptedMiner.Balance())
}

type listenerFunc func(evt interface{})

func (f listenerFunc) Notify(evt interface{}) { f(evt) }
