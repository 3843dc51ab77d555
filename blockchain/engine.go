package blockchain

import (
	"fmt"
	"sync"

	"github.com/chaincore/core/account"
	"github.com/chaincore/core/accountstree"
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/chainstore"
	"github.com/chaincore/core/event"
	"github.com/chaincore/core/log"
	"github.com/chaincore/core/params"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/storage"
	"github.com/chaincore/core/txcache"
)

var logger = log.NewModuleLogger(log.Blockchain)

// Genesis describes the network's fixed starting point: the genesis block
// itself (body required) and the initial account balances it implies.
type Genesis struct {
	NetworkID uint8
	Block     *chain.Block
	Accounts  map[primitives.Address]account.Account
}

// ExtendedEvent is notified after push(block) returns Extended.
type ExtendedEvent struct {
	Hash  primitives.Hash
	Block *chain.Block
}

// RebranchedEvent is notified after push(block) returns Rebranched.
// Reverted lists the abandoned main-chain blocks and Adopted the newly
// adopted ones, both in chronological (increasing height) order (spec §4.F
// step 6, testable property 7).
type RebranchedEvent struct {
	Reverted []*chain.Block
	Adopted  []*chain.Block
}

type engineState struct {
	accounts *accountstree.Tree
	cache    *txcache.Cache
	mainChain *chain.ChainInfo
	headHash primitives.Hash
}

// Blockchain is the consensus engine: it owns the accounts tree,
// transaction cache and chain store, and is the sole arbiter of which
// chain is the main chain (spec §4.F).
type Blockchain struct {
	mu     sync.RWMutex // guards state
	pushMu sync.Mutex   // serializes push(); only one push runs at a time

	networkID   uint8
	networkTime func() uint64
	genesisHash primitives.Hash

	kv         storage.KVStore
	chainStore *chainstore.Store

	state *engineState

	Notifier *event.Multi
}

// New loads or initializes a Blockchain against kv: if the store has no
// head, genesis is written atomically and becomes the new chain; otherwise
// the existing head is loaded and cross-checked against genesis (spec §4.F
// Startup). Any inconsistency is fatal, per the spec, and is returned as
// ErrInconsistentStore rather than panicking, so the caller can decide how
// to surface it.
func New(kv storage.KVStore, genesis Genesis, networkTime func() uint64) (*Blockchain, error) {
	bc := &Blockchain{
		networkID:   genesis.NetworkID,
		networkTime: networkTime,
		kv:          kv,
		chainStore:  chainstore.New(kv),
		genesisHash: genesis.Block.Hash(),
		Notifier:    event.NewMulti(),
	}

	head, err := bc.chainStore.GetHead(nil)
	if err == chainstore.ErrNotFound {
		if err := bc.initGenesis(genesis); err != nil {
			return nil, err
		}
		return bc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := bc.loadExisting(genesis, head); err != nil {
		return nil, err
	}
	return bc, nil
}

func (bc *Blockchain) initGenesis(genesis Genesis) error {
	accounts := accountstree.New(bc.kv)
	batch := bc.kv.NewBatch()
	if err := accounts.Init(batch, genesis.Accounts); err != nil {
		return err
	}

	mainChain := &chain.ChainInfo{Head: genesis.Block, TotalDifficulty: 0, TotalWork: 0, OnMainChain: true}
	if err := bc.chainStore.PutChainInfo(batch, bc.genesisHash, mainChain, true); err != nil {
		return err
	}
	if err := bc.chainStore.SetHead(batch, bc.genesisHash); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	accounts.InvalidateCache()

	bc.state = &engineState{
		accounts:  accounts,
		cache:     txcache.New(int(params.TransactionValidityWindow)),
		mainChain: mainChain,
		headHash:  bc.genesisHash,
	}
	return nil
}

func (bc *Blockchain) loadExisting(genesis Genesis, head primitives.Hash) error {
	genesisInfo, err := bc.chainStore.GetChainInfo(bc.genesisHash, false, nil)
	if err != nil || !genesisInfo.OnMainChain {
		return fmt.Errorf("%w: genesis block not found or not on main chain", ErrInconsistentStore)
	}

	mainChain, err := bc.chainStore.GetChainInfo(head, true, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to load main chain head: %v", ErrInconsistentStore, err)
	}

	accounts := accountstree.New(bc.kv)
	accountsHash, err := accounts.Hash(nil)
	if err != nil {
		return err
	}
	if accountsHash != mainChain.Head.Header.AccountsHash {
		return fmt.Errorf("%w: accounts root does not match head's accounts_hash", ErrInconsistentStore)
	}

	cache := txcache.New(int(params.TransactionValidityWindow))
	if err := bc.fillCacheBackward(cache, mainChain.Head.Header.Height); err != nil {
		return err
	}

	bc.state = &engineState{
		accounts:  accounts,
		cache:     cache,
		mainChain: mainChain,
		headHash:  head,
	}
	return nil
}

// fillCacheBackward loads the blocks needed to bring cache up to a full
// TRANSACTION_VALIDITY_WINDOW ending at headHeight.
func (bc *Blockchain) fillCacheBackward(cache *txcache.Cache, headHeight uint64) error {
	missing := cache.MissingBlocks()
	if missing <= 0 {
		return nil
	}
	blocks, err := bc.chainStore.GetBlocksBackward(headHeight, missing, true, nil)
	if err != nil {
		return err
	}
	// blocks[0] is the head's own block; walk oldest-to-newest so the cache
	// ends up with the head as its own head.
	for i := len(blocks) - 1; i >= 0; i-- {
		cache.PushBlock(blocks[i])
	}
	return nil
}

// Push validates and applies a candidate block, returning which of the six
// outcomes resulted (spec §4.F push). Only one Push call executes at a
// time; concurrent reads proceed without blocking on it.
func (bc *Blockchain) Push(block *chain.Block) PushResult {
	if be := verifyIntrinsic(block, bc.networkTime()); be != nil {
		logger.Warn("rejecting block, verification failed", "reason", be.String())
		return PushResult{Kind: Invalid, Err: invalidBlock(*be)}
	}

	bc.pushMu.Lock()
	defer bc.pushMu.Unlock()

	hash := block.Header.Hash()
	if _, err := bc.chainStore.GetChainInfo(hash, false, nil); err == nil {
		return PushResult{Kind: Known}
	}

	prevInfo, err := bc.chainStore.GetChainInfo(block.Header.PrevHash, false, nil)
	if err == chainstore.ErrNotFound {
		logger.Warn("rejecting block, unknown predecessor")
		return PushResult{Kind: Orphan}
	}
	if err != nil {
		return PushResult{Kind: Invalid, Err: accountsErr(err)}
	}

	if !isImmediateSuccessorOf(block, prevInfo.Head) {
		logger.Warn("rejecting block, not a valid successor")
		return PushResult{Kind: Invalid, Err: &PushError{Kind: PushErrorInvalidSuccessor}}
	}

	nextTarget, err := bc.GetNextTarget(&block.Header.PrevHash)
	if err != nil {
		return PushResult{Kind: Invalid, Err: accountsErr(err)}
	}
	if block.Header.NBits != primitives.TargetToCompact(nextTarget) {
		logger.Warn("rejecting block, difficulty mismatch")
		return PushResult{Kind: Invalid, Err: &PushError{Kind: PushErrorDifficultyMismatch}}
	}

	chainInfo := prevInfo.Next(block, nextTarget)

	bc.mu.RLock()
	curHeadHash := bc.state.headHash
	curTotalDifficulty := bc.state.mainChain.TotalDifficulty
	bc.mu.RUnlock()

	if block.Header.PrevHash == curHeadHash {
		return bc.extend(hash, chainInfo, prevInfo)
	}
	if chainInfo.TotalDifficulty > curTotalDifficulty {
		return bc.rebranch(hash, chainInfo)
	}

	batch := bc.kv.NewBatch()
	if err := bc.chainStore.PutChainInfo(batch, hash, chainInfo, true); err != nil {
		return PushResult{Kind: Invalid, Err: accountsErr(err)}
	}
	if err := batch.Commit(); err != nil {
		return PushResult{Kind: Invalid, Err: accountsErr(err)}
	}
	logger.Debug("creating/extending fork", "hash", hash.String(), "height", chainInfo.Head.Header.Height)
	return PushResult{Kind: Forked}
}

func (bc *Blockchain) reward() primitives.Coin {
	return primitives.Coin(params.BlockRewardAtGenesis)
}

func (bc *Blockchain) extend(hash primitives.Hash, chainInfo, prevInfo *chain.ChainInfo) PushResult {
	bc.mu.RLock()
	cacheCollides := bc.state.cache.ContainsAny(chainInfo.Head)
	accounts := bc.state.accounts
	bc.mu.RUnlock()

	if cacheCollides {
		logger.Warn("rejecting block, transaction already included")
		return PushResult{Kind: Invalid, Err: &PushError{Kind: PushErrorDuplicateTransaction}}
	}

	batch := bc.kv.NewBatch()
	accountsHash, err := accounts.CommitBlock(batch, chainInfo.Head, bc.reward())
	if err != nil {
		logger.Warn("rejecting block, accounts commit failed", "err", err)
		return PushResult{Kind: Invalid, Err: accountsErr(err)}
	}
	if accountsHash != chainInfo.Head.Header.AccountsHash {
		return PushResult{Kind: Invalid, Err: accountsErr(accountstree.ErrAccountsHashMismatch)}
	}

	chainInfo.OnMainChain = true
	successor := hash
	prevInfo.MainChainSuccessor = &successor

	if err := bc.chainStore.PutChainInfo(batch, hash, chainInfo, true); err != nil {
		return PushResult{Kind: Invalid, Err: accountsErr(err)}
	}
	if err := bc.chainStore.PutChainInfo(batch, chainInfo.Head.Header.PrevHash, prevInfo, false); err != nil {
		return PushResult{Kind: Invalid, Err: accountsErr(err)}
	}
	if err := bc.chainStore.SetHead(batch, hash); err != nil {
		return PushResult{Kind: Invalid, Err: accountsErr(err)}
	}

	bc.mu.Lock()
	bc.state.cache.PushBlock(chainInfo.Head)
	bc.state.mainChain = chainInfo
	bc.state.headHash = hash
	err = batch.Commit()
	bc.mu.Unlock()
	if err != nil {
		logger.Error("fatal: failed to commit extend transaction", "err", err)
		return PushResult{Kind: Invalid, Err: accountsErr(err)}
	}
	accounts.InvalidateCache()

	bc.Notifier.Notify(ExtendedEvent{Hash: hash, Block: chainInfo.Head})
	return PushResult{Kind: Extended}
}

// Contains reports whether hash is known to the store; includeForks also
// counts blocks stored only as forks (on_main_chain = false).
func (bc *Blockchain) Contains(hash primitives.Hash, includeForks bool) bool {
	info, err := bc.chainStore.GetChainInfo(hash, false, nil)
	if err != nil {
		return false
	}
	return includeForks || info.OnMainChain
}

func (bc *Blockchain) GetBlock(hash primitives.Hash, includeBody bool) (*chain.Block, error) {
	return bc.chainStore.GetBlock(hash, includeBody, nil)
}

func (bc *Blockchain) GetBlocks(start uint64, count int, includeBody bool, dir chainstore.Direction) ([]*chain.Block, error) {
	return bc.chainStore.GetBlocks(start, count, includeBody, dir, nil)
}

func (bc *Blockchain) HeadHash() primitives.Hash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.state.headHash
}

func (bc *Blockchain) Height() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.state.mainChain.Head.Header.Height
}

func (bc *Blockchain) Head() *chain.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.state.mainChain.Head
}

func (bc *Blockchain) Accounts() *accountstree.Tree {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.state.accounts
}

func (bc *Blockchain) TransactionCache() *txcache.Cache {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.state.cache
}
