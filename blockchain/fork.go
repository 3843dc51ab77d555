package blockchain

import (
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/txcache"
)

type hashedInfo struct {
	hash primitives.Hash
	info *chain.ChainInfo
}

// rebranch switches the main chain from the current head back to the
// common ancestor with the new fork, then forward along the fork (spec
// §4.F Rebranch). Any failure reverting the existing main chain is fatal:
// it means the store has already diverged from consensus history, so this
// panics rather than returning a result the caller might ignore.
func (bc *Blockchain) rebranch(blockHash primitives.Hash, chainInfo *chain.ChainInfo) PushResult {
	logger.Debug("rebranching", "hash", blockHash.String(), "height", chainInfo.Head.Header.Height, "total_difficulty", chainInfo.TotalDifficulty)

	// Step 1: walk the new fork backward to the common ancestor.
	var forkChain []hashedInfo
	current := hashedInfo{hash: blockHash, info: chainInfo}
	for !current.info.OnMainChain {
		prevHash := current.info.Head.Header.PrevHash
		prevInfo, err := bc.chainStore.GetChainInfo(prevHash, true, nil)
		if err != nil {
			panic("blockchain: corrupted store, failed to find fork predecessor while rebranching: " + err.Error())
		}
		forkChain = append(forkChain, current)
		current = hashedInfo{hash: prevHash, info: prevInfo}
	}
	ancestor := current
	logger.Debug("found common ancestor", "hash", ancestor.hash.String(), "height", ancestor.info.Head.Header.Height, "fork_depth", len(forkChain))

	bc.mu.RLock()
	accounts := bc.state.accounts
	cacheTxn := bc.state.cache.Clone()
	mainCurrent := hashedInfo{hash: bc.state.headHash, info: bc.state.mainChain}
	bc.mu.RUnlock()

	batch := bc.kv.NewBatch()
	txn, err := accounts.NewTxn(batch)
	if err != nil {
		panic("blockchain: failed to start accounts transaction while rebranching: " + err.Error())
	}
	defer txn.Release()

	// Step 2: revert the main chain down to the ancestor. txn carries every
	// revert's effect forward to the next one, and later to step 4's
	// commits, since they all share one batch with no intermediate commit.
	var revertChain []hashedInfo
	for mainCurrent.hash != ancestor.hash {
		prevHash := mainCurrent.info.Head.Header.PrevHash
		prevInfo, err := bc.chainStore.GetChainInfo(prevHash, true, nil)
		if err != nil {
			panic("blockchain: corrupted store, failed to find main chain predecessor while rebranching: " + err.Error())
		}

		resultHash, err := txn.RevertBlock(mainCurrent.info.Head, bc.reward(), prevInfo.Head.Header.AccountsHash)
		if err != nil {
			panic("blockchain: failed to revert main chain while rebranching: " + err.Error())
		}
		if resultHash != prevInfo.Head.Header.AccountsHash {
			panic("blockchain: inconsistent state reverting main chain while rebranching")
		}
		cacheTxn.RevertBlock(mainCurrent.info.Head)

		revertChain = append(revertChain, mainCurrent)
		mainCurrent = hashedInfo{hash: prevHash, info: prevInfo}
	}

	// Step 3: backfill the cache so it covers exactly the window
	// ancestor.height - W + 1 ... ancestor.height.
	if err := bc.refillCacheAtAncestor(cacheTxn, ancestor.info.Head.Header.Height); err != nil {
		panic("blockchain: failed to refill transaction cache while rebranching: " + err.Error())
	}

	// Step 4: apply fork blocks in chronological order (forkChain is stored
	// newest-first, so walk it backward).
	for i := len(forkChain) - 1; i >= 0; i-- {
		forkBlock := forkChain[i]
		if cacheTxn.ContainsAny(forkBlock.info.Head) {
			logger.Warn("failed to apply fork block while rebranching, transaction already included")
			batch.Discard()
			return PushResult{Kind: Invalid, Err: &PushError{Kind: PushErrorInvalidFork}}
		}
		accountsHash, err := txn.CommitBlock(forkBlock.info.Head, bc.reward())
		if err != nil || accountsHash != forkBlock.info.Head.Header.AccountsHash {
			logger.Warn("failed to apply fork block while rebranching", "err", err)
			batch.Discard()
			return PushResult{Kind: Invalid, Err: &PushError{Kind: PushErrorInvalidFork}}
		}
		cacheTxn.PushBlock(forkBlock.info.Head)
	}

	// Step 5: flip on_main_chain flags and successors, commit, swap state.
	for _, reverted := range revertChain {
		reverted.info.OnMainChain = false
		reverted.info.MainChainSuccessor = nil
		if err := bc.chainStore.PutChainInfo(batch, reverted.hash, reverted.info, false); err != nil {
			panic("blockchain: failed to persist reverted chain info: " + err.Error())
		}
	}

	firstForkHash := forkChain[len(forkChain)-1].hash
	ancestor.info.MainChainSuccessor = &firstForkHash
	if err := bc.chainStore.PutChainInfo(batch, ancestor.hash, ancestor.info, false); err != nil {
		panic("blockchain: failed to persist ancestor chain info: " + err.Error())
	}

	for i := len(forkChain) - 1; i >= 0; i-- {
		var successor *primitives.Hash
		if i > 0 {
			h := forkChain[i-1].hash
			successor = &h
		}
		forkChain[i].info.OnMainChain = true
		forkChain[i].info.MainChainSuccessor = successor
		if err := bc.chainStore.PutChainInfo(batch, forkChain[i].hash, forkChain[i].info, i == 0); err != nil {
			panic("blockchain: failed to persist adopted chain info: " + err.Error())
		}
	}
	if err := bc.chainStore.SetHead(batch, forkChain[0].hash); err != nil {
		panic("blockchain: failed to persist new head: " + err.Error())
	}

	bc.mu.Lock()
	err = batch.Commit()
	if err == nil {
		bc.state.cache = cacheTxn
		bc.state.mainChain = forkChain[0].info
		bc.state.headHash = forkChain[0].hash
	}
	bc.mu.Unlock()
	if err != nil {
		panic("blockchain: fatal: failed to commit rebranch transaction: " + err.Error())
	}
	accounts.InvalidateCache()

	reverted := make([]*chain.Block, 0, len(revertChain))
	for i := len(revertChain) - 1; i >= 0; i-- {
		reverted = append(reverted, revertChain[i].info.Head)
	}
	adopted := make([]*chain.Block, 0, len(forkChain))
	for i := len(forkChain) - 1; i >= 0; i-- {
		adopted = append(adopted, forkChain[i].info.Head)
	}
	bc.Notifier.Notify(RebranchedEvent{Reverted: reverted, Adopted: adopted})

	return PushResult{Kind: Rebranched}
}

// refillCacheAtAncestor loads whatever blocks cacheTxn needs, after being
// reverted down to the common ancestor, to cover a full
// TRANSACTION_VALIDITY_WINDOW ending at ancestorHeight (spec §4.F Rebranch
// step 3). If the cache still holds some blocks (it was not emptied by the
// revert), those blocks already end at ancestorHeight, so only the missing
// older blocks are fetched; otherwise the whole window is loaded fresh.
func (bc *Blockchain) refillCacheAtAncestor(cacheTxn *txcache.Cache, ancestorHeight uint64) error {
	missing := cacheTxn.MissingBlocks()
	if missing <= 0 {
		return nil
	}

	startHeight := ancestorHeight
	if !cacheTxn.IsEmpty() {
		tailInfo, err := bc.chainStore.GetChainInfo(cacheTxn.TailHash(), false, nil)
		if err != nil {
			return err
		}
		if tailInfo.Head.Header.Height == 0 {
			return nil
		}
		startHeight = tailInfo.Head.Header.Height - 1
	}

	blocks, err := bc.chainStore.GetBlocksBackward(startHeight, missing, true, nil)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		cacheTxn.PrependBlock(b)
	}
	return nil
}
