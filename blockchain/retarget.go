package blockchain

import (
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/params"
	"github.com/chaincore/core/primitives"
)

// GetNextTarget computes the difficulty target a block extending headHash
// (or the current main-chain head, if nil) must satisfy (spec §4.F
// get_next_target). The result is always reduced to compact precision and
// round-tripped back, since only compact-precision targets are ever valid
// n_bits values and the comparison in push() must match bit for bit.
func (bc *Blockchain) GetNextTarget(headHash *primitives.Hash) (float64, error) {
	headInfo, err := bc.headChainInfo(headHash)
	if err != nil {
		return 0, err
	}

	windowSize := params.DifficultyBlockWindow
	head := headInfo.Head

	tailHeight := uint64(1)
	if head.Header.Height > windowSize {
		tailHeight = head.Header.Height - windowSize
	}
	if tailHeight > head.Header.Height {
		// head itself is genesis: there is no earlier block to measure
		// against yet, so fall back to a zero-width, fully-padded window.
		tailHeight = head.Header.Height
	}

	tailInfo, err := bc.findTailInfo(headInfo, tailHeight)
	if err != nil {
		return 0, err
	}
	tail := tailInfo.Head

	deltaDifficulty := headInfo.TotalDifficulty - tailInfo.TotalDifficulty
	deltaTime := float64(head.Header.Timestamp) - float64(tail.Header.Timestamp)

	if head.Header.Height <= windowSize {
		padding := float64(windowSize - head.Header.Height + 1)
		deltaTime += padding * float64(params.BlockTime)
		deltaDifficulty += padding
	}

	expectedTime := float64(windowSize) * float64(params.BlockTime)
	adjustment := deltaTime / expectedTime
	maxFactor := params.DifficultyMaxAdjustmentFactor
	if adjustment < 1/maxFactor {
		adjustment = 1 / maxFactor
	}
	if adjustment > maxFactor {
		adjustment = maxFactor
	}

	blockTargetMax := primitives.CompactToTarget(params.BlockTargetMaxCompact)
	averageDifficulty := deltaDifficulty / float64(windowSize)
	averageTarget := blockTargetMax / averageDifficulty

	next := averageTarget * adjustment
	if next < 1 {
		next = 1
	}
	if next > blockTargetMax {
		next = blockTargetMax
	}

	return primitives.RoundTripCompact(next), nil
}

func (bc *Blockchain) headChainInfo(headHash *primitives.Hash) (*chain.ChainInfo, error) {
	if headHash == nil {
		bc.mu.RLock()
		defer bc.mu.RUnlock()
		return bc.state.mainChain, nil
	}
	return bc.chainStore.GetChainInfo(*headHash, false, nil)
}

// findTailInfo locates the block DIFFICULTY_BLOCK_WINDOW behind headInfo:
// directly by height if headInfo is on the main chain, otherwise by
// walking the fork backward until it either reaches tailHeight or merges
// into the main chain.
func (bc *Blockchain) findTailInfo(headInfo *chain.ChainInfo, tailHeight uint64) (*chain.ChainInfo, error) {
	if headInfo.OnMainChain {
		return bc.chainStore.GetChainInfoAt(tailHeight, false, nil)
	}

	current := headInfo
	for i := uint64(0); i < params.DifficultyBlockWindow; i++ {
		prevInfo, err := bc.chainStore.GetChainInfo(current.Head.Header.PrevHash, false, nil)
		if err != nil {
			return nil, err
		}
		if prevInfo.OnMainChain && prevInfo.Head.Header.Height > tailHeight {
			return bc.chainStore.GetChainInfoAt(tailHeight, false, nil)
		}
		current = prevInfo
		if current.Head.Header.Height <= tailHeight {
			return current, nil
		}
		if prevInfo.OnMainChain {
			return current, nil
		}
	}
	return current, nil
}
