package blockchain

import (
	"github.com/chaincore/core/params"
	"github.com/chaincore/core/primitives"
)

// GetBlockLocators emits the head hash, up to 10 direct ancestors, then
// exponentially increasing gaps back toward genesis, always including
// genesis itself even if that means trimming the exponential tail to fit
// within LOCATORS_MAX_COUNT (spec §4.F Block locators).
func (bc *Blockchain) GetBlockLocators() []primitives.Hash {
	bc.mu.RLock()
	head := bc.state.mainChain.Head
	bc.mu.RUnlock()

	locators := make([]primitives.Hash, 0, params.LocatorsMaxCount)
	locators = append(locators, head.Hash())

	if head.Header.Height == 0 {
		return locators
	}

	genesis := bc.genesisHash
	current := head
	step := uint64(1)
	directAncestors := 0

	for {
		if current.Header.PrevHash == genesis || current.Header.Height <= 1 {
			break
		}
		if len(locators) >= params.LocatorsMaxCount-1 {
			break
		}

		var targetHeight uint64
		if directAncestors < 10 {
			targetHeight = current.Header.Height - 1
			directAncestors++
		} else {
			if current.Header.Height <= step {
				targetHeight = 1
			} else {
				targetHeight = current.Header.Height - step
			}
			step *= 2
		}

		prev, err := bc.chainStore.GetBlockAt(targetHeight, nil)
		if err != nil {
			break
		}
		locators = append(locators, prev.Hash())
		current = prev
		if targetHeight <= 1 {
			break
		}
	}

	if locators[len(locators)-1] != genesis {
		locators = append(locators, genesis)
	}
	return locators
}
