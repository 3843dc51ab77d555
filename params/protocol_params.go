// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Package params carries the compile-time protocol constants (spec §6):
// everything a node of this network must agree on to stay in consensus.
package params

import "time"

const (
	// BlockTime is the target number of seconds between blocks.
	BlockTime uint64 = 60

	// DifficultyBlockWindow is the number of blocks the retarget algorithm
	// looks back over.
	DifficultyBlockWindow uint64 = 120

	// DifficultyMaxAdjustmentFactor clamps the per-retarget adjustment.
	DifficultyMaxAdjustmentFactor float64 = 2.0

	// TransactionValidityWindow bounds both transaction replay protection
	// and transaction liveness (validity_start_height + this).
	TransactionValidityWindow uint32 = 120

	// BlockRewardAtGenesis is the miner reward paid at height 1; the engine
	// does not taper it (tapering is outside this spec's scope).
	BlockRewardAtGenesis uint64 = 5000000000 // 50 coins at 1e8 units/coin.

	// LocatorsMaxCount bounds the length of a get_block_locators() response.
	LocatorsMaxCount int = 128

	// MaxTimestampDrift bounds how far into the future a block's timestamp
	// may lie relative to the local network time and still be accepted.
	MaxTimestampDrift uint64 = 600

	// BlockVersion is the only header version this engine accepts.
	BlockVersion uint16 = 1
)

// BlockTargetMaxCompact is the difficulty-1 compact target: the easiest PoW
// target permitted by the protocol. The blockchain package expands it to a
// float64 with primitives.CompactToTarget; kept here as the canonical
// compact encoding.
const BlockTargetMaxCompact uint32 = 0x1f00ffff

// Connection-pool / network-supervisor knobs (spec §6 + §4.I/§4.J).
const (
	PeerCountMax                    = 4000
	PeerCountPerIPMax                = 20
	InboundPeerCountPerSubnetMax     = 30
	OutboundPeerCountPerSubnetMax    = 2
	PeerCountDumbMax                 = 0
	IPv4SubnetMask                   = 24
	IPv6SubnetMask                   = 64
	DefaultBanTime                   = 10 * time.Minute
	PeerCountRecyclingActive         = 1000
	ScoreInboundExchange     float64 = 0.5
	ConnectingCountMax               = 2
	ConnectBackoffInitial            = 2 * time.Second
	ConnectBackoffMax                = 10 * time.Minute
	HousekeepingInterval             = 2 * time.Minute
)
