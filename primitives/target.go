package primitives

import (
	"math"
	"math/big"
)

// CompactToTarget expands a compact (nBits-style) difficulty target into
// its float64 magnitude: the top byte is a byte-length exponent, the
// bottom three bytes are the mantissa, following the same layout as
// BLOCK_TARGET_MAX's literal form (spec §6). Retargeting's difficulty
// accounting (ChainInfo.Next's 1/target accumulation, the averaging in
// get_next_target) is carried out in float64 throughout, so this is the
// representation the blockchain engine works with day to day.
func CompactToTarget(compact uint32) float64 {
	exponent := int(compact >> 24)
	mantissa := float64(compact & 0x00ffffff)
	return mantissa * math.Pow(256, float64(exponent-3))
}

// TargetToCompact reduces a float64 target back to compact precision, the
// form actually stored in a header's n_bits. Per spec §9's open question,
// get_next_target must round-trip its result through this pair of
// conversions before comparing against a candidate header, since only
// compact-precision targets are ever valid n_bits values.
func TargetToCompact(target float64) uint32 {
	if target < 1 {
		target = 1
	}
	exponent := 3
	for target >= float64(uint32(1)<<24) {
		target /= 256
		exponent++
	}
	for target < float64(uint32(1)<<16) && exponent > 0 {
		target *= 256
		exponent--
	}
	mantissa := uint32(target)
	// A mantissa with its top bit set moves down one byte, so the result
	// has the same canonical form as BLOCK_TARGET_MAX (0x1f00ffff).
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}
	return uint32(exponent)<<24 | (mantissa & 0x00ffffff)
}

// RoundTripCompact applies TargetToCompact then CompactToTarget, the exact
// precision-reduction get_next_target must perform on its result.
func RoundTripCompact(target float64) float64 {
	return CompactToTarget(TargetToCompact(target))
}

// CompactToTargetBig expands a compact target to its exact big.Int value,
// used for the one comparison that must be bit-exact rather than a float64
// approximation: checking that a block's hash actually meets its claimed
// target (proof of work).
func CompactToTargetBig(compact uint32) *big.Int {
	exponent := int(compact >> 24)
	mantissa := big.NewInt(int64(compact & 0x00ffffff))
	shift := 8 * (exponent - 3)
	if shift >= 0 {
		return new(big.Int).Lsh(mantissa, uint(shift))
	}
	return new(big.Int).Rsh(mantissa, uint(-shift))
}

// HashMeetsTarget reports whether hash, read as a big-endian unsigned
// integer, is at or below the target encoded by compact - the proof of
// work condition.
func HashMeetsTarget(hash Hash, compact uint32) bool {
	hashInt := new(big.Int).SetBytes(hash[:])
	return hashInt.Cmp(CompactToTargetBig(compact)) <= 0
}
