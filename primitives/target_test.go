package primitives

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactTargetRoundtrip(t *testing.T) {
	const blockTargetMaxCompact = 0x1f00ffff
	target := CompactToTarget(blockTargetMaxCompact)
	require.Equal(t, uint32(blockTargetMaxCompact), TargetToCompact(target))
	require.Equal(t, target, RoundTripCompact(target))
}

func TestHashMeetsTargetEasyTargetAcceptsLowHash(t *testing.T) {
	// 0x1f00ffff expands to 0xffff shifted left 224 bits; a hash with three
	// leading zero bytes lies below it.
	var hash Hash
	for i := 3; i < len(hash); i++ {
		hash[i] = 0xff
	}
	require.True(t, HashMeetsTarget(hash, 0x1f00ffff))
}

func TestHashMeetsTargetRejectsAboveTarget(t *testing.T) {
	var hash Hash
	for i := range hash {
		hash[i] = 0xff
	}
	// a tiny compact target (small mantissa, small exponent) requires a
	// hash with many leading zero bytes; an all-0xff hash must fail it.
	require.False(t, HashMeetsTarget(hash, 0x03000001))
}
