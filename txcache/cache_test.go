package txcache

import (
	"testing"

	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/stretchr/testify/require"
)

func blockWithTx(height uint64, sender primitives.Address, validityStart uint32) *chain.Block {
	tx := &chain.Transaction{
		Sender:              sender,
		SenderType:          chain.AccountTypeBasic,
		Recipient:           primitives.Address{byte(height)},
		RecipientType:       chain.AccountTypeBasic,
		Value:               1,
		ValidityStartHeight: validityStart,
	}
	return &chain.Block{
		Header: &chain.Header{Height: height},
		Body: &chain.Body{
			MinerAddress: primitives.Address{1},
			Transactions: []*chain.Transaction{tx},
		},
	}
}

func TestPushAndContainsAny(t *testing.T) {
	c := New(3)
	require.True(t, c.IsEmpty())
	require.Equal(t, 3, c.MissingBlocks())

	b1 := blockWithTx(1, primitives.Address{2}, 0)
	c.PushBlock(b1)
	require.False(t, c.IsEmpty())
	require.Equal(t, 2, c.MissingBlocks())
	require.True(t, c.ContainsAny(b1))
	require.Equal(t, b1.Hash(), c.HeadHash())
	require.Equal(t, b1.Hash(), c.TailHash())

	b2 := blockWithTx(2, primitives.Address{3}, 0)
	require.False(t, c.ContainsAny(b2))
	c.PushBlock(b2)
	require.Equal(t, 1, c.MissingBlocks())
	require.Equal(t, b2.Hash(), c.HeadHash())
	require.Equal(t, b1.Hash(), c.TailHash())
}

func TestWindowEviction(t *testing.T) {
	c := New(2)
	b1 := blockWithTx(1, primitives.Address{2}, 0)
	b2 := blockWithTx(2, primitives.Address{3}, 0)
	b3 := blockWithTx(3, primitives.Address{4}, 0)

	c.PushBlock(b1)
	c.PushBlock(b2)
	require.Equal(t, 0, c.MissingBlocks())
	require.True(t, c.ContainsAny(b1))

	c.PushBlock(b3)
	require.Equal(t, 0, c.MissingBlocks())
	require.Equal(t, b3.Hash(), c.HeadHash())
	require.Equal(t, b2.Hash(), c.TailHash())
	// b1 has fallen out of the window: its transaction hash is no longer tracked.
	require.False(t, c.ContainsAny(b1))
}

func TestRevertBlock(t *testing.T) {
	c := New(3)
	b1 := blockWithTx(1, primitives.Address{2}, 0)
	b2 := blockWithTx(2, primitives.Address{3}, 0)
	c.PushBlock(b1)
	c.PushBlock(b2)

	c.RevertBlock(b2)
	require.Equal(t, b1.Hash(), c.HeadHash())
	require.False(t, c.ContainsAny(b2))
	require.True(t, c.ContainsAny(b1))

	c.RevertBlock(b1)
	require.True(t, c.IsEmpty())
}

func TestPrependBlock(t *testing.T) {
	c := New(3)
	b2 := blockWithTx(2, primitives.Address{3}, 0)
	c.PushBlock(b2)
	require.Equal(t, 2, c.MissingBlocks())

	b1 := blockWithTx(1, primitives.Address{2}, 0)
	c.PrependBlock(b1)
	require.Equal(t, 1, c.MissingBlocks())
	require.Equal(t, b1.Hash(), c.TailHash())
	require.Equal(t, b2.Hash(), c.HeadHash())
	require.True(t, c.ContainsAny(b1))
}

func TestClone(t *testing.T) {
	c := New(3)
	b1 := blockWithTx(1, primitives.Address{2}, 0)
	c.PushBlock(b1)

	clone := c.Clone()
	b2 := blockWithTx(2, primitives.Address{3}, 0)
	clone.PushBlock(b2)

	require.False(t, c.ContainsAny(b2))
	require.True(t, clone.ContainsAny(b2))
	require.Equal(t, b1.Hash(), c.HeadHash())
}

func TestSharedTransactionHashAcrossBlocksIsTracked(t *testing.T) {
	c := New(2)
	sender := primitives.Address{5}
	b1 := blockWithTx(1, sender, 0)
	b1dup := blockWithTx(1, sender, 0) // identical content -> identical hash
	c.PushBlock(b1)
	require.True(t, c.ContainsAny(b1dup))
}
