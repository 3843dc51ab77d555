package chainstore

import (
	"testing"

	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/storage"
	"github.com/stretchr/testify/require"
)

func testBlock(height uint64, prev primitives.Hash) *chain.Block {
	h := &chain.Header{Height: height, PrevHash: prev, Nonce: height}
	return &chain.Block{
		Header: h,
		Body: &chain.Body{
			MinerAddress: primitives.Address{byte(height)},
			Transactions: []*chain.Transaction{
				{Sender: primitives.Address{1}, Recipient: primitives.Address{2}, Value: 5},
			},
		},
	}
}

func TestPutAndGetChainInfo(t *testing.T) {
	kv := storage.NewMemStore()
	s := New(kv)

	b := testBlock(1, primitives.Hash{})
	info := &chain.ChainInfo{Head: b, TotalDifficulty: 1.5, TotalWork: 1, OnMainChain: true}

	batch := kv.NewBatch()
	require.NoError(t, s.PutChainInfo(batch, b.Hash(), info, true))
	require.NoError(t, s.SetHead(batch, b.Hash()))
	require.NoError(t, batch.Commit())

	got, err := s.GetChainInfo(b.Hash(), true, nil)
	require.NoError(t, err)
	require.Equal(t, b.Header.Height, got.Head.Header.Height)
	require.Equal(t, b.Header.Nonce, got.Head.Header.Nonce)
	require.InDelta(t, 1.5, got.TotalDifficulty, 1e-12)
	require.True(t, got.OnMainChain)
	require.Len(t, got.Head.Body.Transactions, 1)
	require.EqualValues(t, 5, got.Head.Body.Transactions[0].Value)

	withoutBody, err := s.GetChainInfo(b.Hash(), false, nil)
	require.NoError(t, err)
	require.Nil(t, withoutBody.Head.Body)

	head, err := s.GetHead(nil)
	require.NoError(t, err)
	require.Equal(t, b.Hash(), head)

	byHeight, err := s.GetChainInfoAt(1, true, nil)
	require.NoError(t, err)
	require.Equal(t, b.Hash(), byHeight.Head.Hash())
}

func TestGetChainInfoNotFound(t *testing.T) {
	kv := storage.NewMemStore()
	s := New(kv)
	_, err := s.GetChainInfo(primitives.Hash{9}, false, nil)
	require.Equal(t, ErrNotFound, err)
	_, err = s.GetHead(nil)
	require.Equal(t, ErrNotFound, err)
}

func TestGetBlocksWalksMainChain(t *testing.T) {
	kv := storage.NewMemStore()
	s := New(kv)

	var prev primitives.Hash
	hashes := make([]primitives.Hash, 0, 5)
	for i := uint64(1); i <= 5; i++ {
		b := testBlock(i, prev)
		info := &chain.ChainInfo{Head: b, TotalDifficulty: float64(i), OnMainChain: true}
		batch := kv.NewBatch()
		require.NoError(t, s.PutChainInfo(batch, b.Hash(), info, true))
		require.NoError(t, batch.Commit())
		hashes = append(hashes, b.Hash())
		prev = b.Hash()
	}

	forward, err := s.GetBlocks(1, 3, false, Forward, nil)
	require.NoError(t, err)
	require.Len(t, forward, 3)
	require.Equal(t, hashes[0], forward[0].Hash())
	require.Equal(t, hashes[2], forward[2].Hash())

	backward, err := s.GetBlocksBackward(5, 3, false, nil)
	require.NoError(t, err)
	require.Len(t, backward, 3)
	require.Equal(t, hashes[4], backward[0].Hash())
	require.Equal(t, hashes[2], backward[2].Hash())

	// requesting past either end simply truncates
	short, err := s.GetBlocks(4, 10, false, Forward, nil)
	require.NoError(t, err)
	require.Len(t, short, 2)
}
