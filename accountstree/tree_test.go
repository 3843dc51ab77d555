package accountstree

import (
	"testing"

	"github.com/chaincore/core/account"
	"github.com/chaincore/core/chain"
	"github.com/chaincore/core/primitives"
	"github.com/chaincore/core/storage"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T) (*Tree, storage.KVStore) {
	store := storage.NewMemStore()
	return New(store), store
}

func signTx(sk primitives.PrivateKey, pub primitives.PublicKey, tx *chain.Transaction) {
	sig := primitives.Sign(sk, tx.SerializeContent())
	proof := make([]byte, 0, primitives.PublicKeySize+primitives.SignatureSize)
	proof = append(proof, pub[:]...)
	proof = append(proof, sig[:]...)
	tx.Proof = proof
}

func TestCommitAndRevertRoundtrip(t *testing.T) {
	tree, store := newTestTree(t)

	pubSender, skSender, err := primitives.GenerateKeyPair()
	require.NoError(t, err)
	sender := primitives.AddressFromPublicKey(pubSender)
	recipient := primitives.Address{7}
	miner := primitives.Address{9}

	batch := store.NewBatch()
	require.NoError(t, tree.Init(batch, map[primitives.Address]account.Account{
		sender: account.NewBasic(1000),
	}))
	require.NoError(t, batch.Commit())

	rootBefore, err := tree.Hash(nil)
	require.NoError(t, err)

	tx := &chain.Transaction{
		Sender:        sender,
		SenderType:    chain.AccountTypeBasic,
		Recipient:     recipient,
		RecipientType: chain.AccountTypeBasic,
		Value:         100,
		Fee:           1,
	}
	signTx(skSender, pubSender, tx)

	block := &chain.Block{
		Header: &chain.Header{Height: 1},
		Body: &chain.Body{
			MinerAddress: miner,
			Transactions: []*chain.Transaction{tx},
		},
	}

	commitBatch := store.NewBatch()
	rootAfterCommit, err := tree.CommitBlock(commitBatch, block, 50)
	require.NoError(t, err)
	require.NoError(t, commitBatch.Commit())
	require.NotEqual(t, rootBefore, rootAfterCommit)

	senderAcc, err := tree.Get(sender, nil)
	require.NoError(t, err)
	require.EqualValues(t, 899, senderAcc.Balance())

	recipientAcc, err := tree.Get(recipient, nil)
	require.NoError(t, err)
	require.EqualValues(t, 100, recipientAcc.Balance())

	minerAcc, err := tree.Get(miner, nil)
	require.NoError(t, err)
	require.EqualValues(t, 51, minerAcc.Balance())

	revertBatch := store.NewBatch()
	rootAfterRevert, err := tree.RevertBlock(revertBatch, block, 50, rootBefore)
	require.NoError(t, err)
	require.NoError(t, revertBatch.Commit())
	require.Equal(t, rootBefore, rootAfterRevert)
}
