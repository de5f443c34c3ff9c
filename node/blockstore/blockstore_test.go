// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore

import (
	"context"
	"io/ioutil"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/jax-pos/posnode/node/chainlogic"
	"github.com/jax-pos/posnode/node/crypto"
)

func openTempStore(t *testing.T) (*Store, chainlogic.Crypto, func()) {
	t.Helper()
	dir, err := ioutil.TempDir("", "blockstore-test-")
	require.NoError(t, err)

	hasher := crypto.NewHeaderHasher()
	store, err := Open(dir, hasher)
	require.NoError(t, err)

	return store, hasher, func() {
		store.Close()
		os.RemoveAll(dir)
	}
}

func TestInitGenesisAndRoundTrip(t *testing.T) {
	store, hasher, cleanup := openTempStore(t)
	defer cleanup()

	genesis := &chainlogic.Block{
		Header: chainlogic.GenesisHeader{Epoch: 0, PrevHash: chainlogic.ZeroHash, DifficultyVal: 0},
		Txs:    chainlogic.RawPayload("genesis-tx"),
		Ssc:    chainlogic.RawPayload("genesis-ssc"),
	}
	require.NoError(t, store.InitGenesis(context.Background(), genesis))

	genesisHash := hasher.Hash(genesis.Header)
	tip, err := store.GetTip(context.Background())
	require.NoError(t, err)
	require.True(t, tip.IsEqual(genesisHash))

	gotHeader, ok, err := store.GetBlockHeader(context.Background(), genesisHash)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(genesis.Header, gotHeader); diff != "" {
		t.Errorf("header round-trip mismatch (-want +got):\n%s", diff)
	}

	gotBlock, ok, err := store.GetBlock(context.Background(), genesisHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, chainlogic.RawPayload("genesis-tx"), gotBlock.Txs)
	require.Equal(t, chainlogic.RawPayload("genesis-ssc"), gotBlock.Ssc)

	inMain, err := store.IsBlockInMainChain(context.Background(), genesisHash)
	require.NoError(t, err)
	require.True(t, inMain)
}

func TestPutBlockAdvancesTipAndMainFlag(t *testing.T) {
	store, hasher, cleanup := openTempStore(t)
	defer cleanup()

	genesis := &chainlogic.Block{Header: chainlogic.GenesisHeader{Epoch: 0, PrevHash: chainlogic.ZeroHash}}
	require.NoError(t, store.InitGenesis(context.Background(), genesis))
	genesisHash := hasher.Hash(genesis.Header)

	next := &chainlogic.Block{
		Header: chainlogic.MainHeader{
			Slot:           chainlogic.SlotId{Epoch: 0, Slot: 1},
			PrevHash:       genesisHash,
			DifficultyVal:  1,
			ConsensusProof: []byte{0xAB, 0xCD},
		},
		Txs: chainlogic.RawPayload("tx-1"),
	}
	require.NoError(t, store.PutBlock(context.Background(), chainlogic.Undo{Payload: chainlogic.RawPayload("undo-1")}, true, next))
	nextHash := hasher.Hash(next.Header)

	tip, err := store.GetTip(context.Background())
	require.NoError(t, err)
	require.True(t, tip.IsEqual(nextHash))

	gotHeader, ok, err := store.GetBlockHeader(context.Background(), nextHash)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(next.Header, gotHeader); diff != "" {
		t.Errorf("header round-trip mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, store.SetBlockInMainChain(context.Background(), nextHash, false))
	tip, err = store.GetTip(context.Background())
	require.NoError(t, err)
	require.True(t, tip.IsEqual(genesisHash))

	inMain, err := store.IsBlockInMainChain(context.Background(), nextHash)
	require.NoError(t, err)
	require.False(t, inMain)
}

func TestLoadHeadersUntilWalksToGenesis(t *testing.T) {
	store, hasher, cleanup := openTempStore(t)
	defer cleanup()

	genesis := &chainlogic.Block{Header: chainlogic.GenesisHeader{Epoch: 0, PrevHash: chainlogic.ZeroHash}}
	require.NoError(t, store.InitGenesis(context.Background(), genesis))
	genesisHash := hasher.Hash(genesis.Header)

	prev := genesisHash
	var hashes []chainlogic.Hash
	for i := uint32(1); i <= 3; i++ {
		h := chainlogic.MainHeader{Slot: chainlogic.SlotId{Epoch: 0, Slot: i}, PrevHash: prev, DifficultyVal: uint64(i)}
		require.NoError(t, store.PutBlock(context.Background(), chainlogic.Undo{}, true, &chainlogic.Block{Header: h}))
		prev = hasher.Hash(h)
		hashes = append(hashes, prev)
	}

	got, err := store.LoadHeadersUntil(context.Background(), prev, func(_ chainlogic.BlockHeader, depth uint32) bool {
		return depth <= 10
	})
	require.NoError(t, err)
	require.Len(t, got, 4) // 3 main headers + genesis
	require.Equal(t, chainlogic.KindGenesis, got[len(got)-1].Kind())
}

func TestBeginIntentRecoversApplyOnRestart(t *testing.T) {
	store, hasher, cleanup := openTempStore(t)
	defer cleanup()

	genesis := &chainlogic.Block{Header: chainlogic.GenesisHeader{Epoch: 0, PrevHash: chainlogic.ZeroHash}}
	require.NoError(t, store.InitGenesis(context.Background(), genesis))
	genesisHash := hasher.Hash(genesis.Header)

	next := &chainlogic.Block{Header: chainlogic.MainHeader{Slot: chainlogic.SlotId{Epoch: 0, Slot: 1}, PrevHash: genesisHash, DifficultyVal: 1}}
	nextHash := hasher.Hash(next.Header)

	// Simulate a crash mid-apply: the intent record is written, but the
	// block's main-chain flag and the tip are never updated.
	require.NoError(t, store.BeginIntent(context.Background(), "apply", []chainlogic.Hash{nextHash}, nextHash))
	// The block must exist for SetBlockInMainChain-driven recovery to find
	// its header; a real ApplyBlocks would have written it before crashing.
	require.NoError(t, store.PutBlock(context.Background(), chainlogic.Undo{}, false, next))

	pending, ok, err := store.PendingIntent(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "apply", pending.Op)

	require.NoError(t, store.Recover(context.Background()))

	_, pending2, err := store.PendingIntent(context.Background())
	require.NoError(t, err)
	require.False(t, pending2)

	tip, err := store.GetTip(context.Background())
	require.NoError(t, err)
	require.True(t, tip.IsEqual(nextHash))

	inMain, err := store.IsBlockInMainChain(context.Background(), nextHash)
	require.NoError(t, err)
	require.True(t, inMain)
}

func TestRecoverApplyStopsAtFirstUnwrittenBlock(t *testing.T) {
	store, hasher, cleanup := openTempStore(t)
	defer cleanup()

	genesis := &chainlogic.Block{Header: chainlogic.GenesisHeader{Epoch: 0, PrevHash: chainlogic.ZeroHash}}
	require.NoError(t, store.InitGenesis(context.Background(), genesis))
	genesisHash := hasher.Hash(genesis.Header)

	b1 := &chainlogic.Block{Header: chainlogic.MainHeader{Slot: chainlogic.SlotId{Epoch: 0, Slot: 1}, PrevHash: genesisHash, DifficultyVal: 1}}
	b1Hash := hasher.Hash(b1.Header)
	b2 := &chainlogic.Block{Header: chainlogic.MainHeader{Slot: chainlogic.SlotId{Epoch: 0, Slot: 2}, PrevHash: b1Hash, DifficultyVal: 2}}
	b2Hash := hasher.Hash(b2.Header)

	// ApplyBlocks calls BeginIntent before its PutBlock loop, so a crash
	// before that loop runs leaves the intent record with no block written
	// for either hash at all.
	require.NoError(t, store.BeginIntent(context.Background(), "apply", []chainlogic.Hash{b1Hash, b2Hash}, b2Hash))

	require.NoError(t, store.Recover(context.Background()))

	_, pending, err := store.PendingIntent(context.Background())
	require.NoError(t, err)
	require.False(t, pending)

	tip, err := store.GetTip(context.Background())
	require.NoError(t, err)
	require.True(t, tip.IsEqual(genesisHash), "recovery must not advance the tip past the last block that was actually persisted")

	_, ok, err := store.GetBlockHeader(context.Background(), b1Hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecoverApplyRecoversOnlyWrittenPrefix(t *testing.T) {
	store, hasher, cleanup := openTempStore(t)
	defer cleanup()

	genesis := &chainlogic.Block{Header: chainlogic.GenesisHeader{Epoch: 0, PrevHash: chainlogic.ZeroHash}}
	require.NoError(t, store.InitGenesis(context.Background(), genesis))
	genesisHash := hasher.Hash(genesis.Header)

	b1 := &chainlogic.Block{Header: chainlogic.MainHeader{Slot: chainlogic.SlotId{Epoch: 0, Slot: 1}, PrevHash: genesisHash, DifficultyVal: 1}}
	b1Hash := hasher.Hash(b1.Header)
	b2 := &chainlogic.Block{Header: chainlogic.MainHeader{Slot: chainlogic.SlotId{Epoch: 0, Slot: 2}, PrevHash: b1Hash, DifficultyVal: 2}}
	b2Hash := hasher.Hash(b2.Header)

	require.NoError(t, store.BeginIntent(context.Background(), "apply", []chainlogic.Hash{b1Hash, b2Hash}, b2Hash))
	// Simulate a crash partway through ApplyBlocks' PutBlock loop: only the
	// first of the two recorded blocks made it to disk.
	require.NoError(t, store.PutBlock(context.Background(), chainlogic.Undo{}, false, b1))

	require.NoError(t, store.Recover(context.Background()))

	tip, err := store.GetTip(context.Background())
	require.NoError(t, err)
	require.True(t, tip.IsEqual(b1Hash), "recovery must stop at the last block that was actually persisted, not jump to the intent's recorded NewTip")

	inMain, err := store.IsBlockInMainChain(context.Background(), b1Hash)
	require.NoError(t, err)
	require.True(t, inMain)

	_, ok, err := store.GetBlockHeader(context.Background(), b2Hash)
	require.NoError(t, err)
	require.False(t, ok)
}
