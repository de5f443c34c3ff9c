// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainlogic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jax-pos/posnode/node/chainlogic"
	"github.com/jax-pos/posnode/node/chainlogic/testfakes"
	"github.com/jax-pos/posnode/node/crypto"
)

func TestGetHeadersOlderExp(t *testing.T) {
	hasher := crypto.NewHeaderHasher()
	genesis := genesisForTest()
	db := testfakes.NewMemDB(hasher, genesis)
	cc := &chainlogic.CoreCtx{DB: db, Crypto: hasher, K: 10, SlotsPerEpoch: 100}

	prev := hasher.Hash(genesis.Header)
	hashes := []chainlogic.Hash{prev}
	for i := uint32(1); i <= 12; i++ {
		h := mainHeader(prev, chainlogic.SlotId{Epoch: 0, Slot: i}, uint64(i))
		require.NoError(t, db.PutBlock(context.Background(), chainlogic.Undo{}, true, &chainlogic.Block{Header: h}))
		prev = hasher.Hash(h)
		hashes = append(hashes, prev)
	}

	locator, err := chainlogic.GetHeadersOlderExp(context.Background(), cc, nil)
	require.NoError(t, err)

	tip := hashes[len(hashes)-1]
	require.True(t, locator[0].IsEqual(tip))

	wantDepths := []uint32{0, 1, 2, 4, 8, 10}
	for i, depth := range wantDepths {
		want := hashes[len(hashes)-1-int(depth)]
		require.True(t, locator[i].IsEqual(want), "depth %d: got %s want %s", depth, locator[i], want)
	}
}

func TestRetrieveHeadersFromToUsesTipWhenStartFromNil(t *testing.T) {
	hasher := crypto.NewHeaderHasher()
	genesis := genesisForTest()
	db := testfakes.NewMemDB(hasher, genesis)
	cc := &chainlogic.CoreCtx{DB: db, Crypto: hasher, K: 10, SlotsPerEpoch: 100}

	prev := hasher.Hash(genesis.Header)
	var hashes []chainlogic.Hash
	for i := uint32(1); i <= 3; i++ {
		h := mainHeader(prev, chainlogic.SlotId{Epoch: 0, Slot: i}, uint64(i))
		require.NoError(t, db.PutBlock(context.Background(), chainlogic.Undo{}, true, &chainlogic.Block{Header: h}))
		prev = hasher.Hash(h)
		hashes = append(hashes, prev)
	}

	got, err := chainlogic.RetrieveHeadersFromTo(context.Background(), cc, nil, nil)
	require.NoError(t, err)

	// Oldest-first: genesis, then the three main headers up to the tip.
	require.Len(t, got, 4)
	require.Equal(t, chainlogic.KindGenesis, got[0].Kind())
	require.True(t, cc.Crypto.Hash(got[len(got)-1]).IsEqual(hashes[len(hashes)-1]))
}

func TestRetrieveHeadersFromToStopsAtCheckpoint(t *testing.T) {
	hasher := crypto.NewHeaderHasher()
	genesis := genesisForTest()
	db := testfakes.NewMemDB(hasher, genesis)
	cc := &chainlogic.CoreCtx{DB: db, Crypto: hasher, K: 10, SlotsPerEpoch: 100}

	prev := hasher.Hash(genesis.Header)
	var hashes []chainlogic.Hash
	for i := uint32(1); i <= 5; i++ {
		h := mainHeader(prev, chainlogic.SlotId{Epoch: 0, Slot: i}, uint64(i))
		require.NoError(t, db.PutBlock(context.Background(), chainlogic.Undo{}, true, &chainlogic.Block{Header: h}))
		prev = hasher.Hash(h)
		hashes = append(hashes, prev)
	}
	tip := hashes[len(hashes)-1]

	// Checkpoint at the 3rd main header: the walk must stop there instead
	// of continuing all the way back to genesis, leaving only one header
	// of trailing context (the checkpoint's parent) below the checkpoint.
	got, err := chainlogic.RetrieveHeadersFromTo(context.Background(), cc, []chainlogic.Hash{hashes[2]}, &tip)
	require.NoError(t, err)

	require.Len(t, got, 4)
	for _, h := range got {
		require.NotEqual(t, chainlogic.KindGenesis, h.Kind())
	}
	require.True(t, cc.Crypto.Hash(got[0]).IsEqual(hashes[1]))
	require.True(t, cc.Crypto.Hash(got[len(got)-1]).IsEqual(tip))
}

func TestGetBlocksByHeadersReturnsBoundedMonotoneSequence(t *testing.T) {
	hasher := crypto.NewHeaderHasher()
	genesis := genesisForTest()
	db := testfakes.NewMemDB(hasher, genesis)
	cc := &chainlogic.CoreCtx{DB: db, Crypto: hasher, K: 10, SlotsPerEpoch: 100}

	prev := hasher.Hash(genesis.Header)
	var hashes []chainlogic.Hash
	for i := uint32(1); i <= 4; i++ {
		h := mainHeader(prev, chainlogic.SlotId{Epoch: 0, Slot: i}, uint64(i))
		require.NoError(t, db.PutBlock(context.Background(), chainlogic.Undo{}, true, &chainlogic.Block{Header: h}))
		prev = hasher.Hash(h)
		hashes = append(hashes, prev)
	}

	older, newer := hashes[0], hashes[3]
	blocks, ok, err := chainlogic.GetBlocksByHeaders(context.Background(), cc, older, newer)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, blocks, 4)

	// Newest-first and strictly monotonically decreasing in flattened slot
	// position.
	var lastPos uint64 = ^uint64(0)
	for _, b := range blocks {
		pos := b.Header.EpochOrSlot().Flatten(cc.SlotsPerEpoch)
		require.Less(t, pos, lastPos)
		lastPos = pos
	}
	require.True(t, cc.Crypto.Hash(blocks[0].Header).IsEqual(newer))
	require.True(t, cc.Crypto.Hash(blocks[len(blocks)-1].Header).IsEqual(older))
}

func TestGetBlocksByHeadersUnknownHashReturnsNotOk(t *testing.T) {
	hasher := crypto.NewHeaderHasher()
	genesis := genesisForTest()
	db := testfakes.NewMemDB(hasher, genesis)
	cc := &chainlogic.CoreCtx{DB: db, Crypto: hasher, K: 10, SlotsPerEpoch: 100}

	genesisHash := hasher.Hash(genesis.Header)
	unknown := chainlogic.Hash{0xFF}

	_, ok, err := chainlogic.GetBlocksByHeaders(context.Background(), cc, genesisHash, unknown)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetBlocksByHeadersOrderViolationReturnsNotOk(t *testing.T) {
	hasher := crypto.NewHeaderHasher()
	genesis := genesisForTest()
	db := testfakes.NewMemDB(hasher, genesis)
	cc := &chainlogic.CoreCtx{DB: db, Crypto: hasher, K: 10, SlotsPerEpoch: 100}

	h1 := mainHeader(hasher.Hash(genesis.Header), chainlogic.SlotId{Epoch: 0, Slot: 1}, 1)
	require.NoError(t, db.PutBlock(context.Background(), chainlogic.Undo{}, true, &chainlogic.Block{Header: h1}))
	h1Hash := hasher.Hash(h1)

	// older is newer than newer: Flatten(newer) < Flatten(older) must be
	// rejected rather than silently walked.
	_, ok, err := chainlogic.GetBlocksByHeaders(context.Background(), cc, h1Hash, hasher.Hash(genesis.Header))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetBlocksByHeadersUnreachableForkReturnsNotOk(t *testing.T) {
	hasher := crypto.NewHeaderHasher()
	genesis := genesisForTest()
	db := testfakes.NewMemDB(hasher, genesis)
	cc := &chainlogic.CoreCtx{DB: db, Crypto: hasher, K: 10, SlotsPerEpoch: 100}
	genesisHash := hasher.Hash(genesis.Header)

	// Two independent single-block forks off genesis: neither is an
	// ancestor of the other, so walking parents from one never reaches
	// the other and GetBlocksByHeaders must report ok=false rather than
	// walking past genesis.
	forkA := mainHeader(genesisHash, chainlogic.SlotId{Epoch: 0, Slot: 1}, 1)
	forkB := mainHeader(genesisHash, chainlogic.SlotId{Epoch: 0, Slot: 1}, 1)
	forkB.ConsensusProof = []byte{0x01} // keep the two forks' hashes distinct
	require.NoError(t, db.PutBlock(context.Background(), chainlogic.Undo{}, false, &chainlogic.Block{Header: forkA}))
	require.NoError(t, db.PutBlock(context.Background(), chainlogic.Undo{}, false, &chainlogic.Block{Header: forkB}))

	_, ok, err := chainlogic.GetBlocksByHeaders(context.Background(), cc, hasher.Hash(forkB), hasher.Hash(forkA))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLCAWithMainChain(t *testing.T) {
	hasher := crypto.NewHeaderHasher()
	genesis := genesisForTest()
	db := testfakes.NewMemDB(hasher, genesis)
	cc := &chainlogic.CoreCtx{DB: db, Crypto: hasher, K: 10, SlotsPerEpoch: 100}
	genesisHash := hasher.Hash(genesis.Header)

	h1 := mainHeader(genesisHash, chainlogic.SlotId{Epoch: 0, Slot: 1}, 1)
	require.NoError(t, db.PutBlock(context.Background(), chainlogic.Undo{}, true, &chainlogic.Block{Header: h1}))
	h1Hash := hasher.Hash(h1)

	// A two-header fork off h1 that is not itself on the main chain: the
	// LCA search must fall through to the trailing parent hash.
	fork1 := mainHeader(h1Hash, chainlogic.SlotId{Epoch: 0, Slot: 2}, 99)
	fork2 := mainHeader(hasher.Hash(fork1), chainlogic.SlotId{Epoch: 0, Slot: 3}, 100)

	lca, ok, err := chainlogic.LCAWithMainChain(context.Background(), cc, []chainlogic.BlockHeader{fork2, fork1})
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, lca.IsEqual(h1Hash))
}
