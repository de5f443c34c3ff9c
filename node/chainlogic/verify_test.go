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
)

func TestVerifyBlocksSuccess(t *testing.T) {
	genesis := genesisForTest()
	cc, _ := newTestCtx(t, chainlogic.SlotId{Epoch: 0, Slot: 2}, genesis)

	blocks := buildChain(t, cc, genesis, 2)
	undos, err := chainlogic.VerifyBlocks(context.Background(), cc, blocks)
	require.NoError(t, err)
	require.Len(t, undos, 2)
}

func TestVerifyBlocksShortCircuitsOnHeaderFailure(t *testing.T) {
	genesis := genesisForTest()
	cc, _ := newTestCtx(t, chainlogic.SlotId{Epoch: 0, Slot: 2}, genesis)

	// A two-header sequence whose second header has the wrong difficulty:
	// stubVerifier.VerifyHeaders rejects the pair before Ssc/Txp ever run.
	genesisHash := cc.Crypto.Hash(genesis.Header)
	h1 := mainHeader(genesisHash, chainlogic.SlotId{Epoch: 0, Slot: 1}, 1)
	h2 := mainHeader(cc.Crypto.Hash(h1), chainlogic.SlotId{Epoch: 0, Slot: 2}, 99)

	sscCalled, txpCalled := false, false
	cc.Ssc.(*testfakes.StubSsc).VerifyFn = func(_ []*chainlogic.Block) error { sscCalled = true; return nil }
	cc.Txp.(*testfakes.StubTxp).VerifyFn = func(_ []*chainlogic.Block) error { txpCalled = true; return nil }

	_, err := chainlogic.VerifyBlocks(context.Background(), cc, []*chainlogic.Block{{Header: h1}, {Header: h2}})
	require.Error(t, err)
	require.False(t, sscCalled, "Ssc must not run once structural verification has already rejected the sequence")
	require.False(t, txpCalled, "Txp must not run once structural verification has already rejected the sequence")
}

func TestVerifyBlocksShortCircuitsOnSscFailure(t *testing.T) {
	genesis := genesisForTest()
	cc, _ := newTestCtx(t, chainlogic.SlotId{Epoch: 0, Slot: 1}, genesis)

	ssc := cc.Ssc.(*testfakes.StubSsc)
	ssc.VerifyFn = func(_ []*chainlogic.Block) error { return chainlogic.NewJoinedError("ssc rejects block") }
	txp := cc.Txp.(*testfakes.StubTxp)
	txpCalled := false
	txp.VerifyFn = func(_ []*chainlogic.Block) error { txpCalled = true; return nil }

	blocks := buildChain(t, cc, genesis, 1)
	_, err := chainlogic.VerifyBlocks(context.Background(), cc, blocks)
	require.Error(t, err)
	require.False(t, txpCalled, "Txp must not run once Ssc has already rejected the sequence")
}

func TestVerifyBlocksPropagatesTxpFailure(t *testing.T) {
	genesis := genesisForTest()
	cc, _ := newTestCtx(t, chainlogic.SlotId{Epoch: 0, Slot: 1}, genesis)

	txp := cc.Txp.(*testfakes.StubTxp)
	txp.VerifyFn = func(_ []*chainlogic.Block) error { return chainlogic.NewJoinedError("tx rejects block") }

	blocks := buildChain(t, cc, genesis, 1)
	_, err := chainlogic.VerifyBlocks(context.Background(), cc, blocks)
	require.Error(t, err)
}
