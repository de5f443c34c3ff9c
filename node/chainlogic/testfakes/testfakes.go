// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package testfakes provides in-memory stand-ins for chainlogic's external
// collaborators: hand-written fakes rather than a mocking framework.
// cmd/posnoded's -dev single-node mode wires the same fakes the tests use.
package testfakes

import (
	"context"
	"sync"

	"github.com/jax-pos/posnode/node/chainlogic"
)

// MemDB is an in-memory chainlogic.BlockDB, used by node/chainlogic's own
// tests and, in cmd/posnoded's dev mode, in place of node/blockstore.
type MemDB struct {
	mu       sync.Mutex
	headers  map[chainlogic.Hash]chainlogic.BlockHeader
	blocks   map[chainlogic.Hash]*chainlogic.Block
	undos    map[chainlogic.Hash]chainlogic.Undo
	inMain   map[chainlogic.Hash]bool
	tip      chainlogic.Hash
	crypto   chainlogic.Crypto
}

// NewMemDB returns an empty MemDB seeded with genesis as its tip.
func NewMemDB(crypto chainlogic.Crypto, genesis *chainlogic.Block) *MemDB {
	hash := crypto.Hash(genesis.Header)
	db := &MemDB{
		headers: map[chainlogic.Hash]chainlogic.BlockHeader{hash: genesis.Header},
		blocks:  map[chainlogic.Hash]*chainlogic.Block{hash: genesis},
		undos:   map[chainlogic.Hash]chainlogic.Undo{},
		inMain:  map[chainlogic.Hash]bool{hash: true},
		tip:     hash,
		crypto:  crypto,
	}
	return db
}

// GetTip implements chainlogic.BlockDB.
func (db *MemDB) GetTip(_ context.Context) (chainlogic.Hash, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tip, nil
}

// GetTipBlock implements chainlogic.BlockDB.
func (db *MemDB) GetTipBlock(ctx context.Context) (*chainlogic.Block, error) {
	tip, _ := db.GetTip(ctx)
	block, _, err := db.GetBlock(ctx, tip)
	return block, err
}

// GetBlockHeader implements chainlogic.BlockDB.
func (db *MemDB) GetBlockHeader(_ context.Context, hash chainlogic.Hash) (chainlogic.BlockHeader, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	h, ok := db.headers[hash]
	return h, ok, nil
}

// GetBlock implements chainlogic.BlockDB.
func (db *MemDB) GetBlock(_ context.Context, hash chainlogic.Hash) (*chainlogic.Block, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	b, ok := db.blocks[hash]
	return b, ok, nil
}

// IsBlockInMainChain implements chainlogic.BlockDB.
func (db *MemDB) IsBlockInMainChain(_ context.Context, hash chainlogic.Hash) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.inMain[hash], nil
}

// SetBlockInMainChain implements chainlogic.BlockDB.
func (db *MemDB) SetBlockInMainChain(_ context.Context, hash chainlogic.Hash, inMain bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.inMain[hash] = inMain
	if !inMain && db.tip.IsEqual(hash) {
		if h, ok := db.headers[hash]; ok {
			db.tip = h.Prev()
		}
	}
	return nil
}

// PutBlock implements chainlogic.BlockDB.
func (db *MemDB) PutBlock(_ context.Context, undo chainlogic.Undo, inMain bool, block *chainlogic.Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	hash := db.crypto.Hash(block.Header)
	db.headers[hash] = block.Header
	db.blocks[hash] = block
	db.undos[hash] = undo
	db.inMain[hash] = inMain
	if inMain {
		db.tip = hash
	}
	return nil
}

// LoadHeadersUntil implements chainlogic.BlockDB.
func (db *MemDB) LoadHeadersUntil(_ context.Context, start chainlogic.Hash, pred func(chainlogic.BlockHeader, uint32) bool) ([]chainlogic.BlockHeader, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []chainlogic.BlockHeader
	cur := start
	var depth uint32
	for {
		h, ok := db.headers[cur]
		if !ok {
			break
		}
		if !pred(h, depth) {
			break
		}
		out = append(out, h)
		if h.Kind() == chainlogic.KindGenesis {
			break
		}
		cur = h.Prev()
		depth++
	}
	return out, nil
}

// Undo returns the stored undo record for hash, for use by test assertions.
func (db *MemDB) Undo(hash chainlogic.Hash) (chainlogic.Undo, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.undos[hash]
	return u, ok
}

// StubTxp is a trivial Txp fake: it accepts everything and returns an undo
// record of chainlogic.RawPayload("tx-undo:<block hash>") per block, so tests can
// assert apply/rollback round-trips without a real UTXO set.
type StubTxp struct {
	mu       sync.Mutex
	Applied  [][]chainlogic.Hash
	Rolled   [][]chainlogic.Hash
	VerifyFn func(blocks []*chainlogic.Block) error
	hashOf   func(chainlogic.BlockHeader) chainlogic.Hash
}

// NewStubTxp returns a StubTxp that hashes headers with crypto for its
// bookkeeping logs.
func NewStubTxp(crypto chainlogic.Crypto) *StubTxp {
	return &StubTxp{hashOf: crypto.Hash}
}

// TxVerifyBlocks implements chainlogic.Txp.
func (s *StubTxp) TxVerifyBlocks(_ context.Context, blocks []*chainlogic.Block) ([]chainlogic.Undo, error) {
	if s.VerifyFn != nil {
		if err := s.VerifyFn(blocks); err != nil {
			return nil, err
		}
	}
	undos := make([]chainlogic.Undo, len(blocks))
	for i, b := range blocks {
		undos[i] = chainlogic.Undo{Payload: chainlogic.RawPayload("tx-undo:" + s.hashOf(b.Header).String())}
	}
	return undos, nil
}

// TxApplyBlocks implements chainlogic.Txp.
func (s *StubTxp) TxApplyBlocks(_ context.Context, blocks []*chainlogic.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hashes := make([]chainlogic.Hash, len(blocks))
	for i, b := range blocks {
		hashes[i] = s.hashOf(b.Header)
	}
	s.Applied = append(s.Applied, hashes)
	return nil
}

// TxRollbackBlocks implements chainlogic.Txp.
func (s *StubTxp) TxRollbackBlocks(_ context.Context, pairs []chainlogic.BlockUndoPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hashes := make([]chainlogic.Hash, len(pairs))
	for i, p := range pairs {
		hashes[i] = s.hashOf(p.Block.Header)
	}
	s.Rolled = append(s.Rolled, hashes)
	return nil
}

// StubSsc is a trivial Ssc fake with the same always-succeeds posture as
// StubTxp.
type StubSsc struct {
	mu       sync.Mutex
	Applied  int
	Rolled   int
	VerifyFn func(blocks []*chainlogic.Block) error
}

// NewStubSsc returns a ready-to-use StubSsc.
func NewStubSsc() *StubSsc { return &StubSsc{} }

// SscVerifyBlocks implements chainlogic.Ssc.
func (s *StubSsc) SscVerifyBlocks(_ context.Context, blocks []*chainlogic.Block) error {
	if s.VerifyFn != nil {
		return s.VerifyFn(blocks)
	}
	return nil
}

// SscApplyBlocks implements chainlogic.Ssc.
func (s *StubSsc) SscApplyBlocks(_ context.Context, _ []*chainlogic.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Applied++
	return nil
}

// SscRollback implements chainlogic.Ssc.
func (s *StubSsc) SscRollback(_ context.Context, _ []chainlogic.BlockUndoPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rolled++
	return nil
}

// FixedSlotting is a Slotting fake whose current slot is set directly by
// tests rather than derived from wall-clock time.
type FixedSlotting struct {
	mu   sync.Mutex
	slot chainlogic.SlotId
}

// NewFixedSlotting returns a FixedSlotting starting at slot.
func NewFixedSlotting(slot chainlogic.SlotId) *FixedSlotting {
	return &FixedSlotting{slot: slot}
}

// Set updates the slot GetCurrentSlot will return.
func (f *FixedSlotting) Set(slot chainlogic.SlotId) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slot = slot
}

// GetCurrentSlot implements chainlogic.Slotting.
func (f *FixedSlotting) GetCurrentSlot(_ context.Context) (chainlogic.SlotId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slot, nil
}
