// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainlogic

import "context"

// BlockDB is the persistent block store consumed by the core. It is an
// external collaborator defined purely by this interface; its on-disk
// format is its own concern. node/blockstore ships one concrete
// implementation.
type BlockDB interface {
	// GetTip returns the hash of the newest block on the local main chain.
	GetTip(ctx context.Context) (Hash, error)
	// GetTipBlock returns the full block at the current tip.
	GetTipBlock(ctx context.Context) (*Block, error)
	// GetBlockHeader returns the header for hash, or ok=false if unknown.
	GetBlockHeader(ctx context.Context, hash Hash) (header BlockHeader, ok bool, err error)
	// GetBlock returns the full block for hash, or ok=false if unknown.
	GetBlock(ctx context.Context, hash Hash) (block *Block, ok bool, err error)
	// IsBlockInMainChain reports whether hash is on the local main chain.
	IsBlockInMainChain(ctx context.Context, hash Hash) (bool, error)
	// SetBlockInMainChain flips the main-chain flag for hash.
	SetBlockInMainChain(ctx context.Context, hash Hash, inMain bool) error
	// PutBlock persists block together with its undo record and initial
	// main-chain flag.
	PutBlock(ctx context.Context, undo Undo, inMain bool, block *Block) error
	// LoadHeadersUntil walks parents from start toward genesis, accumulating
	// headers newest-first while pred(header, depth) returns true; depth 0
	// is start itself. It stops when pred returns false, when genesis is
	// reached, or when a parent is unknown; the header that made pred
	// return false is not included.
	LoadHeadersUntil(ctx context.Context, start Hash, pred func(header BlockHeader, depth uint32) bool) ([]BlockHeader, error)
}

// Slotting is the wall-clock slotting service consumed by the core.
type Slotting interface {
	// GetCurrentSlot returns the slot the wall clock currently falls in.
	GetCurrentSlot(ctx context.Context) (SlotId, error)
}

// Txp is the transaction-validation subsystem consumed by the core.
type Txp interface {
	// TxVerifyBlocks validates the transactions of blocks against the
	// current UTXO state and, on success, produces one Undo per block.
	TxVerifyBlocks(ctx context.Context, blocks []*Block) ([]Undo, error)
	// TxApplyBlocks folds the transactions of blocks forward.
	TxApplyBlocks(ctx context.Context, blocks []*Block) error
	// TxRollbackBlocks reverts the transactions of blocks using their undos.
	TxRollbackBlocks(ctx context.Context, pairs []BlockUndoPair) error
}

// Ssc is the shared-secret validation subsystem consumed by the core.
type Ssc interface {
	// SscVerifyBlocks checks that the secret-sharing data of blocks is
	// internally consistent across the range.
	SscVerifyBlocks(ctx context.Context, blocks []*Block) error
	// SscApplyBlocks folds the secret-sharing data of blocks forward.
	SscApplyBlocks(ctx context.Context, blocks []*Block) error
	// SscRollback reverts the secret-sharing data of blocks.
	SscRollback(ctx context.Context, pairs []BlockUndoPair) error
}

// Crypto is the hashing collaborator consumed by the core.
type Crypto interface {
	// Hash returns the canonical digest of a header.
	Hash(header BlockHeader) Hash
}

// VerifyParams carries the context a structural header check needs: the
// parent header being checked against and whether consensus-proof checking
// should be enforced.
type VerifyParams struct {
	Parent           BlockHeader
	RequireConsensus bool
}

// ChainVerifyParams carries the context a structural chain check needs.
type ChainVerifyParams struct {
	RequireConsensus bool
	// CurrentSlot, when non-nil, is the slot the chain's youngest header
	// must not exceed, and the slot whose tip the oldest header's parent
	// must equal.
	CurrentSlot *SlotId
}

// HeaderVerify is the structural-verification collaborator consumed by the
// core: difficulty growth, parent linkage, and (when enabled) the
// consensus-proof check.
type HeaderVerify interface {
	// VerifyHeader checks a single header against params.
	VerifyHeader(ctx context.Context, params VerifyParams, header BlockHeader) error
	// VerifyHeaders checks an oldest-first chain of headers for internal
	// consistency: linkage, difficulty growth and, if requireConsensus,
	// the consensus proof of every header.
	VerifyHeaders(ctx context.Context, requireConsensus bool, headers []BlockHeader) error
	// VerifyBlockChain checks an oldest-first sequence of blocks the same
	// way VerifyHeaders does, plus that the oldest block's parent matches
	// the tip that was current as of params.CurrentSlot.
	VerifyBlockChain(ctx context.Context, params ChainVerifyParams, tip BlockHeader, blocks []*Block) error
}

// CoreCtx is the explicit context struct threaded as the first argument to
// every core entry point, carrying handles to all external collaborators
// plus the two protocol parameters the core needs, in place of any ambient
// global state.
type CoreCtx struct {
	DB           BlockDB
	Slot         Slotting
	Txp          Txp
	Ssc          Ssc
	Crypto       Crypto
	HeaderVerify HeaderVerify
	Sem          *TipSemaphore

	// K is the security parameter: the maximum fork depth, in slots, the
	// node will accept.
	K uint32
	// SlotsPerEpoch is the protocol-fixed number of slots per epoch, used
	// to flatten SlotId/EpochOrSlot into a total order.
	SlotsPerEpoch uint64
}
