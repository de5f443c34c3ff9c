// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainlogic implements the block-chain logic core: header
// classification, ancestor search, range retrieval, block verification and
// atomic apply/rollback of block sequences against the local tip.
package chainlogic

import (
	"encoding/hex"
)

// HashSize is the number of bytes in a Hash.
const HashSize = 32

// Hash is an opaque fixed-width digest produced deterministically from a
// header or a block.
type Hash [HashSize]byte

// ZeroHash is the all-zero Hash, used as the parent of a genesis header.
var ZeroHash Hash

// String returns the hex encoding of the hash, most-significant byte last
// reversed for readability, matching the byte-reversed display convention
// used for chainhash.Hash elsewhere in the ecosystem.
func (h Hash) String() string {
	var reversed Hash
	for i, b := range h[:HashSize/2] {
		reversed[i], reversed[HashSize-1-i] = h[HashSize-1-i], b
	}
	return hex.EncodeToString(reversed[:])
}

// IsEqual reports whether h and other represent the same hash.
func (h Hash) IsEqual(other Hash) bool {
	return h == other
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// EpochIndex is a monotonically increasing integer identifying an epoch.
type EpochIndex uint32

// SlotId is a protocol time unit: a pair (epoch, slot-within-epoch).
type SlotId struct {
	Epoch EpochIndex
	Slot  uint32
}

// Flatten returns the total order position of the slot, given the protocol's
// fixed slotsPerEpoch parameter.
func (s SlotId) Flatten(slotsPerEpoch uint64) uint64 {
	return uint64(s.Epoch)*slotsPerEpoch + uint64(s.Slot)
}

// Less reports whether s occurs strictly before other.
func (s SlotId) Less(other SlotId, slotsPerEpoch uint64) bool {
	return s.Flatten(slotsPerEpoch) < other.Flatten(slotsPerEpoch)
}

// EpochOrSlot is a tagged union of an epoch boundary (the genesis of an
// epoch) and a regular slot. It is totally ordered and compatible with
// Flatten: the boundary of epoch e sorts as slot 0 of epoch e.
type EpochOrSlot struct {
	boundary bool
	epoch    EpochIndex
	slot     SlotId
}

// EpochBoundary constructs the EpochOrSlot denoting the genesis of e.
func EpochBoundary(e EpochIndex) EpochOrSlot {
	return EpochOrSlot{boundary: true, epoch: e}
}

// AtSlot constructs the EpochOrSlot denoting a regular slot.
func AtSlot(s SlotId) EpochOrSlot {
	return EpochOrSlot{slot: s}
}

// IsBoundary reports whether this value denotes an epoch boundary.
func (e EpochOrSlot) IsBoundary() bool {
	return e.boundary
}

// Flatten returns the total order position, compatible with SlotId.Flatten.
func (e EpochOrSlot) Flatten(slotsPerEpoch uint64) uint64 {
	if e.boundary {
		return uint64(e.epoch) * slotsPerEpoch
	}
	return e.slot.Flatten(slotsPerEpoch)
}

// Equal reports whether e and other denote the same position, regardless of
// hash — used to prune siblings at the same height during range loads.
func (e EpochOrSlot) Equal(other EpochOrSlot, slotsPerEpoch uint64) bool {
	return e.Flatten(slotsPerEpoch) == other.Flatten(slotsPerEpoch)
}

// Less reports whether e occurs strictly before other.
func (e EpochOrSlot) Less(other EpochOrSlot, slotsPerEpoch uint64) bool {
	return e.Flatten(slotsPerEpoch) < other.Flatten(slotsPerEpoch)
}

// HeaderKind distinguishes the two variants of the BlockHeader tagged union.
type HeaderKind int

const (
	// KindGenesis marks the genesis header of an epoch.
	KindGenesis HeaderKind = iota
	// KindMain marks a regular, slot-carrying header.
	KindMain
)

// BlockHeader is the tagged union of GenesisHeader and MainHeader described
// in the data model: genesis headers mark the start of an epoch, main
// headers carry a slot and a consensus proof.
type BlockHeader interface {
	// Kind reports which variant of the union this header is.
	Kind() HeaderKind
	// Prev returns the hash of the parent block.
	Prev() Hash
	// Difficulty returns the header's cumulative difficulty.
	Difficulty() uint64
	// EpochOrSlot returns the header's position in the total order.
	EpochOrSlot() EpochOrSlot
}

// GenesisHeader is the header of the first block of an epoch.
type GenesisHeader struct {
	Epoch         EpochIndex
	PrevHash      Hash
	DifficultyVal uint64
}

// Kind implements BlockHeader.
func (h GenesisHeader) Kind() HeaderKind { return KindGenesis }

// Prev implements BlockHeader.
func (h GenesisHeader) Prev() Hash { return h.PrevHash }

// Difficulty implements BlockHeader.
func (h GenesisHeader) Difficulty() uint64 { return h.DifficultyVal }

// EpochOrSlot implements BlockHeader.
func (h GenesisHeader) EpochOrSlot() EpochOrSlot { return EpochBoundary(h.Epoch) }

// MainHeader is a regular, slot-carrying header.
type MainHeader struct {
	Slot           SlotId
	PrevHash       Hash
	DifficultyVal  uint64
	ConsensusProof []byte
}

// Kind implements BlockHeader.
func (h MainHeader) Kind() HeaderKind { return KindMain }

// Prev implements BlockHeader.
func (h MainHeader) Prev() Hash { return h.PrevHash }

// Difficulty implements BlockHeader.
func (h MainHeader) Difficulty() uint64 { return h.DifficultyVal }

// EpochOrSlot implements BlockHeader.
func (h MainHeader) EpochOrSlot() EpochOrSlot { return AtSlot(h.Slot) }

// DifficultyDelta returns the protocol-fixed difficulty increment for a
// header of this kind: 0 for genesis headers, 1 for main headers. The
// invariant difficulty(h) = difficulty(parent(h)) + Δ(h) is checked by
// HeaderVerify against this constant.
func DifficultyDelta(kind HeaderKind) uint64 {
	if kind == KindGenesis {
		return 0
	}
	return 1
}

// TxPayload is the opaque transaction payload of a Block. The core never
// inspects it directly; it is only ever handed to the Txp collaborator.
type TxPayload interface{}

// SscPayload is the opaque shared-secret payload of a Block. The core never
// inspects it directly; it is only ever handed to the Ssc collaborator.
type SscPayload interface{}

// Block is a header plus its opaque payload.
type Block struct {
	Header BlockHeader
	Txs    TxPayload
	Ssc    SscPayload
}

// RawPayload is the concrete TxPayload/SscPayload/undo-payload type used by
// this repository's reference collaborators (node/blockstore,
// node/chainlogic/testfakes): an opaque byte string the core never looks
// inside of. A deployment with a real Txp and Ssc subsystem would carry its
// own richer payload type instead; the core itself never assumes RawPayload.
type RawPayload []byte

// Undo is an opaque reversal record produced by VerifyBlocks and consumed by
// RollbackBlocks, paired 1:1 with each block in an apply/rollback sequence.
type Undo struct {
	Payload interface{}
}

// BlockUndoPair pairs a block with its undo record for ApplyBlocks and
// RollbackBlocks.
type BlockUndoPair struct {
	Block *Block
	Undo  Undo
}

// Tip is the hash of the newest block on the local main chain.
type Tip = Hash
