// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockstore implements a concrete, runnable chainlogic.BlockDB
// backed directly by github.com/btcsuite/goleveldb. It also implements
// chainlogic.IntentLogger: since no single transaction spans the block
// store, Txp and Ssc, apply/rollback atomicity instead comes from a
// write-ahead intent record that crash recovery can replay.
package blockstore

import (
	"context"
	"encoding/binary"

	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jax-pos/posnode/corelog"
	"github.com/jax-pos/posnode/node/chainlogic"
)

var log = corelog.Disabled

// DisableLog disables all package log output.
func DisableLog() { log = corelog.Disabled }

// UseLogger sets the logger used by this package.
func UseLogger(logger zerolog.Logger) { log = logger }

const (
	prefixHeader   = 'h'
	prefixBlock    = 'b'
	prefixUndo     = 'u'
	prefixMainFlag = 'm'
	keyTip         = "t"
	keyIntent      = "i"
)

// Store is a concrete chainlogic.BlockDB backed by one goleveldb handle.
type Store struct {
	db     *leveldb.DB
	crypto chainlogic.Crypto
}

// Open opens (creating if necessary) a Store at path.
func Open(path string, crypto chainlogic.Crypto) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "blockstore: failed to open %s", path)
	}
	return &Store{db: db, crypto: crypto}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitGenesis seeds an empty store with the genesis block as the initial
// tip. Calling it on a non-empty store is a bug.
func (s *Store) InitGenesis(_ context.Context, genesis *chainlogic.Block) error {
	hash := s.crypto.Hash(genesis.Header)
	batch := new(leveldb.Batch)
	if err := putHeader(batch, hash, genesis.Header); err != nil {
		return err
	}
	putBlockRecord(batch, hash, genesis)
	batch.Put(mainFlagKey(hash), []byte{1})
	batch.Put([]byte(keyTip), hash[:])
	return s.db.Write(batch, nil)
}

// Initialized reports whether InitGenesis has ever run against this store.
func (s *Store) Initialized(_ context.Context) (bool, error) {
	_, err := s.db.Get([]byte(keyTip), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "blockstore: Initialized")
	}
	return true, nil
}

// GetTip implements chainlogic.BlockDB.
func (s *Store) GetTip(_ context.Context) (chainlogic.Hash, error) {
	raw, err := s.db.Get([]byte(keyTip), nil)
	if err != nil {
		return chainlogic.Hash{}, errors.Wrap(err, "blockstore: GetTip")
	}
	var h chainlogic.Hash
	copy(h[:], raw)
	return h, nil
}

// GetTipBlock implements chainlogic.BlockDB.
func (s *Store) GetTipBlock(ctx context.Context) (*chainlogic.Block, error) {
	tip, err := s.GetTip(ctx)
	if err != nil {
		return nil, err
	}
	block, ok, err := s.GetBlock(ctx, tip)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("blockstore: tip %s has no stored block", tip)
	}
	return block, nil
}

// GetBlockHeader implements chainlogic.BlockDB.
func (s *Store) GetBlockHeader(_ context.Context, hash chainlogic.Hash) (chainlogic.BlockHeader, bool, error) {
	raw, err := s.db.Get(headerKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "blockstore: GetBlockHeader")
	}
	header, err := decodeHeader(raw)
	if err != nil {
		return nil, false, err
	}
	return header, true, nil
}

// GetBlock implements chainlogic.BlockDB.
func (s *Store) GetBlock(_ context.Context, hash chainlogic.Hash) (*chainlogic.Block, bool, error) {
	raw, err := s.db.Get(blockKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "blockstore: GetBlock")
	}
	block, err := decodeBlock(raw)
	if err != nil {
		return nil, false, err
	}
	return block, true, nil
}

// IsBlockInMainChain implements chainlogic.BlockDB.
func (s *Store) IsBlockInMainChain(_ context.Context, hash chainlogic.Hash) (bool, error) {
	raw, err := s.db.Get(mainFlagKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "blockstore: IsBlockInMainChain")
	}
	return len(raw) > 0 && raw[0] == 1, nil
}

// SetBlockInMainChain implements chainlogic.BlockDB. When a block that is
// currently the tip is flagged out of the main chain (the rollback case),
// the persisted tip moves to that block's parent; BlockDB's abstract
// interface has no explicit setTip operation, so the store derives the new
// tip from the ordered sequence of flag flips rollbackBlocks performs
// (newest-first, so the current tip is always flipped first).
func (s *Store) SetBlockInMainChain(ctx context.Context, hash chainlogic.Hash, inMain bool) error {
	batch := new(leveldb.Batch)
	flag := byte(0)
	if inMain {
		flag = 1
	}
	batch.Put(mainFlagKey(hash), []byte{flag})

	if !inMain {
		tip, err := s.GetTip(ctx)
		if err != nil {
			return err
		}
		if tip.IsEqual(hash) {
			header, ok, err := s.GetBlockHeader(ctx, hash)
			if err != nil {
				return err
			}
			if ok {
				parent := header.Prev()
				batch.Put([]byte(keyTip), parent[:])
			}
		}
	}
	return s.db.Write(batch, nil)
}

// PutBlock implements chainlogic.BlockDB. apply's step 1 calls this
// oldest-to-newest with inMain=true for each pair, so letting every
// inMain=true call unconditionally move the persisted tip to the block
// just written naturally leaves the tip at the newest block once the
// sequence completes.
func (s *Store) PutBlock(_ context.Context, undo chainlogic.Undo, inMain bool, block *chainlogic.Block) error {
	hash := s.crypto.Hash(block.Header)
	batch := new(leveldb.Batch)
	if err := putHeader(batch, hash, block.Header); err != nil {
		return err
	}
	putBlockRecord(batch, hash, block)
	putUndoRecord(batch, hash, undo)

	flag := byte(0)
	if inMain {
		flag = 1
		batch.Put([]byte(keyTip), hash[:])
	}
	batch.Put(mainFlagKey(hash), []byte{flag})

	return s.db.Write(batch, nil)
}

// LoadHeadersUntil implements chainlogic.BlockDB: it walks parents from
// start toward genesis, collecting headers newest-first while
// pred(header, depth) holds (depth 0 is start itself), stopping at the
// first header for which pred returns false or at genesis.
func (s *Store) LoadHeadersUntil(ctx context.Context, start chainlogic.Hash, pred func(chainlogic.BlockHeader, uint32) bool) ([]chainlogic.BlockHeader, error) {
	var out []chainlogic.BlockHeader
	cur := start
	var depth uint32
	for {
		header, ok, err := s.GetBlockHeader(ctx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if !pred(header, depth) {
			break
		}
		out = append(out, header)
		if header.Kind() == chainlogic.KindGenesis {
			break
		}
		cur = header.Prev()
		depth++
	}
	return out, nil
}

func headerKey(hash chainlogic.Hash) []byte   { return prefixedKey(prefixHeader, hash) }
func blockKey(hash chainlogic.Hash) []byte    { return prefixedKey(prefixBlock, hash) }
func undoKey(hash chainlogic.Hash) []byte     { return prefixedKey(prefixUndo, hash) }
func mainFlagKey(hash chainlogic.Hash) []byte { return prefixedKey(prefixMainFlag, hash) }

func prefixedKey(prefix byte, hash chainlogic.Hash) []byte {
	key := make([]byte, 1+chainlogic.HashSize)
	key[0] = prefix
	copy(key[1:], hash[:])
	return key
}

func putHeader(batch *leveldb.Batch, hash chainlogic.Hash, header chainlogic.BlockHeader) error {
	raw, err := encodeHeader(header)
	if err != nil {
		return err
	}
	batch.Put(headerKey(hash), raw)
	return nil
}

func putBlockRecord(batch *leveldb.Batch, hash chainlogic.Hash, block *chainlogic.Block) {
	batch.Put(blockKey(hash), encodeBlock(block))
}

func putUndoRecord(batch *leveldb.Batch, hash chainlogic.Hash, undo chainlogic.Undo) {
	batch.Put(undoKey(hash), encodeUndo(undo))
}

// encodeHeader/decodeHeader implement the tagged-union wire format for
// BlockHeader: one kind byte followed by the variant's fixed fields.
func encodeHeader(header chainlogic.BlockHeader) ([]byte, error) {
	switch header.Kind() {
	case chainlogic.KindGenesis:
		g := header.(chainlogic.GenesisHeader)
		buf := make([]byte, 1+4+chainlogic.HashSize+8)
		buf[0] = byte(chainlogic.KindGenesis)
		binary.LittleEndian.PutUint32(buf[1:5], uint32(g.Epoch))
		copy(buf[5:5+chainlogic.HashSize], g.PrevHash[:])
		binary.LittleEndian.PutUint64(buf[5+chainlogic.HashSize:], g.DifficultyVal)
		return buf, nil
	case chainlogic.KindMain:
		m := header.(chainlogic.MainHeader)
		buf := make([]byte, 1+4+4+chainlogic.HashSize+8+4+len(m.ConsensusProof))
		off := 0
		buf[off] = byte(chainlogic.KindMain)
		off++
		binary.LittleEndian.PutUint32(buf[off:], uint32(m.Slot.Epoch))
		off += 4
		binary.LittleEndian.PutUint32(buf[off:], m.Slot.Slot)
		off += 4
		copy(buf[off:off+chainlogic.HashSize], m.PrevHash[:])
		off += chainlogic.HashSize
		binary.LittleEndian.PutUint64(buf[off:], m.DifficultyVal)
		off += 8
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.ConsensusProof)))
		off += 4
		copy(buf[off:], m.ConsensusProof)
		return buf, nil
	default:
		return nil, errors.Errorf("blockstore: unknown header kind %d", header.Kind())
	}
}

func decodeHeader(raw []byte) (chainlogic.BlockHeader, error) {
	if len(raw) < 1 {
		return nil, errors.New("blockstore: truncated header record")
	}
	switch chainlogic.HeaderKind(raw[0]) {
	case chainlogic.KindGenesis:
		if len(raw) < 1+4+chainlogic.HashSize+8 {
			return nil, errors.New("blockstore: truncated genesis header record")
		}
		var g chainlogic.GenesisHeader
		g.Epoch = chainlogic.EpochIndex(binary.LittleEndian.Uint32(raw[1:5]))
		copy(g.PrevHash[:], raw[5:5+chainlogic.HashSize])
		g.DifficultyVal = binary.LittleEndian.Uint64(raw[5+chainlogic.HashSize:])
		return g, nil
	case chainlogic.KindMain:
		off := 1
		if len(raw) < off+4+4+chainlogic.HashSize+8+4 {
			return nil, errors.New("blockstore: truncated main header record")
		}
		var m chainlogic.MainHeader
		m.Slot.Epoch = chainlogic.EpochIndex(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
		m.Slot.Slot = binary.LittleEndian.Uint32(raw[off:])
		off += 4
		copy(m.PrevHash[:], raw[off:off+chainlogic.HashSize])
		off += chainlogic.HashSize
		m.DifficultyVal = binary.LittleEndian.Uint64(raw[off:])
		off += 8
		proofLen := int(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
		if len(raw) < off+proofLen {
			return nil, errors.New("blockstore: truncated consensus proof")
		}
		m.ConsensusProof = append([]byte(nil), raw[off:off+proofLen]...)
		return m, nil
	default:
		return nil, errors.Errorf("blockstore: unknown header kind byte %d", raw[0])
	}
}

// encodeBlock/decodeBlock store the header plus the opaque tx/ssc
// payloads. The payloads are carried as raw bytes under the
// chainlogic.RawPayload convention used by this repository's reference
// collaborators (node/chainlogic/testfakes); a deployment with a real Txp
// and Ssc would supply its own richer codec.
func encodeBlock(block *chainlogic.Block) []byte {
	headerBytes, err := encodeHeader(block.Header)
	if err != nil {
		// Header was already validated before being stored; a failure
		// here means the in-memory header was mutated after hashing.
		invariantViolation("blockstore: failed to re-encode a previously hashed header: %v", err)
	}
	txBytes, _ := block.Txs.(chainlogic.RawPayload)
	sscBytes, _ := block.Ssc.(chainlogic.RawPayload)

	buf := make([]byte, 0, 4+len(headerBytes)+4+len(txBytes)+4+len(sscBytes))
	buf = appendLenPrefixed(buf, headerBytes)
	buf = appendLenPrefixed(buf, txBytes)
	buf = appendLenPrefixed(buf, sscBytes)
	return buf
}

func decodeBlock(raw []byte) (*chainlogic.Block, error) {
	headerBytes, rest, err := readLenPrefixed(raw)
	if err != nil {
		return nil, err
	}
	txBytes, rest, err := readLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	sscBytes, _, err := readLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	header, err := decodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	return &chainlogic.Block{
		Header: header,
		Txs:    chainlogic.RawPayload(txBytes),
		Ssc:    chainlogic.RawPayload(sscBytes),
	}, nil
}

func encodeUndo(undo chainlogic.Undo) []byte {
	raw, _ := undo.Payload.(chainlogic.RawPayload)
	return append([]byte(nil), raw...)
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

func readLenPrefixed(buf []byte) (data, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, errors.New("blockstore: truncated length-prefixed field")
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if len(buf) < 4+n {
		return nil, nil, errors.New("blockstore: truncated length-prefixed field body")
	}
	return buf[4 : 4+n], buf[4+n:], nil
}

func invariantViolation(format string, args ...interface{}) {
	panic(errors.Errorf(format, args...))
}

// intentRecord is the write-ahead record BeginIntent persists before
// apply/rollback touches the store, and CommitIntent clears once the whole
// multi-collaborator sequence (store + Txp + Ssc) has completed. Recover
// replays or undoes one left behind by a crash between the two calls.
type intentRecord struct {
	Op      string
	Blocks  []chainlogic.Hash
	NewTip  chainlogic.Hash
}

// BeginIntent implements chainlogic.IntentLogger.
func (s *Store) BeginIntent(_ context.Context, op string, blocks []chainlogic.Hash, newTip chainlogic.Hash) error {
	raw := encodeIntent(intentRecord{Op: op, Blocks: blocks, NewTip: newTip})
	if err := s.db.Put([]byte(keyIntent), raw, nil); err != nil {
		return errors.Wrap(err, "blockstore: BeginIntent")
	}
	return nil
}

// CommitIntent implements chainlogic.IntentLogger.
func (s *Store) CommitIntent(_ context.Context) error {
	if err := s.db.Delete([]byte(keyIntent), nil); err != nil {
		return errors.Wrap(err, "blockstore: CommitIntent")
	}
	return nil
}

// PendingIntent reports whether an intent record was left behind by a crash
// between BeginIntent and CommitIntent.
func (s *Store) PendingIntent(_ context.Context) (intentRecord, bool, error) {
	raw, err := s.db.Get([]byte(keyIntent), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return intentRecord{}, false, nil
	}
	if err != nil {
		return intentRecord{}, false, errors.Wrap(err, "blockstore: PendingIntent")
	}
	rec, err := decodeIntent(raw)
	if err != nil {
		return intentRecord{}, false, err
	}
	return rec, true, nil
}

// Recover finishes or unwinds a pending intent record left behind by a
// crash between BeginIntent and CommitIntent. Both sides of an "apply"
// intent are idempotent (PutBlock with inMain=true, then the tip pointer)
// so recovering one simply re-derives the persisted state the interrupted
// ApplyBlocks/RollbackBlocks call was working toward directly from the
// intent record, without re-running Txp/Ssc: no single transaction spans
// the block store and those two collaborators, so they are expected to be
// similarly idempotent or to carry their own recovery log.
func (s *Store) Recover(ctx context.Context) error {
	rec, pending, err := s.PendingIntent(ctx)
	if err != nil {
		return err
	}
	if !pending {
		return nil
	}

	log.Warn().Str("op", rec.Op).Int("blocks", len(rec.Blocks)).Msg("blockstore: replaying crashed intent record")

	batch := new(leveldb.Batch)

	switch rec.Op {
	case "apply":
		// BeginIntent runs before the PutBlock loop, so a crash can leave
		// some of rec.Blocks (oldest-first, matching ApplyBlocks' pair
		// order) never written at all. Walk it in order and stop at the
		// first hash with no stored header: that and everything after it
		// never made it past PutBlock, so there is nothing to flag and the
		// tip can only safely advance as far as the last block recovery
		// actually finds.
		var lastRecovered chainlogic.Hash
		recoveredAny := false
		for _, hash := range rec.Blocks {
			if _, ok, err := s.GetBlockHeader(ctx, hash); err != nil {
				return err
			} else if !ok {
				log.Warn().Str("hash", hash.String()).
					Msg("blockstore: intent recovery stopped at a block never persisted before the crash")
				break
			}
			if err := s.SetBlockInMainChain(ctx, hash, true); err != nil {
				return err
			}
			lastRecovered, recoveredAny = hash, true
		}
		if recoveredAny {
			batch.Put([]byte(keyTip), lastRecovered[:])
		}
	case "rollback":
		// Every hash here was already persisted by a prior apply before
		// rollback started, so unlike the apply case there is no partial-
		// write gap to guard against.
		for i := len(rec.Blocks) - 1; i >= 0; i-- {
			if err := s.SetBlockInMainChain(ctx, rec.Blocks[i], false); err != nil {
				return err
			}
		}
		batch.Put([]byte(keyTip), rec.NewTip[:])
	default:
		return errors.Errorf("blockstore: unknown intent op %q in recovery record", rec.Op)
	}

	batch.Delete([]byte(keyIntent))
	return s.db.Write(batch, nil)
}

func encodeIntent(rec intentRecord) []byte {
	buf := make([]byte, 0, 64+len(rec.Blocks)*chainlogic.HashSize)
	buf = appendLenPrefixed(buf, []byte(rec.Op))
	buf = append(buf, rec.NewTip[:]...)
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(rec.Blocks)))
	buf = append(buf, countBuf[:]...)
	for _, h := range rec.Blocks {
		buf = append(buf, h[:]...)
	}
	return buf
}

func decodeIntent(raw []byte) (intentRecord, error) {
	opBytes, rest, err := readLenPrefixed(raw)
	if err != nil {
		return intentRecord{}, err
	}
	if len(rest) < chainlogic.HashSize+4 {
		return intentRecord{}, errors.New("blockstore: truncated intent record")
	}
	var rec intentRecord
	rec.Op = string(opBytes)
	copy(rec.NewTip[:], rest[:chainlogic.HashSize])
	rest = rest[chainlogic.HashSize:]
	count := int(binary.LittleEndian.Uint32(rest))
	rest = rest[4:]
	if len(rest) < count*chainlogic.HashSize {
		return intentRecord{}, errors.New("blockstore: truncated intent block list")
	}
	rec.Blocks = make([]chainlogic.Hash, count)
	for i := range rec.Blocks {
		copy(rec.Blocks[i][:], rest[i*chainlogic.HashSize:(i+1)*chainlogic.HashSize])
	}
	return rec, nil
}
