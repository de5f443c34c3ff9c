// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package crypto implements the concrete Crypto collaborator the core
// consumes for header hashing.
package crypto

import (
	"encoding/binary"

	"github.com/minio/sha256-simd"

	"github.com/jax-pos/posnode/node/chainlogic"
)

// HeaderHasher hashes headers with SIMD-accelerated sha256, keeping
// hashing off the standard library on this hot path.
type HeaderHasher struct{}

// NewHeaderHasher returns a ready-to-use HeaderHasher.
func NewHeaderHasher() HeaderHasher {
	return HeaderHasher{}
}

// Hash implements chainlogic.Crypto.
func (HeaderHasher) Hash(header chainlogic.BlockHeader) chainlogic.Hash {
	digest := sha256.New()

	switch header.Kind() {
	case chainlogic.KindGenesis:
		g := header.(chainlogic.GenesisHeader)
		_, _ = digest.Write([]byte{byte(chainlogic.KindGenesis)})
		writeUint64(digest, uint64(g.Epoch))
		_, _ = digest.Write(g.PrevHash[:])
		writeUint64(digest, g.DifficultyVal)
	case chainlogic.KindMain:
		m := header.(chainlogic.MainHeader)
		_, _ = digest.Write([]byte{byte(chainlogic.KindMain)})
		writeUint64(digest, uint64(m.Slot.Epoch))
		writeUint64(digest, uint64(m.Slot.Slot))
		_, _ = digest.Write(m.PrevHash[:])
		writeUint64(digest, m.DifficultyVal)
		_, _ = digest.Write(m.ConsensusProof)
	}

	sum := digest.Sum(nil)
	var h chainlogic.Hash
	copy(h[:], sum)
	log.Trace().Str("hash", h.String()).Msg("hashed header")
	return h
}

func writeUint64(w interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = w.Write(buf[:])
}
