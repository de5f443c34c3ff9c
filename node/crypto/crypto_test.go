// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jax-pos/posnode/node/chainlogic"
)

func TestHashIsDeterministicAndSensitiveToFields(t *testing.T) {
	hasher := NewHeaderHasher()

	g1 := chainlogic.GenesisHeader{Epoch: 1, PrevHash: chainlogic.ZeroHash, DifficultyVal: 0}
	g2 := chainlogic.GenesisHeader{Epoch: 1, PrevHash: chainlogic.ZeroHash, DifficultyVal: 0}
	require.Equal(t, hasher.Hash(g1), hasher.Hash(g2))

	g3 := chainlogic.GenesisHeader{Epoch: 2, PrevHash: chainlogic.ZeroHash, DifficultyVal: 0}
	require.NotEqual(t, hasher.Hash(g1), hasher.Hash(g3))

	m1 := chainlogic.MainHeader{
		Slot:           chainlogic.SlotId{Epoch: 0, Slot: 1},
		PrevHash:       hasher.Hash(g1),
		DifficultyVal:  1,
		ConsensusProof: []byte("proof-a"),
	}
	m2 := m1
	m2.ConsensusProof = []byte("proof-b")
	require.NotEqual(t, hasher.Hash(m1), hasher.Hash(m2))
}
