// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package slotting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jax-pos/posnode/node/chainlogic"
)

func TestGetCurrentSlot(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewClock(genesis, 2*time.Second, 10)

	clock.now = func() time.Time { return genesis.Add(25 * time.Second) }

	slot, err := clock.GetCurrentSlot(context.Background())
	require.NoError(t, err)
	// 25s / 2s = 12 flat slots -> epoch 1, slot 2.
	require.Equal(t, chainlogic.SlotId{Epoch: 1, Slot: 2}, slot)
}

func TestGetCurrentSlotBeforeGenesis(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewClock(genesis, 2*time.Second, 10)
	clock.now = func() time.Time { return genesis.Add(-time.Hour) }

	slot, err := clock.GetCurrentSlot(context.Background())
	require.NoError(t, err)
	require.Equal(t, chainlogic.SlotId{}, slot)
}
