// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package slotting implements a concrete wall-clock Slotting collaborator.
package slotting

import (
	"context"
	"time"

	"github.com/jax-pos/posnode/node/chainlogic"
)

// Clock is the wall-clock Slotting service: it turns the current time into
// a SlotId given a genesis time, a fixed slot duration and slotsPerEpoch.
type Clock struct {
	genesis       time.Time
	slotDuration  time.Duration
	slotsPerEpoch uint64
	now           func() time.Time
}

// NewClock returns a Clock slotting service rooted at genesis.
func NewClock(genesis time.Time, slotDuration time.Duration, slotsPerEpoch uint64) *Clock {
	return &Clock{
		genesis:       genesis,
		slotDuration:  slotDuration,
		slotsPerEpoch: slotsPerEpoch,
		now:           time.Now,
	}
}

// GetCurrentSlot implements chainlogic.Slotting.
func (c *Clock) GetCurrentSlot(_ context.Context) (chainlogic.SlotId, error) {
	elapsed := c.now().Sub(c.genesis)
	if elapsed < 0 {
		log.Trace().Msg("current time is before genesis, clamping to slot zero")
		return chainlogic.SlotId{}, nil
	}
	flat := uint64(elapsed / c.slotDuration)
	slot := chainlogic.SlotId{
		Epoch: chainlogic.EpochIndex(flat / c.slotsPerEpoch),
		Slot:  uint32(flat % c.slotsPerEpoch),
	}
	log.Trace().Uint32("epoch", uint32(slot.Epoch)).Uint32("slot", slot.Slot).Msg("computed current slot")
	return slot, nil
}
