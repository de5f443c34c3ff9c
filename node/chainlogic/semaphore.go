// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainlogic

import "context"

// TipSemaphore is a single-slot mutual-exclusion primitive holding the
// current tip hash. It is modeled as a single-capacity channel: Take
// empties the slot, Put fills it. Only code running inside
// WithBlkSemaphore may change the tip.
type TipSemaphore struct {
	slot chan Hash
}

// NewTipSemaphore returns a TipSemaphore whose slot starts full with
// initial.
func NewTipSemaphore(initial Hash) *TipSemaphore {
	s := &TipSemaphore{slot: make(chan Hash, 1)}
	s.slot <- initial
	return s
}

// Take blocks until the slot is full, then removes and returns its value.
// It is a suspension point: ctx cancellation unblocks it without taking
// anything.
func (s *TipSemaphore) Take(ctx context.Context) (Hash, error) {
	select {
	case h := <-s.slot:
		return h, nil
	case <-ctx.Done():
		return Hash{}, ctx.Err()
	}
}

// Put fills the slot with h. The slot must be empty; violating that is a
// bug in the caller, not a recoverable condition.
func (s *TipSemaphore) Put(h Hash) {
	select {
	case s.slot <- h:
	default:
		invariantViolation("tip semaphore Put called while the slot is already full")
	}
}

// WithBlkSemaphore acquires the tip, invokes action(oldTip), and places the
// result into the semaphore as the new tip. If action fails — by returning
// an error or by panicking, which stands in for the source language's
// exception/cancellation unwind — the original tip is restored before the
// failure propagates. The slot is never left empty.
func WithBlkSemaphore(ctx context.Context, sem *TipSemaphore, action func(context.Context, Hash) (Hash, error)) error {
	oldTip, err := sem.Take(ctx)
	if err != nil {
		return err
	}

	released := false
	defer func() {
		if released {
			return
		}
		if r := recover(); r != nil {
			sem.Put(oldTip)
			panic(r)
		}
	}()

	newTip, actionErr := action(ctx, oldTip)
	if actionErr != nil {
		log.Warn().Str("tip", oldTip.String()).Msgf("tip semaphore action failed, restoring tip: %v", actionErr)
		sem.Put(oldTip)
		released = true
		return actionErr
	}

	log.Trace().Str("oldTip", oldTip.String()).Str("newTip", newTip.String()).Msg("tip semaphore committed new tip")
	sem.Put(newTip)
	released = true
	return nil
}
