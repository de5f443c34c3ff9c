// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainlogic

import "context"

// LCAWithMainChain accepts a nonempty newest-first sequence of headers and
// returns the hash of the newest element that is (or whose parent is)
// already on the main chain, or ok=false if no such ancestor exists.
//
// The search list is [hash(headers[0]), ..., hash(headers[last]),
// prev(headers[last])] — the trailing parent of the oldest supplied header
// ensures that a caller whose whole sequence is off-chain still learns the
// fork point.
func LCAWithMainChain(ctx context.Context, cc *CoreCtx, headers []BlockHeader) (Hash, bool, error) {
	if len(headers) == 0 {
		invariantViolation("LCAWithMainChain called with an empty header sequence")
	}

	candidates := make([]Hash, 0, len(headers)+1)
	for _, h := range headers {
		candidates = append(candidates, cc.Crypto.Hash(h))
	}
	candidates = append(candidates, headers[len(headers)-1].Prev())

	for _, hash := range candidates {
		inMain, err := cc.DB.IsBlockInMainChain(ctx, hash)
		if err != nil {
			return Hash{}, false, err
		}
		if inMain {
			return hash, true, nil
		}
	}
	log.Warn().Int("candidates", len(candidates)).Msg("no ancestor of the candidate chain is on the main chain")
	return Hash{}, false, nil
}

// RetrieveHeadersFromTo returns headers in oldest-first order up to
// startFrom (inclusive). It walks parents from startFrom and stops at the
// first header whose EpochOrSlot equals that of a locally known checkpoint;
// that header and its parent are both included, so the result starts at the
// checkpoint's parent. If no checkpoint is ever reached, the result starts at
// the genesis block. If startFrom is nil, the local tip is used.
func RetrieveHeadersFromTo(ctx context.Context, cc *CoreCtx, checkpoints []Hash, startFrom *Hash) ([]BlockHeader, error) {
	start, err := resolveStart(ctx, cc, startFrom)
	if err != nil {
		return nil, err
	}

	checkpointSlots := make(map[uint64]struct{}, len(checkpoints))
	for _, cp := range checkpoints {
		h, ok, err := cc.DB.GetBlockHeader(ctx, cp)
		if err != nil {
			return nil, err
		}
		if ok {
			checkpointSlots[h.EpochOrSlot().Flatten(cc.SlotsPerEpoch)] = struct{}{}
		}
	}

	accumulated := make([]BlockHeader, 0, 64)
	cur := start
	for {
		h, ok, err := cc.DB.GetBlockHeader(ctx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		accumulated = append(accumulated, h)

		if _, hit := checkpointSlots[h.EpochOrSlot().Flatten(cc.SlotsPerEpoch)]; hit {
			break
		}
		if h.Kind() == KindGenesis {
			break
		}
		cur = h.Prev()
	}

	if len(accumulated) == 0 {
		return nil, nil
	}

	last := accumulated[len(accumulated)-1]
	if last.Kind() != KindGenesis {
		parentHeader, ok, err := cc.DB.GetBlockHeader(ctx, last.Prev())
		if err != nil {
			return nil, err
		}
		if ok {
			accumulated = append(accumulated, parentHeader)
		}
	}

	reverseHeaders(accumulated)
	return accumulated, nil
}

func reverseHeaders(headers []BlockHeader) {
	for i, j := 0, len(headers)-1; i < j; i, j = i+1, j-1 {
		headers[i], headers[j] = headers[j], headers[i]
	}
}

// GetHeadersOlderExp returns up to k+2 header hashes sampled from the main
// chain at depths {0, 1, 2, 4, 8, ..., 2^n} (powers of two below k) plus k,
// counted in depth from upto (or tip). This is the standard Bitcoin-style
// block locator used to bootstrap chain synchronization with a peer.
func GetHeadersOlderExp(ctx context.Context, cc *CoreCtx, upto *Hash) ([]Hash, error) {
	start, err := resolveStart(ctx, cc, upto)
	if err != nil {
		return nil, err
	}

	headers, err := cc.DB.LoadHeadersUntil(ctx, start, func(_ BlockHeader, depth uint32) bool {
		return depth <= cc.K
	})
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, nil
	}

	hashes := make([]Hash, 0, len(locatorDepths(cc.K)))
	seenIdx := make(map[int]struct{})
	for _, depth := range locatorDepths(cc.K) {
		idx := int(depth)
		if idx >= len(headers) {
			idx = len(headers) - 1
		}
		if _, dup := seenIdx[idx]; dup {
			continue
		}
		seenIdx[idx] = struct{}{}
		hashes = append(hashes, cc.Crypto.Hash(headers[idx]))
	}
	return hashes, nil
}

// locatorDepths returns {0, 1, 2, 4, ..., 2^n < k, k} in ascending order.
func locatorDepths(k uint32) []uint32 {
	depths := []uint32{0}
	for p := uint32(1); p < k; p *= 2 {
		depths = append(depths, p)
	}
	return append(depths, k)
}

// GetBlocksByHeaders returns the block sequence [newer, ..., older]
// (newest-first) if both endpoints exist and flatten(newer) >= flatten(older).
// It walks parents from newer toward older, guarded by the strict bound
// EpochOrSlot(current) > EpochOrSlot(older). It returns ok=false if any step
// is missing or the ordering fails.
func GetBlocksByHeaders(ctx context.Context, cc *CoreCtx, older, newer Hash) ([]*Block, bool, error) {
	newerBlock, ok, err := cc.DB.GetBlock(ctx, newer)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		log.Warn().Str("newer", newer.String()).Msg("GetBlocksByHeaders: newer endpoint not found locally")
		return nil, false, nil
	}
	olderBlock, ok, err := cc.DB.GetBlock(ctx, older)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		log.Warn().Str("older", older.String()).Msg("GetBlocksByHeaders: older endpoint not found locally")
		return nil, false, nil
	}

	olderPos := olderBlock.Header.EpochOrSlot().Flatten(cc.SlotsPerEpoch)
	if newerBlock.Header.EpochOrSlot().Flatten(cc.SlotsPerEpoch) < olderPos {
		log.Warn().Str("older", older.String()).Str("newer", newer.String()).
			Msg("GetBlocksByHeaders: endpoints out of order")
		return nil, false, nil
	}

	sequence := []*Block{newerBlock}
	curHash, curBlock := newer, newerBlock
	for !curHash.IsEqual(older) {
		if curBlock.Header.EpochOrSlot().Flatten(cc.SlotsPerEpoch) <= olderPos {
			log.Warn().Str("older", older.String()).Str("newer", newer.String()).
				Msg("GetBlocksByHeaders: walk passed older before reaching it, unreachable fork")
			return nil, false, nil
		}
		parentHash := curBlock.Header.Prev()
		parentBlock, ok, err := cc.DB.GetBlock(ctx, parentHash)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			log.Warn().Str("parent", parentHash.String()).Msg("GetBlocksByHeaders: missing parent block mid-walk")
			return nil, false, nil
		}
		sequence = append(sequence, parentBlock)
		curHash, curBlock = parentHash, parentBlock
	}
	return sequence, true, nil
}

func resolveStart(ctx context.Context, cc *CoreCtx, given *Hash) (Hash, error) {
	if given != nil {
		return *given, nil
	}
	return cc.DB.GetTip(ctx)
}
