// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainlogic

import (
	"context"
	"fmt"
)

// HeaderClassKind is the outcome of ClassifyNewHeader.
type HeaderClassKind int

const (
	// HeaderContinues means the header extends the current tip.
	HeaderContinues HeaderClassKind = iota
	// HeaderAlternative means the header is a valid continuation of some
	// fork strictly more difficult than the main chain.
	HeaderAlternative
	// HeaderUseless means the header was rejected for an informational,
	// non-error reason (wrong slot, genesis, not more difficult).
	HeaderUseless
	// HeaderInvalid means the header failed structural verification.
	HeaderInvalid
)

// HeaderClass is the result of classifying a single new header.
type HeaderClass struct {
	Kind   HeaderClassKind
	Reason string
}

// ClassifyNewHeader classifies h against the current tip and current slot.
func ClassifyNewHeader(ctx context.Context, cc *CoreCtx, h BlockHeader) (HeaderClass, error) {
	if h.Kind() == KindGenesis {
		return HeaderClass{Kind: HeaderUseless, Reason: "genesis header is useless"}, nil
	}

	currentSlot, err := cc.Slot.GetCurrentSlot(ctx)
	if err != nil {
		return HeaderClass{}, err
	}
	if !h.EpochOrSlot().Equal(AtSlot(currentSlot), cc.SlotsPerEpoch) {
		return HeaderClass{Kind: HeaderUseless, Reason: "header is not for current slot"}, nil
	}

	tipHash, err := cc.DB.GetTip(ctx)
	if err != nil {
		return HeaderClass{}, err
	}
	tipBlock, err := cc.DB.GetTipBlock(ctx)
	if err != nil {
		return HeaderClass{}, err
	}

	if h.Prev().IsEqual(tipHash) {
		verifyErr := cc.HeaderVerify.VerifyHeader(ctx, VerifyParams{
			Parent:           tipBlock.Header,
			RequireConsensus: true,
		}, h)
		if verifyErr != nil {
			log.Warn().Str("prev", tipHash.String()).Msgf("header rejected as invalid continuation: %v", verifyErr)
			return HeaderClass{Kind: HeaderInvalid, Reason: verifyErr.Error()}, nil
		}
		log.Trace().Str("tip", tipHash.String()).Msg("header continues the main chain")
		return HeaderClass{Kind: HeaderContinues}, nil
	}

	if tipBlock.Header.Difficulty() < h.Difficulty() {
		log.Info().Str("tip", tipHash.String()).Msg("header is a more difficult alternative to the main chain")
		return HeaderClass{Kind: HeaderAlternative}, nil
	}

	return HeaderClass{Kind: HeaderUseless, Reason: "header doesn't continue main chain and is not more difficult"}, nil
}

// ChainClassKind is the outcome of ClassifyHeaders.
type ChainClassKind int

const (
	// ChainValid means the sequence is a legitimate candidate chain switch.
	ChainValid ChainClassKind = iota
	// ChainUseless means the sequence was rejected for a non-error reason
	// (the fork is deeper than k).
	ChainUseless
	// ChainInvalid means the sequence failed structural verification or its
	// oldest header is not locally known.
	ChainInvalid
)

// ChainClass is the result of classifying a header sequence.
type ChainClass struct {
	Kind ChainClassKind
	// Reason explains Useless and Invalid outcomes.
	Reason string
	// LCAChild is set only for ChainValid: it names where the chain-switch
	// would attach — either the tip header itself (the sequence is a
	// prefix extension of the current tip) or the unique element of the
	// input chain whose parent is the LCA.
	LCAChild BlockHeader
}

// ClassifyHeaders accepts a newest-first nonempty sequence of headers and
// classifies it as a whole against the local main chain.
func ClassifyHeaders(ctx context.Context, cc *CoreCtx, headers []BlockHeader) (ChainClass, error) {
	if len(headers) == 0 {
		invariantViolation("ClassifyHeaders called with an empty header sequence")
	}

	oldest := headers[len(headers)-1]
	oldestHash := cc.Crypto.Hash(oldest)
	if _, ok, err := cc.DB.GetBlockHeader(ctx, oldestHash); err != nil {
		return ChainClass{}, err
	} else if !ok {
		log.Warn().Str("oldest", oldestHash.String()).Msg("candidate chain's oldest header is not known locally")
		return ChainClass{Kind: ChainInvalid, Reason: "Last block of the passed chain wasn't found locally"}, nil
	}

	oldestFirst := make([]BlockHeader, len(headers))
	copy(oldestFirst, headers)
	reverseHeaders(oldestFirst)
	if err := cc.HeaderVerify.VerifyHeaders(ctx, true, oldestFirst); err != nil {
		log.Warn().Msgf("candidate chain failed structural verification: %v", err)
		return ChainClass{Kind: ChainInvalid, Reason: "Header chain is invalid"}, nil
	}

	lcaHash, ok, err := LCAWithMainChain(ctx, cc, headers)
	if err != nil {
		return ChainClass{}, err
	}
	if !ok {
		invariantViolation("no LCA found for a header chain whose oldest header is already known locally")
	}

	lcaHeader, ok, err := cc.DB.GetBlockHeader(ctx, lcaHash)
	if err != nil {
		return ChainClass{}, err
	}
	if !ok {
		invariantViolation("LCA hash %s resolved by LCAWithMainChain is not present in the store", lcaHash)
	}

	tipHash, err := cc.DB.GetTip(ctx)
	if err != nil {
		return ChainClass{}, err
	}
	tipBlock, err := cc.DB.GetTipBlock(ctx)
	if err != nil {
		return ChainClass{}, err
	}

	lcaPos := lcaHeader.EpochOrSlot().Flatten(cc.SlotsPerEpoch)
	tipPos := tipBlock.Header.EpochOrSlot().Flatten(cc.SlotsPerEpoch)
	if tipPos < lcaPos {
		invariantViolation("tip (%d) is behind its own LCA (%d)", tipPos, lcaPos)
	}
	depthDiff := tipPos - lcaPos

	if depthDiff > uint64(cc.K) {
		log.Info().Str("lca", lcaHash.String()).Uint64("depth", depthDiff).Uint32("k", cc.K).
			Msg("candidate chain forks deeper than k, rejected as useless")
		return ChainClass{
			Kind:   ChainUseless,
			Reason: fmt.Sprintf("Slot difference of (tip,lca) is %d which is more than k = %d", depthDiff, cc.K),
		}, nil
	}

	if lcaHash.IsEqual(tipHash) {
		log.Trace().Str("tip", tipHash.String()).Msg("candidate chain is a prefix extension of the tip")
		return ChainClass{Kind: ChainValid, LCAChild: tipBlock.Header}, nil
	}

	for _, h := range headers {
		if h.Prev().IsEqual(lcaHash) {
			log.Info().Str("lca", lcaHash.String()).Msg("candidate chain is a valid fork switch")
			return ChainClass{Kind: ChainValid, LCAChild: h}, nil
		}
	}
	invariantViolation("no header in the supplied chain is a child of its own LCA %s", lcaHash)
	panic("unreachable")
}
