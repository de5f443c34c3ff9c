// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package headerverify implements the concrete HeaderVerify collaborator:
// structural checks fixed by the header data model (difficulty growth,
// parent linkage, strict slot advancement) plus presence of the consensus
// proof when required. Cryptographic verification of that proof's contents
// is a Crypto-subsystem concern and out of scope here.
package headerverify

import (
	"context"
	"fmt"

	"github.com/jax-pos/posnode/node/chainlogic"
)

// Verifier is the concrete HeaderVerify implementation.
type Verifier struct {
	Crypto        chainlogic.Crypto
	SlotsPerEpoch uint64
}

// NewVerifier returns a ready-to-use Verifier.
func NewVerifier(crypto chainlogic.Crypto, slotsPerEpoch uint64) *Verifier {
	return &Verifier{Crypto: crypto, SlotsPerEpoch: slotsPerEpoch}
}

// VerifyHeader implements chainlogic.HeaderVerify.
func (v *Verifier) VerifyHeader(_ context.Context, params chainlogic.VerifyParams, header chainlogic.BlockHeader) error {
	var msgs []string

	parentHash := v.Crypto.Hash(params.Parent)
	if !header.Prev().IsEqual(parentHash) {
		msgs = append(msgs, fmt.Sprintf("header's prev hash %s does not match parent hash %s", header.Prev(), parentHash))
	}

	wantDifficulty := params.Parent.Difficulty() + chainlogic.DifficultyDelta(header.Kind())
	if header.Difficulty() != wantDifficulty {
		msgs = append(msgs, fmt.Sprintf("header difficulty %d does not equal parent difficulty %d plus delta",
			header.Difficulty(), params.Parent.Difficulty()))
	}

	if !params.Parent.EpochOrSlot().Less(header.EpochOrSlot(), v.SlotsPerEpoch) {
		msgs = append(msgs, "header does not strictly advance the slot position of its parent")
	}

	if params.RequireConsensus && header.Kind() == chainlogic.KindMain {
		main := header.(chainlogic.MainHeader)
		if len(main.ConsensusProof) == 0 {
			msgs = append(msgs, "header is missing its consensus proof")
		}
	}

	if len(msgs) > 0 {
		log.Warn().Int("failures", len(msgs)).Msg("header failed structural verification")
		return chainlogic.NewJoinedError(msgs...)
	}
	return nil
}

// VerifyHeaders implements chainlogic.HeaderVerify: headers must be
// oldest-first; every consecutive pair is checked with VerifyHeader.
func (v *Verifier) VerifyHeaders(ctx context.Context, requireConsensus bool, headers []chainlogic.BlockHeader) error {
	var msgs []string
	for i := 1; i < len(headers); i++ {
		err := v.VerifyHeader(ctx, chainlogic.VerifyParams{
			Parent:           headers[i-1],
			RequireConsensus: requireConsensus,
		}, headers[i])
		msgs = append(msgs, messagesOf(err)...)
	}
	if len(msgs) > 0 {
		return chainlogic.NewJoinedError(msgs...)
	}
	return nil
}

// VerifyBlockChain implements chainlogic.HeaderVerify: in addition to
// VerifyHeaders, it checks that the oldest block's parent equals tip and,
// when CurrentSlot is set, that the sequence does not run ahead of it.
func (v *Verifier) VerifyBlockChain(ctx context.Context, params chainlogic.ChainVerifyParams, tip chainlogic.BlockHeader, blocks []*chainlogic.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	headers := make([]chainlogic.BlockHeader, len(blocks))
	for i, b := range blocks {
		headers[i] = b.Header
	}

	var msgs []string
	if tipHash := v.Crypto.Hash(tip); !headers[0].Prev().IsEqual(tipHash) {
		msgs = append(msgs, "oldest block's parent does not match the current tip")
	}

	msgs = append(msgs, messagesOf(v.VerifyHeaders(ctx, params.RequireConsensus, headers))...)

	if params.CurrentSlot != nil {
		newest := headers[len(headers)-1].EpochOrSlot()
		if chainlogic.AtSlot(*params.CurrentSlot).Less(newest, v.SlotsPerEpoch) {
			msgs = append(msgs, "block sequence extends beyond the current slot")
		}
	}

	if len(msgs) > 0 {
		log.Warn().Int("blocks", len(blocks)).Int("failures", len(msgs)).Msg("block chain failed structural verification")
		return chainlogic.NewJoinedError(msgs...)
	}
	return nil
}

func messagesOf(err error) []string {
	if err == nil {
		return nil
	}
	if je, ok := err.(*chainlogic.JoinedError); ok {
		return je.Messages()
	}
	return []string{err.Error()}
}
