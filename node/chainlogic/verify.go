// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainlogic

import "context"

// VerifyBlocks takes a nonempty oldest-first sequence of blocks and returns
// either an error describing the first failure or a matching nonempty
// sequence of Undo records.
//
// The pipeline runs cheap local checks first, then the cryptographic SSC
// checks, then the UTXO-dependent transaction checks whose cost dominates
// and whose byproduct is the rollback metadata — it short-circuits on the
// first failing stage.
func VerifyBlocks(ctx context.Context, cc *CoreCtx, blocks []*Block) ([]Undo, error) {
	if len(blocks) == 0 {
		invariantViolation("VerifyBlocks called with an empty block sequence")
	}

	currentSlot, err := cc.Slot.GetCurrentSlot(ctx)
	if err != nil {
		return nil, err
	}
	tipBlock, err := cc.DB.GetTipBlock(ctx)
	if err != nil {
		return nil, err
	}

	if err := cc.HeaderVerify.VerifyBlockChain(ctx, ChainVerifyParams{
		RequireConsensus: true,
		CurrentSlot:      &currentSlot,
	}, tipBlock.Header, blocks); err != nil {
		log.Warn().Int("blocks", len(blocks)).Msgf("structural verification failed: %v", err)
		return nil, err
	}

	if err := cc.Ssc.SscVerifyBlocks(ctx, blocks); err != nil {
		log.Warn().Int("blocks", len(blocks)).Msgf("ssc verification failed: %v", err)
		return nil, err
	}

	undos, err := cc.Txp.TxVerifyBlocks(ctx, blocks)
	if err != nil {
		log.Warn().Int("blocks", len(blocks)).Msgf("tx verification failed: %v", err)
		return nil, err
	}
	if len(undos) != len(blocks) {
		invariantViolation("Txp.TxVerifyBlocks returned %d undo records for %d blocks", len(undos), len(blocks))
	}
	log.Trace().Int("blocks", len(blocks)).Msg("block sequence verified")
	return undos, nil
}
