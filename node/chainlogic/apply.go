// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainlogic

import "context"

// IntentLogger is an optional capability a BlockDB may implement to give
// ApplyBlocks/RollbackBlocks a durable intent record spanning the whole
// multi-collaborator sequence. When the store cannot offer one transaction
// across itself, Txp and Ssc, the sequence is instead bracketed by a
// write-ahead intent record that crash recovery can replay. node/blockstore
// implements this interface; BlockDB implementations that can offer a real
// cross-collaborator transaction are free not to.
type IntentLogger interface {
	// BeginIntent durably records that op is about to run over blocks,
	// ending at newTip.
	BeginIntent(ctx context.Context, op string, blocks []Hash, newTip Hash) error
	// CommitIntent clears the most recently begun intent record.
	CommitIntent(ctx context.Context) error
}

const (
	intentOpApply    = "apply"
	intentOpRollback = "rollback"
)

// ApplyBlocks atomically advances the tip by pairs, which must be
// oldest-first and already verified by VerifyBlocks against the current
// tip. The caller must hold the tip semaphore for the duration of the call.
//
// Any returned error indicates a sub-step failed despite the precondition
// that it shouldn't have; callers treat this as fatal, not as a recoverable
// condition.
func ApplyBlocks(ctx context.Context, cc *CoreCtx, pairs []BlockUndoPair) error {
	if len(pairs) == 0 {
		invariantViolation("ApplyBlocks called with an empty pair sequence")
	}

	logger, hasIntent := cc.DB.(IntentLogger)
	if hasIntent {
		newTip := cc.Crypto.Hash(pairs[len(pairs)-1].Block.Header)
		if err := logger.BeginIntent(ctx, intentOpApply, hashesOf(cc, pairs), newTip); err != nil {
			return err
		}
	}

	blocks := make([]*Block, len(pairs))
	for i, pair := range pairs {
		if err := cc.DB.PutBlock(ctx, pair.Undo, true, pair.Block); err != nil {
			return err
		}
		blocks[i] = pair.Block
	}

	if err := cc.Txp.TxApplyBlocks(ctx, blocks); err != nil {
		return err
	}
	if err := cc.Ssc.SscApplyBlocks(ctx, blocks); err != nil {
		return err
	}
	if hasIntent {
		if err := logger.CommitIntent(ctx); err != nil {
			return err
		}
	}
	log.Info().Int("blocks", len(pairs)).Str("tip", cc.Crypto.Hash(pairs[len(pairs)-1].Block.Header).String()).
		Msg("applied blocks")
	return nil
}

// RollbackBlocks atomically retracts the tip by pairs, which must be
// newest-first (the head corresponds to the current tip) and already
// verified by VerifyBlocks at apply time. The caller must hold the tip
// semaphore for the duration of the call.
func RollbackBlocks(ctx context.Context, cc *CoreCtx, pairs []BlockUndoPair) error {
	if len(pairs) == 0 {
		invariantViolation("RollbackBlocks called with an empty pair sequence")
	}

	logger, hasIntent := cc.DB.(IntentLogger)
	if hasIntent {
		oldestParent := pairs[len(pairs)-1].Block.Header.Prev()
		if err := logger.BeginIntent(ctx, intentOpRollback, hashesOf(cc, pairs), oldestParent); err != nil {
			return err
		}
	}

	if err := cc.Txp.TxRollbackBlocks(ctx, pairs); err != nil {
		return err
	}

	for _, pair := range pairs {
		hash := cc.Crypto.Hash(pair.Block.Header)
		if err := cc.DB.SetBlockInMainChain(ctx, hash, false); err != nil {
			return err
		}
	}

	if err := cc.Ssc.SscRollback(ctx, pairs); err != nil {
		return err
	}
	if hasIntent {
		if err := logger.CommitIntent(ctx); err != nil {
			return err
		}
	}
	log.Info().Int("blocks", len(pairs)).Msg("rolled back blocks")
	return nil
}

func hashesOf(cc *CoreCtx, pairs []BlockUndoPair) []Hash {
	hashes := make([]Hash, len(pairs))
	for i, pair := range pairs {
		hashes[i] = cc.Crypto.Hash(pair.Block.Header)
	}
	return hashes
}
