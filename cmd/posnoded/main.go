// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// posnoded wires the block-chain logic core to a real store, clock and
// structural verifier and keeps it idle-ready for the transport, Txp and
// Ssc subsystems the core depends on but this repository does not
// implement. Startup and signal handling are split into separate files,
// the same way the rest of main's responsibilities are kept apart.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jax-pos/posnode/corelog"
	"github.com/jax-pos/posnode/node/blockstore"
	"github.com/jax-pos/posnode/node/chainlogic"
	"github.com/jax-pos/posnode/node/chainlogic/testfakes"
	"github.com/jax-pos/posnode/node/config"
	"github.com/jax-pos/posnode/node/crypto"
	"github.com/jax-pos/posnode/node/headerverify"
	"github.com/jax-pos/posnode/node/slotting"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "FATAL:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Println("posnoded version 0.1.0")
		return nil
	}

	log := corelog.New("posnoded", zerolog.InfoLevel, cfg.LogConfig)
	log.Info().Str("data_dir", cfg.DataDir).Bool("dev", cfg.Dev).Msg("starting posnoded")

	chainlogic.UseLogger(log)
	crypto.UseLogger(log)
	slotting.UseLogger(log)
	headerverify.UseLogger(log)

	hasher := crypto.NewHeaderHasher()
	genesis := genesisBlock()

	cc, closeFn, err := buildCoreCtx(cfg, hasher, genesis, log)
	if err != nil {
		return err
	}
	defer closeFn()

	tip, err := cc.DB.GetTip(context.Background())
	if err != nil {
		return err
	}
	log.Info().Str("tip", tip.String()).Msg("block store ready")

	interrupt := interruptListener(log)
	<-interrupt
	log.Info().Msg("posnoded shutting down")
	return nil
}

// buildCoreCtx wires either node/blockstore (the default) or the in-memory
// testfakes (cfg.Dev) behind the same chainlogic.CoreCtx, with a placeholder
// Txp and Ssc: a real deployment supplies its own, since both are explicitly
// out of this repository's scope.
func buildCoreCtx(cfg config.Config, hasher crypto.HeaderHasher, genesis *chainlogic.Block, log zerolog.Logger) (*chainlogic.CoreCtx, func(), error) {
	clock := slotting.NewClock(cfg.Chain.GenesisTime, cfg.Chain.SlotDuration, cfg.Chain.SlotsPerEpoch)
	verifier := headerverify.NewVerifier(hasher, cfg.Chain.SlotsPerEpoch)
	blockstore.UseLogger(log)

	if cfg.Dev {
		db := testfakes.NewMemDB(hasher, genesis)
		cc := &chainlogic.CoreCtx{
			DB:            db,
			Slot:          clock,
			Txp:           testfakes.NewStubTxp(hasher),
			Ssc:           testfakes.NewStubSsc(),
			Crypto:        hasher,
			HeaderVerify:  verifier,
			Sem:           chainlogic.NewTipSemaphore(hasher.Hash(genesis.Header)),
			K:             cfg.Chain.K,
			SlotsPerEpoch: cfg.Chain.SlotsPerEpoch,
		}
		return cc, func() {}, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, err
	}
	store, err := blockstore.Open(filepath.Join(cfg.DataDir, "blocks"), hasher)
	if err != nil {
		return nil, nil, err
	}
	if _, pending, err := store.PendingIntent(context.Background()); err != nil {
		store.Close()
		return nil, nil, err
	} else if pending {
		if err := store.Recover(context.Background()); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	initialized, err := store.Initialized(context.Background())
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if !initialized {
		if err := store.InitGenesis(context.Background(), genesis); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	tip, err := store.GetTip(context.Background())
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	cc := &chainlogic.CoreCtx{
		DB:            store,
		Slot:          clock,
		Txp:           testfakes.NewStubTxp(hasher),
		Ssc:           testfakes.NewStubSsc(),
		Crypto:        hasher,
		HeaderVerify:  verifier,
		Sem:           chainlogic.NewTipSemaphore(tip),
		K:             cfg.Chain.K,
		SlotsPerEpoch: cfg.Chain.SlotsPerEpoch,
	}
	return cc, func() { store.Close() }, nil
}

func genesisBlock() *chainlogic.Block {
	return &chainlogic.Block{
		Header: chainlogic.GenesisHeader{
			Epoch:         0,
			PrevHash:      chainlogic.ZeroHash,
			DifficultyVal: 0,
		},
		Txs: chainlogic.RawPayload(nil),
		Ssc: chainlogic.RawPayload(nil),
	}
}
