// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// posctl is a read-only operator CLI against a node/blockstore database,
// built on urfave/cli's App/Command structure.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/jax-pos/posnode/node/blockstore"
	"github.com/jax-pos/posnode/node/chainlogic"
	"github.com/jax-pos/posnode/node/crypto"
)

func main() {
	app := &cli.App{
		Name:  "posctl",
		Usage: "inspect a posnoded block database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "datadir",
				Aliases:  []string{"b"},
				Usage:    "path to the posnoded data directory",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:  "k",
				Usage: "security parameter k used by the locator command",
				Value: 10,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "locator",
				Usage: "print the exponential block locator for the local main chain",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "upto", Usage: "hash to anchor the locator at, defaults to the current tip"},
				},
				Action: locatorCmd,
			},
			{
				Name:      "lca",
				Usage:     "print the ancestor shared between the main chain and the given newest-first header hashes",
				ArgsUsage: "HASH [HASH...]",
				Action:    lcaCmd,
			},
			{
				Name:   "tip",
				Usage:  "print the current tip hash",
				Action: tipCmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openCoreCtx(c *cli.Context) (*chainlogic.CoreCtx, *blockstore.Store, error) {
	hasher := crypto.NewHeaderHasher()
	store, err := blockstore.Open(filepath.Join(c.String("datadir"), "blocks"), hasher)
	if err != nil {
		return nil, nil, err
	}
	cc := &chainlogic.CoreCtx{
		DB:     store,
		Crypto: hasher,
		K:      uint32(c.Uint64("k")),
	}
	return cc, store, nil
}

func locatorCmd(c *cli.Context) error {
	cc, store, err := openCoreCtx(c)
	if err != nil {
		return err
	}
	defer store.Close()

	var upto *chainlogic.Hash
	if raw := c.String("upto"); raw != "" {
		h, err := parseHash(raw)
		if err != nil {
			return err
		}
		upto = &h
	}

	hashes, err := chainlogic.GetHeadersOlderExp(context.Background(), cc, upto)
	if err != nil {
		return errors.Wrap(err, "failed to compute locator")
	}
	for _, h := range hashes {
		fmt.Println(h.String())
	}
	return nil
}

func lcaCmd(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("lca requires at least one hash argument")
	}
	cc, store, err := openCoreCtx(c)
	if err != nil {
		return err
	}
	defer store.Close()

	headers := make([]chainlogic.BlockHeader, c.NArg())
	for i := 0; i < c.NArg(); i++ {
		hash, err := parseHash(c.Args().Get(i))
		if err != nil {
			return err
		}
		header, ok, err := store.GetBlockHeader(context.Background(), hash)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("unknown header %s", c.Args().Get(i))
		}
		headers[i] = header
	}

	lca, ok, err := chainlogic.LCAWithMainChain(context.Background(), cc, headers)
	if err != nil {
		return errors.Wrap(err, "failed to compute LCA")
	}
	if !ok {
		fmt.Println("no common ancestor on the local main chain")
		return nil
	}
	fmt.Println(lca.String())
	return nil
}

func tipCmd(c *cli.Context) error {
	_, store, err := openCoreCtx(c)
	if err != nil {
		return err
	}
	defer store.Close()

	tip, err := store.GetTip(context.Background())
	if err != nil {
		return errors.Wrap(err, "failed to read tip")
	}
	fmt.Println(tip.String())
	return nil
}

func parseHash(s string) (chainlogic.Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return chainlogic.Hash{}, errors.Wrapf(err, "invalid hash %q", s)
	}
	if len(raw) != chainlogic.HashSize {
		return chainlogic.Hash{}, errors.Errorf("hash %q has %d bytes, want %d", s, len(raw), chainlogic.HashSize)
	}
	var h chainlogic.Hash
	for i, b := range raw {
		h[chainlogic.HashSize-1-i] = b
	}
	return h, nil
}
