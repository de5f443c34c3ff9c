// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config implements posnoded's on-disk/flag configuration: a
// yaml-tagged struct doubling as a go-flags option set, loaded with
// gopkg.in/yaml.v3 and overridable from the command line with
// github.com/jessevdk/go-flags.
package config

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jax-pos/posnode/corelog"
)

// Config is posnoded's full configuration.
type Config struct {
	ConfigFile  string `yaml:"-" short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `yaml:"-" short:"V" long:"version" description:"Display version information and exit"`

	DataDir   string         `yaml:"data_dir" short:"b" long:"datadir" description:"Directory to store the block database"`
	LogConfig corelog.Config `yaml:"log_config"`

	Chain ChainConfig `yaml:"chain"`
	Dev   bool        `yaml:"-" long:"dev" description:"Run against in-memory test fakes instead of node/blockstore, for local experimentation"`
}

// ChainConfig carries the protocol parameters node/chainlogic.CoreCtx needs.
type ChainConfig struct {
	// K is the maximum fork depth, in slots, the node will accept before a
	// chain switch is classified as useless.
	K uint32 `yaml:"k"`
	// SlotsPerEpoch is the protocol-fixed number of slots per epoch.
	SlotsPerEpoch uint64 `yaml:"slots_per_epoch"`
	// SlotDuration is the wall-clock duration of one slot.
	SlotDuration time.Duration `yaml:"slot_duration"`
	// GenesisTime anchors slot 0 of epoch 0 to a wall-clock instant.
	GenesisTime time.Time `yaml:"genesis_time"`
}

// Default returns the configuration posnoded starts from before a config
// file or flags are applied.
func Default() Config {
	return Config{
		DataDir:   "data",
		LogConfig: corelog.Config{}.Default(),
		Chain: ChainConfig{
			K:             10,
			SlotsPerEpoch: 100,
			SlotDuration:  2 * time.Second,
		},
	}
}

// Load builds the effective configuration: defaults, then the config file
// named by args (if any exist on disk), then command-line flag overrides.
func Load(args []string) (Config, error) {
	cfg := Default()

	preParser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash|flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return Config{}, errors.Wrap(err, "failed to pre-parse command-line flags")
	}

	if cfg.ConfigFile != "" && fileExists(cfg.ConfigFile) {
		raw, err := ioutil.ReadFile(cfg.ConfigFile)
		if err != nil {
			return Config{}, errors.Wrap(err, "failed to read configuration file")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "failed to decode configuration file")
		}
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse command-line flags")
	}

	return cfg, nil
}

func fileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
