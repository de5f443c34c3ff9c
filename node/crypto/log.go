// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

import (
	"github.com/rs/zerolog"

	"github.com/jax-pos/posnode/corelog"
)

var log = corelog.Disabled

// DisableLog disables all package log output.
func DisableLog() { log = corelog.Disabled }

// UseLogger sets the logger used by this package.
func UseLogger(logger zerolog.Logger) { log = logger }
