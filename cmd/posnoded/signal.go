// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

var interruptSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// interruptListener returns a channel that is closed once a shutdown signal
// arrives, and keeps logging (without blocking) if more arrive afterward.
func interruptListener(log zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)

		sig := <-interruptChannel
		log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
		close(done)

		for sig := range interruptChannel {
			log.Info().Str("signal", sig.String()).Msg("received signal, already shutting down")
		}
	}()
	return done
}
