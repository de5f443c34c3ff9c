// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainlogic

import (
	"fmt"
	"strings"
)

// JoinedError renders a list of independent failure messages as a single,
// stable, order-preserving, semicolon-separated string. Classifier and
// structural-verification failures are surfaced this way so tests can
// assert on exact message content.
type JoinedError struct {
	messages []string
}

// NewJoinedError builds a JoinedError from one or more messages. It panics if
// given none, since an empty JoinedError has no sensible Error() string and
// callers should return nil instead.
func NewJoinedError(messages ...string) *JoinedError {
	if len(messages) == 0 {
		panic("chainlogic: NewJoinedError called with no messages")
	}
	return &JoinedError{messages: messages}
}

// Error implements the error interface.
func (e *JoinedError) Error() string {
	return strings.Join(e.messages, "; ")
}

// Messages returns the individual failure messages in order.
func (e *JoinedError) Messages() []string {
	return e.messages
}

// invariantViolation panics with a descriptive message. It is used for
// conditions that can only arise from a corrupted store or a bug in the
// core itself, never from recoverable input: a negative depth-difference
// between tip and LCA, or a missing LCA after the caller has already
// confirmed local presence of the chain's oldest header.
func invariantViolation(format string, args ...interface{}) {
	panic(fmt.Sprintf("chainlogic: invariant violation: "+format, args...))
}
