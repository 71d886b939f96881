// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import "fmt"

// errorKind classifies a failure per the disposition table in
// The kind appears in the error text only: the state machine does not
// branch on it, and hsContext.fail sends the alert of every engineError
// whatever its kind.
type errorKind uint8

const (
	errDecode errorKind = iota
	errProtocol
	errCrypto
	errPolicy
	errResource
	errTransient
)

func (k errorKind) String() string {
	switch k {
	case errDecode:
		return "decode"
	case errProtocol:
		return "protocol"
	case errCrypto:
		return "cryptographic"
	case errPolicy:
		return "policy"
	case errResource:
		return "resource"
	case errTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// engineError pairs a classified failure with the alert the state
// machine must emit for it. handshakeError is the only constructor: it
// is the single boundary requires between component-level
// failures and the wire-level alert.
type engineError struct {
	kind  errorKind
	alert alert
	msg   string
}

func (e *engineError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("tls: %s error (%s)", e.kind, e.alert)
	}
	return fmt.Sprintf("tls: %s: %s", e.kind, e.msg)
}

func (e *engineError) Alert() alert { return e.alert }

func handshakeError(kind errorKind, al alert, format string, args ...interface{}) *engineError {
	return &engineError{kind: kind, alert: al, msg: fmt.Sprintf(format, args...)}
}

// ErrWouldBlock names the "transport would block" outcome. No step of
// this engine returns it: every read and write blocks on the underlying
// net.Conn, and no handshake sub-state is kept between calls, so a
// handshake that stops part-way is not resumed by calling again.
var ErrWouldBlock = fmt.Errorf("tls: would block")

// ErrTruncated is returned by the wire codec whenever a read would
// advance past the end of the current bounded slice.
var ErrTruncated = handshakeError(errDecode, alertDecodeError, "truncated message")
