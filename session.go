// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"crypto/x509"
	"time"
)

// session holds everything needed to resume a connection. It is
// created either during a full handshake or reconstituted from a
// decrypted ticket; the cache and any handshake contexts using it
// share one instance.
type session struct {
	masterSecret []byte // 48 bytes
	sessionID    []byte // <=32 bytes

	cipherSuite uint16
	vers        uint16

	peerCertificates []*x509.Certificate
	verifyResult     error

	timeout time.Time

	sni string

	ecPointFormats []uint8
	ellipticCurves []CurveID

	// ticket is the opaque blob this session was (or can be) resumed
	// from
	ticket []byte
}

func (s *session) expired(now time.Time) bool {
	return !s.timeout.IsZero() && now.After(s.timeout)
}

// clone returns a copy with its own masterSecret and sessionID buffers
// (other slices and pointers are shared), safe to hand to a new
// handshake context while the cache retains its own reference.
func (s *session) clone() *session {
	c := *s
	c.masterSecret = append([]byte(nil), s.masterSecret...)
	c.sessionID = append([]byte(nil), s.sessionID...)
	return &c
}
