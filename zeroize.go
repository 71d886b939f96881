// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

// zeroize overwrites b in place's "every key and premaster
// buffer the context touches is wiped from memory once the handshake
// reaches OK or ERROR". It is marked noinline so the compiler cannot
// prove the write is dead and elide it, which a plain loop is at risk
// of once its result is never read again.
//
//go:noinline
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// zeroizeAll wipes every buffer in bs, for call sites that accumulate
// several secrets (premaster, master secret, key block) over the
// course of one handshake.
func zeroizeAll(bs ...[]byte) {
	for _, b := range bs {
		zeroize(b)
	}
}
