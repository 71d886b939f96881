// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

// This file collects the constant-time masking helpers Bleichenbacher
// resistance requires: every branch that depends on secret-derived
// data (a PKCS#1 v1.5 padding check, a resumed-session comparison) must
// be expressed as an arithmetic mask rather than an if, so the CPU's
// branch predictor and memory-access pattern carry no signal. Written
// in the style of crypto/subtle's constant-time primitives (this file
// does not import it), plus the handful of compound operations the RSA
// premaster path needs.

// ctUint8 is a "boolean" represented as 0 or 1, produced and consumed
// only through the functions below so it's never branched on directly.
type ctUint8 = uint8

// ctEq returns 1 if x == y, 0 otherwise, without branching.
func ctEq(x, y uint16) ctUint8 {
	diff := uint32(x) ^ uint32(y)
	diff |= diff >> 16
	diff |= diff >> 8
	diff |= diff >> 4
	diff |= diff >> 2
	diff |= diff >> 1
	return ctUint8(1 ^ (diff & 1))
}

// ctSelect returns a if v == 1, b if v == 0. v must be 0 or 1.
func ctSelect(v ctUint8, a, b uint8) uint8 {
	mask := -v
	return (a & mask) | (b & ^mask)
}

// ctSelectBytes writes every byte of dst unconditionally, taking a's
// byte when v == 1, else b's.
func ctSelectBytes(v ctUint8, dst, a, b []byte) {
	mask := -v
	for i := range dst {
		dst[i] = (a[i] & mask) | (b[i] & ^mask)
	}
}

// ctCopyIf overwrites dst with src when v == 1; otherwise leaves dst
// unchanged. len(dst) must equal len(src).
func ctCopyIf(v ctUint8, dst, src []byte) {
	mask := -v
	for i := range dst {
		dst[i] = (src[i] & mask) | (dst[i] & ^mask)
	}
}

// ctAnd ANDs two 0/1 values.
func ctAnd(a, b ctUint8) ctUint8 { return a & b }

// ctOr ORs two 0/1 values.
func ctOr(a, b ctUint8) ctUint8 { return a | b }

// ctNot inverts a 0/1 value.
func ctNot(a ctUint8) ctUint8 { return 1 ^ a }
