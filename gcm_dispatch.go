// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"crypto/aes"
	"crypto/cipher"

	"gitlab.com/yawning/bsaes.git"
	"golang.org/x/sys/cpu"
)

// gcmPath records which gmult/ghash implementation an AEAD context
// selected at init, per. Every path has identical
// semantics; only performance differs, so this is purely observational
// (surfaced for tests and diagnostics) — gcmAEAD's gmult/ghash above are
// the single scalar 4-bit implementation all paths currently share.
type gcmPath uint8

const (
	gcmPathScalar gcmPath = iota
	gcmPathPCLMULQDQ
	gcmPathAVXMOVBEPCLMULQDQ
	gcmPathNEON
)

func (p gcmPath) String() string {
	switch p {
	case gcmPathPCLMULQDQ:
		return "pclmulqdq"
	case gcmPathAVXMOVBEPCLMULQDQ:
		return "avx+movbe+pclmulqdq"
	case gcmPathNEON:
		return "neon"
	default:
		return "scalar"
	}
}

// selectGCMPath implements the CPU-feature probe: prefer
// AVX+MOVBE+PCLMULQDQ, then plain PCLMULQDQ, then the
// scalar table path on x86; prefer NEON's PMULL carryless-multiply
// extension on arm64. The scalar gmult/ghash above is correct for every
// path; a hardware-accelerated gmult/ghash pair would be substituted
// here without changing any caller. No such pair ships in this engine.
func selectGCMPath() gcmPath {
	if cpu.X86.HasAVX && cpu.X86.HasMOVBE && cpu.X86.HasPCLMULQDQ {
		return gcmPathAVXMOVBEPCLMULQDQ
	}
	if cpu.X86.HasPCLMULQDQ {
		return gcmPathPCLMULQDQ
	}
	if cpu.ARM64.HasPMULL {
		return gcmPathNEON
	}
	return gcmPathScalar
}

// constantTimeBlockCipher builds a block cipher that must be
// constant-time in the key. It prefers the bitsliced,
// branch-free AES from gitlab.com/yawning/bsaes.git; if that
// implementation cannot service the given key size (only AES-128/256
// keys are bitsliced by ctraes) it falls back to the AES-NI/generic
// crypto/aes implementation, whose table-free AES-NI path is
// constant-time in practice on hardware that has the extension and
// whose pure-Go fallback is documented as best-effort only.
func constantTimeBlockCipher(key []byte) (blockCipher, error) {
	if b, err := bsaes.NewCipher(key); err == nil {
		return b, nil
	}
	return aes.NewCipher(key)
}

// newGCMAEAD is the entry point gcm suites (cipher_suites.go) call: it
// builds the constant-time block cipher, runs the GHASH key-table
// precomputation, and records which dispatch path this process
// selected.
func newGCMAEAD(key []byte) (*gcmAEAD, gcmPath, error) {
	block, err := constantTimeBlockCipher(key)
	if err != nil {
		return nil, 0, handshakeError(errResource, alertInternalError, "gcm: %v", err)
	}
	g, err := newGCM(block)
	if err != nil {
		return nil, 0, err
	}
	return g, selectGCMPath(), nil
}

// recordAEAD adapts gcmAEAD to cipher.AEAD so the record layer (and
// tests exercising known test vectors) can drive it through the
// standard Seal/Open shape while still enforcing the state machine (no
// AAD after encrypt starts, length ceilings, poisoning).
type recordAEAD struct {
	g *gcmAEAD
}

func newRecordAEAD(key []byte) (cipher.AEAD, error) {
	g, _, err := newGCMAEAD(key)
	if err != nil {
		return nil, err
	}
	return &recordAEAD{g: g}, nil
}

func (r *recordAEAD) NonceSize() int { return 12 }

func (r *recordAEAD) Overhead() int { return gcmTagSize }

func (r *recordAEAD) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	if err := r.g.setIV(nonce); err != nil {
		panic(err)
	}
	if len(additionalData) > 0 {
		if err := r.g.aad(additionalData); err != nil {
			panic(err)
		}
	}
	ret, out := sliceForAppend(dst, len(plaintext)+gcmTagSize)
	if err := r.g.encrypt(out[:len(plaintext)], plaintext); err != nil {
		panic(err)
	}
	if err := r.g.tag(out[len(plaintext):]); err != nil {
		panic(err)
	}
	r.g = resetGCM(r.g)
	return ret
}

func (r *recordAEAD) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(ciphertext) < gcmTagSize {
		return nil, handshakeError(errCrypto, alertBadRecordMAC, "gcm: ciphertext too short")
	}
	tag := ciphertext[len(ciphertext)-gcmTagSize:]
	ciphertext = ciphertext[:len(ciphertext)-gcmTagSize]

	if err := r.g.setIV(nonce); err != nil {
		return nil, err
	}
	if len(additionalData) > 0 {
		if err := r.g.aad(additionalData); err != nil {
			return nil, err
		}
	}
	ret, out := sliceForAppend(dst, len(ciphertext))
	if err := r.g.decrypt(out, ciphertext); err != nil {
		return nil, err
	}
	if err := r.g.verify(tag); err != nil {
		for i := range out {
			out[i] = 0
		}
		return nil, err
	}
	r.g = resetGCM(r.g)
	return ret, nil
}

// resetGCM rebuilds a fresh per-invocation context sharing the same key
// schedule: forbids reusing Y across invocations with the
// same key, so every Seal/Open re-derives Y from a caller-supplied
// nonce against a clean htable rather than mutating state across calls.
func resetGCM(old *gcmAEAD) *gcmAEAD {
	return &gcmAEAD{block: old.block, htable: old.htable}
}

func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}
