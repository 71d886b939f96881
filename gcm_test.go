// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"bytes"
	"crypto/aes"
	"encoding/hex"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// TestGCMEmptyPlaintext is NIST's first AES-128-GCM test vector: the
// all-zero key with an empty plaintext and no AAD.
func TestGCMEmptyPlaintext(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 12)
	wantTag := mustHex(t, "58e2fccefa7e3061367f1d57a4e7455a")

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	g, err := newGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.setIV(iv); err != nil {
		t.Fatal(err)
	}
	tag := make([]byte, gcmTagSize)
	if err := g.tag(tag); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(tag, wantTag) {
		t.Fatalf("tag = %x, want %x", tag, wantTag)
	}
}

// TestGCMOneBlock is NIST's second AES-128-GCM test vector: a single
// all-zero plaintext block, no AAD.
func TestGCMOneBlock(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 12)
	plaintext := make([]byte, 16)
	wantCiphertext := mustHex(t, "0388dace60b6a392f328c2b971b2fe78")
	wantTag := mustHex(t, "ab6e47d42cec13bdf53a67b21257bddf")

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	g, err := newGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.setIV(iv); err != nil {
		t.Fatal(err)
	}
	ciphertext := make([]byte, len(plaintext))
	if err := g.encrypt(ciphertext, plaintext); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ciphertext, wantCiphertext) {
		t.Fatalf("ciphertext = %x, want %x", ciphertext, wantCiphertext)
	}
	tag := make([]byte, gcmTagSize)
	if err := g.tag(tag); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(tag, wantTag) {
		t.Fatalf("tag = %x, want %x", tag, wantTag)
	}
}

// TestGCMDecryptRoundTrip checks that encrypting then decrypting the
// same plaintext under a fresh context with matching AAD recovers the
// original bytes and verifies.
func TestGCMDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	iv := bytes.Repeat([]byte{0x24}, 12)
	aad := []byte("additional data")
	plaintext := []byte("some record payload, not block aligned")

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}

	enc, err := newGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.setIV(iv); err != nil {
		t.Fatal(err)
	}
	if err := enc.aad(aad); err != nil {
		t.Fatal(err)
	}
	ciphertext := make([]byte, len(plaintext))
	if err := enc.encrypt(ciphertext, plaintext); err != nil {
		t.Fatal(err)
	}
	tag := make([]byte, gcmTagSize)
	if err := enc.tag(tag); err != nil {
		t.Fatal(err)
	}

	block2, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := newGCM(block2)
	if err != nil {
		t.Fatal(err)
	}
	if err := dec.setIV(iv); err != nil {
		t.Fatal(err)
	}
	if err := dec.aad(aad); err != nil {
		t.Fatal(err)
	}
	recovered := make([]byte, len(ciphertext))
	if err := dec.decrypt(recovered, ciphertext); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Fatalf("recovered = %q, want %q", recovered, plaintext)
	}
	if err := dec.verify(tag); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

// TestGCMVerifyRejectsTamperedTag ensures a single flipped tag bit is
// rejected.
func TestGCMVerifyRejectsTamperedTag(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 12)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	g, err := newGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.setIV(iv); err != nil {
		t.Fatal(err)
	}
	tag := make([]byte, gcmTagSize)
	if err := g.tag(tag); err != nil {
		t.Fatal(err)
	}
	tag[0] ^= 0x01
	if err := g.verify(tag); err == nil {
		t.Fatal("expected verify to reject tampered tag")
	}
}
