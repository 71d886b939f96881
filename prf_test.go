// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"bytes"
	"testing"
)

func TestMasterFromPreMasterSecretLength(t *testing.T) {
	pms := bytes.Repeat([]byte{0x07}, 48)
	clientRandom := bytes.Repeat([]byte{0x01}, 32)
	serverRandom := bytes.Repeat([]byte{0x02}, 32)

	ms := masterFromPreMasterSecret(VersionTLS12, nil, pms, clientRandom, serverRandom)
	if len(ms) != masterSecretLength {
		t.Fatalf("len(masterSecret) = %d, want %d", len(ms), masterSecretLength)
	}

	ms10 := masterFromPreMasterSecret(VersionTLS10, nil, pms, clientRandom, serverRandom)
	if bytes.Equal(ms, ms10) {
		t.Fatal("TLS 1.0 and TLS 1.2 PRFs produced the same master secret")
	}
}

func TestMasterFromPreMasterSecretDeterministic(t *testing.T) {
	pms := bytes.Repeat([]byte{0x07}, 48)
	clientRandom := bytes.Repeat([]byte{0x01}, 32)
	serverRandom := bytes.Repeat([]byte{0x02}, 32)

	a := masterFromPreMasterSecret(VersionTLS12, nil, pms, clientRandom, serverRandom)
	b := masterFromPreMasterSecret(VersionTLS12, nil, pms, clientRandom, serverRandom)
	if !bytes.Equal(a, b) {
		t.Fatal("master secret derivation is not deterministic")
	}

	differentRandom := bytes.Repeat([]byte{0x03}, 32)
	c := masterFromPreMasterSecret(VersionTLS12, nil, pms, clientRandom, differentRandom)
	if bytes.Equal(a, c) {
		t.Fatal("expected different server random to change the master secret")
	}
}

func TestKeysFromMasterSecretNonOverlapping(t *testing.T) {
	ms := bytes.Repeat([]byte{0x09}, masterSecretLength)
	clientRandom := bytes.Repeat([]byte{0x01}, 32)
	serverRandom := bytes.Repeat([]byte{0x02}, 32)

	clientMAC, serverMAC, clientKey, serverKey, clientIV, serverIV :=
		keysFromMasterSecret(VersionTLS12, nil, ms, clientRandom, serverRandom, 20, 16, 4)

	if len(clientMAC) != 20 || len(serverMAC) != 20 {
		t.Fatalf("MAC lengths = %d, %d, want 20, 20", len(clientMAC), len(serverMAC))
	}
	if len(clientKey) != 16 || len(serverKey) != 16 {
		t.Fatalf("key lengths = %d, %d, want 16, 16", len(clientKey), len(serverKey))
	}
	if len(clientIV) != 4 || len(serverIV) != 4 {
		t.Fatalf("IV lengths = %d, %d, want 4, 4", len(clientIV), len(serverIV))
	}
	if bytes.Equal(clientMAC, serverMAC) || bytes.Equal(clientKey, serverKey) || bytes.Equal(clientIV, serverIV) {
		t.Fatal("client/server key material should differ")
	}
}

func TestFinishedHashClientServerSumsDiffer(t *testing.T) {
	suite := cipherSuiteByID(TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	h := newFinishedHash(VersionTLS12, suite)
	h.Write([]byte("client hello bytes"))
	h.Write([]byte("server hello bytes"))

	masterSecret := bytes.Repeat([]byte{0x0a}, masterSecretLength)
	clientVerify := h.clientSum(suite, masterSecret)
	serverVerify := h.serverSum(suite, masterSecret)

	if len(clientVerify) != finishedVerifyLength || len(serverVerify) != finishedVerifyLength {
		t.Fatalf("verify_data length = %d, %d, want %d", len(clientVerify), len(serverVerify), finishedVerifyLength)
	}
	if bytes.Equal(clientVerify, serverVerify) {
		t.Fatal("client and server Finished verify_data should differ")
	}
}

func TestFinishedHashDiffersOnTranscript(t *testing.T) {
	suite := cipherSuiteByID(TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	masterSecret := bytes.Repeat([]byte{0x0a}, masterSecretLength)

	h1 := newFinishedHash(VersionTLS12, suite)
	h1.Write([]byte("flight one"))
	v1 := h1.clientSum(suite, masterSecret)

	h2 := newFinishedHash(VersionTLS12, suite)
	h2.Write([]byte("flight two"))
	v2 := h2.clientSum(suite, masterSecret)

	if bytes.Equal(v1, v2) {
		t.Fatal("different transcripts produced the same verify_data")
	}
}
