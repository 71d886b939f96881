// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"bytes"
	"testing"
	"time"
)

func testTicketKey() *TicketKey {
	var k TicketKey
	for i := range k.Name {
		k.Name[i] = byte(i)
	}
	for i := range k.AESKey {
		k.AESKey[i] = byte(i + 1)
	}
	for i := range k.HMACKey {
		k.HMACKey[i] = byte(i + 2)
	}
	return &k
}

func TestTicketRoundTrip(t *testing.T) {
	config := &Config{SessionTicketKey: testTicketKey(), Time: func() time.Time { return time.Unix(1000, 0) }}
	s := &session{
		masterSecret: bytes.Repeat([]byte{0x11}, 48),
		sessionID:    bytes.Repeat([]byte{0x22}, 32),
		cipherSuite:  TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		vers:         VersionTLS12,
		sni:          "example.com",
		timeout:      time.Unix(1000, 0).Add(time.Hour),
	}

	ticket, err := newTicket(config, s)
	if err != nil {
		t.Fatal(err)
	}

	got, ok := decryptTicket(config, ticket, config.time())
	if !ok {
		t.Fatal("expected ticket to decrypt")
	}
	if !bytes.Equal(got.masterSecret, s.masterSecret) {
		t.Fatalf("masterSecret = %x, want %x", got.masterSecret, s.masterSecret)
	}
	if got.sni != s.sni || got.cipherSuite != s.cipherSuite || got.vers != s.vers {
		t.Fatalf("round-tripped session mismatch: %+v", got)
	}
}

func TestTicketRejectsTamperedCiphertext(t *testing.T) {
	config := &Config{SessionTicketKey: testTicketKey(), Time: func() time.Time { return time.Unix(1000, 0) }}
	s := &session{
		masterSecret: bytes.Repeat([]byte{0x11}, 48),
		sessionID:    bytes.Repeat([]byte{0x22}, 32),
		cipherSuite:  TLS_RSA_WITH_AES_128_GCM_SHA256,
		vers:         VersionTLS12,
		timeout:      time.Unix(1000, 0).Add(time.Hour),
	}
	ticket, err := newTicket(config, s)
	if err != nil {
		t.Fatal(err)
	}
	ticket[ticketKeyNameLen+16+1] ^= 0xff // past the 16-byte IV, inside the ciphertext

	if _, ok := decryptTicket(config, ticket, config.time()); ok {
		t.Fatal("expected tampered ticket to fail MAC verification")
	}
}

func TestTicketRejectsExpiredSession(t *testing.T) {
	config := &Config{SessionTicketKey: testTicketKey(), Time: func() time.Time { return time.Unix(1000, 0) }}
	s := &session{
		masterSecret: bytes.Repeat([]byte{0x11}, 48),
		sessionID:    bytes.Repeat([]byte{0x22}, 32),
		cipherSuite:  TLS_RSA_WITH_AES_128_GCM_SHA256,
		vers:         VersionTLS12,
		timeout:      time.Unix(500, 0), // already expired
	}
	ticket, err := newTicket(config, s)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := decryptTicket(config, ticket, config.time()); ok {
		t.Fatal("expected expired session to be rejected")
	}
}

func TestPKCS7PadUnpad(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 31, 32} {
		plaintext := bytes.Repeat([]byte{0xAB}, n)
		padded := pkcs7Pad(plaintext, 16)
		if len(padded)%16 != 0 {
			t.Fatalf("padded length %d not a multiple of 16 for n=%d", len(padded), n)
		}
		got, ok := pkcs7Unpad(padded, 16)
		if !ok {
			t.Fatalf("unpad failed for n=%d", n)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("unpad mismatch for n=%d: got %x want %x", n, got, plaintext)
		}
	}
}

func TestPKCS7UnpadRejectsBadPadding(t *testing.T) {
	bad := bytes.Repeat([]byte{0x01}, 15)
	bad = append(bad, 0x00) // padLen 0 is invalid
	if _, ok := pkcs7Unpad(bad, 16); ok {
		t.Fatal("expected zero padLen to be rejected")
	}
}
