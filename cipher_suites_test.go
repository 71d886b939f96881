// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import "testing"

func TestCipherSuiteByID(t *testing.T) {
	cs := cipherSuiteByID(TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	if cs == nil {
		t.Fatal("expected suite to be found")
	}
	if cs.id != TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256 {
		t.Fatalf("id = 0x%04x, want 0x%04x", cs.id, TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	}
	if cipherSuiteByID(0xffff) != nil {
		t.Fatal("expected unknown suite id to return nil")
	}
}

func TestMutualCipherSuite(t *testing.T) {
	have := []uint16{TLS_RSA_WITH_AES_128_CBC_SHA, TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256}
	if cs := mutualCipherSuite(have, TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256); cs == nil {
		t.Fatal("expected mutual suite to be found")
	}
	if cs := mutualCipherSuite(have, TLS_RSA_WITH_RC4_128_SHA); cs != nil {
		t.Fatal("expected no mutual suite")
	}
}

func TestCipherSuiteClass(t *testing.T) {
	cases := []struct {
		id   uint16
		want keyExchangeClass
	}{
		{TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, kexECDHE},
		{TLS_DHE_RSA_WITH_AES_128_GCM_SHA256, kexDHE},
		{TLS_RSA_WITH_AES_128_CBC_SHA, kexRSA},
		{TLS_GOSTR341001_WITH_28147_CNT_IMIT, kexGOST},
	}
	for _, tc := range cases {
		cs := cipherSuiteByID(tc.id)
		if cs == nil {
			t.Fatalf("suite 0x%04x not found", tc.id)
		}
		if got := cs.class(); got != tc.want {
			t.Errorf("suite 0x%04x class = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestCipherSuiteIsAEAD(t *testing.T) {
	if !cipherSuiteByID(TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256).isAEAD() {
		t.Fatal("expected GCM suite to be AEAD")
	}
	if cipherSuiteByID(TLS_RSA_WITH_AES_128_CBC_SHA).isAEAD() {
		t.Fatal("expected CBC suite not to be AEAD")
	}
}

func TestTLS10MACDeterministic(t *testing.T) {
	m1 := macSHA1(VersionTLS10, []byte("key"))
	m2 := macSHA1(VersionTLS10, []byte("key"))
	seq := make([]byte, 8)
	header := []byte{byte(recordTypeHandshake), 0x03, 0x01, 0x00, 0x05}
	data := []byte("hello")
	out1 := m1.MAC(seq, header, data, nil)
	out2 := m2.MAC(seq, header, data, nil)
	if len(out1) != m1.Size() {
		t.Fatalf("MAC length = %d, want %d", len(out1), m1.Size())
	}
	if string(out1) != string(out2) {
		t.Fatal("MAC is not deterministic for identical inputs")
	}
}
