// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import "testing"

func buildExtensionBlock(t *testing.T, entries ...func(w *Writer)) *Cursor {
	t.Helper()
	w := NewWriter()
	for _, e := range entries {
		e(w)
	}
	return NewCursor(w.MustFinish())
}

func extEntry(typ extensionType, fn func(w *Writer)) func(w *Writer) {
	return func(w *Writer) {
		w.U16(uint16(typ))
		w.U16LengthPrefixed(fn)
	}
}

func TestParseClientExtensionsSNI(t *testing.T) {
	c := buildExtensionBlock(t, extEntry(extServerName, func(w *Writer) {
		w.U16LengthPrefixed(func(w *Writer) {
			w.U8(sniHostNameType)
			w.U16LengthPrefixed(func(w *Writer) { w.Bytes([]byte("example.com")) })
		})
	}))
	m := &clientHelloMsg{}
	if err := parseClientExtensions(c, m); err != nil {
		t.Fatal(err)
	}
	if m.serverName != "example.com" {
		t.Fatalf("serverName = %q, want %q", m.serverName, "example.com")
	}
}

func TestParseClientExtensionsRenegotiationInfo(t *testing.T) {
	c := buildExtensionBlock(t, extEntry(extRenegotiationInfo, func(w *Writer) {
		w.U8LengthPrefixed(func(w *Writer) { w.Bytes([]byte("prior-verify-data")) })
	}))
	m := &clientHelloMsg{}
	if err := parseClientExtensions(c, m); err != nil {
		t.Fatal(err)
	}
	if !m.secureRenegotiationSet {
		t.Fatal("expected secureRenegotiationSet")
	}
	if string(m.secureRenegotiation) != "prior-verify-data" {
		t.Fatalf("secureRenegotiation = %q", m.secureRenegotiation)
	}
}

func TestParseClientExtensionsALPN(t *testing.T) {
	c := buildExtensionBlock(t, extEntry(extALPN, func(w *Writer) {
		w.U16LengthPrefixed(func(w *Writer) {
			w.U8LengthPrefixed(func(w *Writer) { w.Bytes([]byte("h2")) })
			w.U8LengthPrefixed(func(w *Writer) { w.Bytes([]byte("http/1.1")) })
		})
	}))
	m := &clientHelloMsg{}
	if err := parseClientExtensions(c, m); err != nil {
		t.Fatal(err)
	}
	want := []string{"h2", "http/1.1"}
	if len(m.alpnProtocols) != len(want) {
		t.Fatalf("alpnProtocols = %v, want %v", m.alpnProtocols, want)
	}
	for i, p := range want {
		if m.alpnProtocols[i] != p {
			t.Fatalf("alpnProtocols[%d] = %q, want %q", i, m.alpnProtocols[i], p)
		}
	}
}

func TestParseClientExtensionsDuplicateRejected(t *testing.T) {
	entry := extEntry(extECPointFormats, func(w *Writer) {
		w.U8LengthPrefixed(func(w *Writer) { w.U8(0) })
	})
	c := buildExtensionBlock(t, entry, entry)
	m := &clientHelloMsg{}
	if err := parseClientExtensions(c, m); err == nil {
		t.Fatal("expected duplicate extension to be rejected")
	}
}

func TestChooseNextProtocolsALPNSuppressesNPN(t *testing.T) {
	cfg := &Config{NextProtos: []string{"h2", "http/1.1"}}
	if got := chooseNextProtocols(cfg, true, "h2"); got != nil {
		t.Fatalf("expected NPN suppressed when ALPN selected, got %v", got)
	}
	got := chooseNextProtocols(cfg, true, "")
	if len(got) != 2 || got[0] != "h2" {
		t.Fatalf("expected NPN list to be offered, got %v", got)
	}
	if got := chooseNextProtocols(cfg, false, ""); got != nil {
		t.Fatalf("expected nil when client never sent next_proto_neg, got %v", got)
	}
}

func TestChooseALPNNoSelector(t *testing.T) {
	cfg := &Config{}
	proto, err := chooseALPN(cfg, []string{"h2"})
	if err != nil || proto != "" {
		t.Fatalf("expected no-op with no selector, got (%q, %v)", proto, err)
	}
}

func TestChooseALPNSelectorError(t *testing.T) {
	cfg := &Config{ALPNSelector: func(protos []string) (string, error) {
		return "", handshakeError(errPolicy, alertNoApplicationProtocol, "no match")
	}}
	if _, err := chooseALPN(cfg, []string{"h2"}); err == nil {
		t.Fatal("expected selector error to propagate")
	}
}

func TestChooseSRTPProfile(t *testing.T) {
	cfg := &Config{SRTPProfiles: []uint16{5, 1}}
	if got := chooseSRTPProfile(cfg, []uint16{1, 2}); got != 1 {
		t.Fatalf("chooseSRTPProfile = %d, want 1", got)
	}
	if got := chooseSRTPProfile(cfg, []uint16{9}); got != 0 {
		t.Fatalf("chooseSRTPProfile = %d, want 0", got)
	}
}

func TestPaddedExtensionLength(t *testing.T) {
	if got := paddedExtensionLength(300); got != 512-300 {
		t.Fatalf("paddedExtensionLength(300) = %d, want %d", got, 512-300)
	}
	if got := paddedExtensionLength(600); got != 0 {
		t.Fatalf("paddedExtensionLength(600) = %d, want 0", got)
	}
}
