// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// This file implements the extension engine: parsing the ClientHello
// extension block and emitting the ServerHello one.

package tls

import (
	"strings"

	"golang.org/x/net/idna"
)

type extensionType uint16

const (
	extServerName           extensionType = 0
	extStatusRequest        extensionType = 5
	extSupportedCurves      extensionType = 10
	extECPointFormats       extensionType = 11
	extSignatureAlgorithms  extensionType = 13
	extUseSRTP              extensionType = 14
	extALPN                 extensionType = 16
	extSessionTicket        extensionType = 35
	extNextProtoNeg         extensionType = 13172 // 0x3374, draft-agl-tls-nextprotoneg
	extRenegotiationInfo    extensionType = 0xff01
	extPadding              extensionType = 21
)

const (
	sniHostNameType  uint8 = 0
	dangerZoneLow          = 256
	dangerZoneHigh         = 511
)

// parseClientExtensions walks the ClientHello extension block.
// Unknown extensions are silently ignored; a recognized
// extension appearing twice, or a signature_algorithms body whose
// inner length doesn't match its outer length, is a fatal decode error.
func parseClientExtensions(c *Cursor, m *clientHelloMsg) error {
	seen := map[extensionType]bool{}

	for !c.Empty() {
		var typ uint16
		if !c.U16(&typ) {
			return ErrTruncated
		}
		body, ok := c.U16LengthPrefixed()
		if !ok {
			return ErrTruncated
		}
		et := extensionType(typ)
		if seen[et] {
			switch et {
			case extServerName, extECPointFormats, extSupportedCurves, extSessionTicket,
				extSignatureAlgorithms, extStatusRequest, extNextProtoNeg, extALPN,
				extRenegotiationInfo, extUseSRTP:
				return handshakeError(errDecode, alertDecodeError, "duplicate extension %d", typ)
			}
		}
		seen[et] = true

		switch et {
		case extServerName:
			if err := parseServerNameExtension(body, m); err != nil {
				return err
			}
		case extECPointFormats:
			formats, ok := body.U8LengthPrefixedBytes()
			if !ok || !body.Empty() {
				return handshakeError(errDecode, alertDecodeError, "bad ec_point_formats")
			}
			m.ecPointFormats = formats
		case extSupportedCurves:
			list, ok := body.U16LengthPrefixed()
			if !ok || !body.Empty() {
				return handshakeError(errDecode, alertDecodeError, "bad elliptic_curves")
			}
			for !list.Empty() {
				var id uint16
				if !list.U16(&id) {
					return handshakeError(errDecode, alertDecodeError, "truncated elliptic_curves")
				}
				m.supportedCurves = append(m.supportedCurves, CurveID(id))
			}
		case extSessionTicket:
			m.sessionTicket = []byte(body.s)
		case extSignatureAlgorithms:
			list, ok := body.U16LengthPrefixed()
			if !ok || !body.Empty() || list.Empty() {
				return handshakeError(errDecode, alertDecodeError, "bad signature_algorithms")
			}
			for !list.Empty() {
				var h, s uint8
				if !list.U8(&h) || !list.U8(&s) {
					return handshakeError(errDecode, alertDecodeError, "truncated signature_algorithms")
				}
				m.sigAlgs = append(m.sigAlgs, SignatureScheme(uint16(h)<<8|uint16(s)))
			}
		case extStatusRequest:
			// Body format (type byte + responder IDs + extensions) is
			// recorded only as "present"; OCSP responder-list detail is
			// not needed to decide whether to staple.
			if body.Empty() {
				return handshakeError(errDecode, alertDecodeError, "empty status_request")
			}
			m.ocspStapling = true
		case extNextProtoNeg:
			if !body.Empty() {
				return handshakeError(errDecode, alertDecodeError, "non-empty next_proto_neg")
			}
			m.nextProtoNeg = true
		case extALPN:
			list, ok := body.U16LengthPrefixed()
			if !ok || !body.Empty() {
				return handshakeError(errDecode, alertDecodeError, "bad alpn")
			}
			for !list.Empty() {
				proto, ok := list.U8LengthPrefixedBytes()
				if !ok || len(proto) == 0 {
					return handshakeError(errDecode, alertDecodeError, "bad alpn protocol")
				}
				m.alpnProtocols = append(m.alpnProtocols, string(proto))
			}
		case extRenegotiationInfo:
			data, ok := body.U8LengthPrefixedBytes()
			if !ok || !body.Empty() {
				return handshakeError(errDecode, alertDecodeError, "bad renegotiation_info")
			}
			m.secureRenegotiation = data
			m.secureRenegotiationSet = true
		case extUseSRTP:
			list, ok := body.U16LengthPrefixed()
			if !ok {
				return handshakeError(errDecode, alertDecodeError, "bad use_srtp")
			}
			for !list.Empty() {
				var p uint16
				if !list.U16(&p) {
					return handshakeError(errDecode, alertDecodeError, "truncated use_srtp")
				}
				m.srtpProfiles = append(m.srtpProfiles, p)
			}
			// MKI field ignored: not used server-side here.
		default:
			// Unknown extensions (and extPadding) are silently ignored.
		}
	}
	return nil
}

// parseServerNameExtension implements server_name: only the first
// type-0 entry matters, and its body is an IDNA-normalized UTF-8
// hostname with no embedded NUL.
func parseServerNameExtension(body *Cursor, m *clientHelloMsg) error {
	list, ok := body.U16LengthPrefixed()
	if !ok || !body.Empty() {
		return handshakeError(errDecode, alertDecodeError, "bad server_name")
	}
	for !list.Empty() {
		var nameType uint8
		if !list.U8(&nameType) {
			return handshakeError(errDecode, alertDecodeError, "truncated server_name")
		}
		name, ok := list.U16LengthPrefixedBytes()
		if !ok {
			return handshakeError(errDecode, alertDecodeError, "truncated server_name entry")
		}
		if nameType != sniHostNameType || m.serverName != "" {
			continue
		}
		if len(name) == 0 || len(name) > 255 || strings.ContainsRune(string(name), 0) {
			return handshakeError(errDecode, alertDecodeError, "invalid server_name")
		}
		normalized, err := idna.Lookup.ToASCII(string(name))
		if err != nil {
			return handshakeError(errProtocol, alertUnrecognizedName, "server_name: %v", err)
		}
		m.serverName = normalized
	}
	return nil
}

// serverExtensionPlan is populated by handshake_server.go before
// marshalServerExtensions runs; it is the set of "whether to emit this
// extension" decisions the ServerHello needs.
type serverExtensionPlan struct {
	echoServerName    bool
	ecPointFormats    bool
	renegotiate       []byte // client Finished ‖ server Finished, or empty on initial handshake
	newSessionTicket  bool
	ocspStapling      bool
	srtpProfile       uint16
	npnProtocols      []string
	alpnProtocol      string
	cryptoProBlob     bool
	clientHelloLength int // for the danger-zone padding workaround
}

// marshalServerExtensions writes back the ServerHello extension block,
// including the CryptoPro compatibility blob. It writes no padding
// extension: the danger-zone size is only computed by
// paddedExtensionLength, which is not called here, and
// plan.clientHelloLength is not read.
func marshalServerExtensions(w *Writer, m *serverHelloMsg) {
	plan := m.plan
	if plan == nil {
		return
	}

	if plan.echoServerName {
		writeExtension(w, extServerName, func(w *Writer) {})
	}
	if plan.renegotiate != nil {
		writeExtension(w, extRenegotiationInfo, func(w *Writer) {
			w.U8LengthPrefixed(func(w *Writer) { w.Bytes(plan.renegotiate) })
		})
	}
	if plan.ecPointFormats {
		writeExtension(w, extECPointFormats, func(w *Writer) {
			w.U8LengthPrefixed(func(w *Writer) { w.U8(uint8(PointFormatUncompressed)) })
		})
	}
	if plan.newSessionTicket {
		writeExtension(w, extSessionTicket, func(w *Writer) {})
	}
	if plan.ocspStapling {
		writeExtension(w, extStatusRequest, func(w *Writer) {})
	}
	if plan.srtpProfile != 0 {
		writeExtension(w, extUseSRTP, func(w *Writer) {
			w.U16LengthPrefixed(func(w *Writer) { w.U16(plan.srtpProfile) })
			w.U8LengthPrefixed(func(w *Writer) {}) // empty MKI
		})
	}
	if len(plan.alpnProtocol) > 0 {
		writeExtension(w, extALPN, func(w *Writer) {
			w.U16LengthPrefixed(func(w *Writer) {
				w.U8LengthPrefixed(func(w *Writer) { w.Bytes([]byte(plan.alpnProtocol)) })
			})
		})
	} else if len(plan.npnProtocols) > 0 {
		// NPN is only emitted when ALPN did not select a protocol: ALPN
		// takes priority and suppresses NPN.
		writeExtension(w, extNextProtoNeg, func(w *Writer) {
			for _, p := range plan.npnProtocols {
				w.U8LengthPrefixed(func(w *Writer) { w.Bytes([]byte(p)) })
			}
		})
	}
	if plan.cryptoProBlob {
		writeExtension(w, extensionType(0xfde8), func(w *Writer) {
			// CryptoPro compatibility blob: a fixed DER sequence of
			// three GOST OIDs (1.2.643.2.2.9, .22 and .23), the legacy
			// extension body t1_lib.c emits for suites 0x0080/0x0081
			// behind the workaround flag.
			w.Bytes(cryptoProCompatBlob)
		})
	}
}

// cryptoProCompatBlob is the fixed legacy extension body emitted for
// CryptoPro GOST clients.
var cryptoProCompatBlob = []byte{
	0x30, 0x1e, 0x30, 0x08, 0x06, 0x06, 0x2a, 0x85,
	0x03, 0x02, 0x02, 0x09, 0x30, 0x08, 0x06, 0x06,
	0x2a, 0x85, 0x03, 0x02, 0x02, 0x16, 0x30, 0x08,
	0x06, 0x06, 0x2a, 0x85, 0x03, 0x02, 0x02, 0x17,
}

func writeExtension(w *Writer, typ extensionType, fn func(*Writer)) {
	w.U16(uint16(typ))
	w.U16LengthPrefixed(fn)
}

// paddedExtensionLength implements the F5 "danger zone" workaround: if
// writing the extensions so far would leave the overall ClientHello
// length in [256,511], a padding extension is appended to push it to
// >=512. Only relevant when this engine is acting behind a forwarding
// proxy that itself emits ClientHellos (not exercised server-side, but
// kept as a client-safe helper alongside the server-side parsing).
func paddedExtensionLength(clientHelloLen int) int {
	if clientHelloLen >= dangerZoneLow && clientHelloLen <= dangerZoneHigh {
		return dangerZoneHigh + 1 - clientHelloLen
	}
	return 0
}

// chooseALPN runs the server's ALPNSelector over the client's list.
func chooseALPN(cfg *Config, offered []string) (string, error) {
	if cfg.ALPNSelector == nil || len(offered) == 0 {
		return "", nil
	}
	proto, err := cfg.ALPNSelector(offered)
	if err != nil {
		return "", handshakeError(errPolicy, alertNoApplicationProtocol, "alpn: %v", err)
	}
	return proto, nil
}

// chooseNextProtocols resolves the open question: ALPN, when
// selected, silently suppresses NPN — npnSeen alone never triggers NPN
// emission if alpnSelected is non-empty.
func chooseNextProtocols(cfg *Config, npnSeen bool, alpnSelected string) []string {
	if alpnSelected != "" || !npnSeen || len(cfg.NextProtos) == 0 {
		return nil
	}
	return cfg.NextProtos
}

// chooseSRTPProfile intersects the client's offered list with the
// server's configured profiles, in order of server preference.
func chooseSRTPProfile(cfg *Config, offered []uint16) uint16 {
	for _, want := range cfg.SRTPProfiles {
		for _, have := range offered {
			if want == have {
				return want
			}
		}
	}
	return 0
}
