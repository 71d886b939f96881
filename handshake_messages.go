// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

// This file defines the wire structs for every handshake message type
// the server-side state machine sends or receives, built on the
// Cursor/Writer codec in wire.go. DTLS framing (message_seq,
// fragment_offset/length) is layered on top in dtls.go rather than
// duplicated into each struct.

type clientHelloMsg struct {
	vers                uint16
	random              [32]byte
	sessionID           []byte
	cipherSuites        []uint16
	compressionMethods  []uint8

	serverName       string
	ecPointFormats   []uint8
	supportedCurves  []CurveID
	sigAlgs          []SignatureScheme
	sessionTicket    []byte
	ocspStapling     bool
	nextProtoNeg     bool
	alpnProtocols    []string
	secureRenegotiation       []byte
	secureRenegotiationSet    bool
	srtpProfiles     []uint16

	// raw is the exact bytes of the message body, kept for the
	// handshake transcript hash .
	raw []byte

	// dtlsCookie is the DTLS cookie field, empty on TLS.
	dtlsCookie []byte
}

func (m *clientHelloMsg) unmarshal(body []byte, dtls bool) error {
	m.raw = body
	c := NewCursor(body)

	var vers uint16
	if !c.U16(&vers) {
		return ErrTruncated
	}
	m.vers = vers

	var random []byte
	if !c.Bytes(&random, 32) {
		return ErrTruncated
	}
	copy(m.random[:], random)

	if dtls {
		cookie, ok := c.U8LengthPrefixedBytes()
		if !ok {
			return ErrTruncated
		}
		m.dtlsCookie = cookie
	}

	sid, ok := c.U8LengthPrefixedBytes()
	if !ok {
		return ErrTruncated
	}
	if len(sid) > 32 {
		return handshakeError(errDecode, alertDecodeError, "session_id too long")
	}
	m.sessionID = sid

	suites, ok := c.U16LengthPrefixed()
	if !ok || suites.Empty() {
		return handshakeError(errDecode, alertDecodeError, "empty cipher suite list")
	}
	for !suites.Empty() {
		var id uint16
		if !suites.U16(&id) {
			return handshakeError(errDecode, alertDecodeError, "truncated cipher suite")
		}
		m.cipherSuites = append(m.cipherSuites, id)
	}

	comps, ok := c.U8LengthPrefixedBytes()
	if !ok || len(comps) == 0 {
		return handshakeError(errDecode, alertDecodeError, "empty compression list")
	}
	m.compressionMethods = comps
	sawNull := false
	for _, cm := range comps {
		if cm == 0 {
			sawNull = true
		}
	}
	if !sawNull {
		return handshakeError(errDecode, alertHandshakeFailure, "no null compression offered")
	}

	if c.Empty() {
		return nil // extensions are optional
	}
	ext, ok := c.U16LengthPrefixed()
	if !ok {
		return ErrTruncated
	}
	if !c.Empty() {
		return handshakeError(errDecode, alertDecodeError, "trailing bytes after extensions")
	}
	return parseClientExtensions(ext, m)
}

// helloRequestMsg is the server-initiated nudge to renegotiate, RFC
// 5246 §7.4.1.1: an empty handshake body the client may answer with a
// fresh ClientHello at its convenience (or ignore).
type helloRequestMsg struct{}

func (m *helloRequestMsg) marshal() []byte {
	return wrapHandshake(typeHelloRequest, nil)
}

type serverHelloMsg struct {
	vers              uint16
	random            [32]byte
	sessionID         []byte
	cipherSuite       uint16
	compressionMethod uint8

	ecPointFormats         bool
	secureRenegotiation    []byte
	secureRenegotiationSet bool
	ticketSupported        bool
	ocspStapling           bool
	npnNegotiated          []string
	alpnProtocol           string
	srtpProfile            uint16
	cryptoProBlob          bool

	// plan carries the extension-emission decisions handshake_server.go
	// made while selecting cipher suite, curve and resumption outcome;
	// marshalServerExtensions reads it and nothing else.
	plan *serverExtensionPlan

	raw []byte
}

func (m *serverHelloMsg) marshal() []byte {
	w := NewWriter()
	w.U16(m.vers)
	w.Bytes(m.random[:])
	w.U8LengthPrefixed(func(w *Writer) { w.Bytes(m.sessionID) })
	w.U16(m.cipherSuite)
	w.U8(m.compressionMethod)

	w.U16LengthPrefixed(func(w *Writer) {
		marshalServerExtensions(w, m)
	})

	body := w.MustFinish()
	m.raw = wrapHandshake(typeServerHello, body)
	return m.raw
}

type certificateMsg struct {
	certificates [][]byte
	raw          []byte
}

func (m *certificateMsg) marshal() []byte {
	w := NewWriter()
	w.U24LengthPrefixed(func(w *Writer) {
		for _, cert := range m.certificates {
			w.U24LengthPrefixed(func(w *Writer) { w.Bytes(cert) })
		}
	})
	body := w.MustFinish()
	m.raw = wrapHandshake(typeCertificate, body)
	return m.raw
}

// unmarshal parses a peer Certificate message into its DER-encoded
// chain, leaf first.
func (m *certificateMsg) unmarshal(body []byte) error {
	m.raw = body
	c := NewCursor(body)
	list, ok := c.U24LengthPrefixed()
	if !ok || !c.Empty() {
		return handshakeError(errDecode, alertDecodeError, "bad Certificate message")
	}
	for !list.Empty() {
		sub, ok := list.U24LengthPrefixed()
		if !ok {
			return handshakeError(errDecode, alertDecodeError, "truncated certificate entry")
		}
		raw, ok := sub.Peek(sub.Len())
		if !ok {
			return ErrTruncated
		}
		m.certificates = append(m.certificates, append([]byte(nil), raw...))
	}
	return nil
}

// serverKeyExchangeMsg carries the DHE/ECDHE params-and-signature body
// of; its internal structure
// depends on the key-exchange class and is built directly by
// key_agreement.go, so this wrapper only stores the already-encoded
// body.
type serverKeyExchangeMsg struct {
	key []byte
	raw []byte
}

func (m *serverKeyExchangeMsg) marshal() []byte {
	m.raw = wrapHandshake(typeServerKeyExchange, m.key)
	return m.raw
}

type certificateRequestMsg struct {
	certificateTypes        []uint8
	supportedSignatureAlgorithms []SignatureScheme
	certificateAuthorities   [][]byte
}

// marshal encodes CertificateRequest. The signature_algorithms field
// only exists from TLS 1.2 onward (RFC 5246 §7.4.4); earlier versions
// omit it entirely rather than sending an empty list.
func (m *certificateRequestMsg) marshal(version uint16) []byte {
	w := NewWriter()
	w.U8LengthPrefixed(func(w *Writer) { w.Bytes(m.certificateTypes) })
	if version >= VersionTLS12 && version != VersionDTLS10 {
		w.U16LengthPrefixed(func(w *Writer) {
			for _, s := range m.supportedSignatureAlgorithms {
				w.U8(s.hash())
				w.U8(s.sig())
			}
		})
	}
	w.U16LengthPrefixed(func(w *Writer) {
		for _, ca := range m.certificateAuthorities {
			w.U16LengthPrefixed(func(w *Writer) { w.Bytes(ca) })
		}
	})
	return wrapHandshake(typeCertificateRequest, w.MustFinish())
}

type serverHelloDoneMsg struct{}

func (m *serverHelloDoneMsg) marshal() []byte {
	return wrapHandshake(typeServerHelloDone, nil)
}

// clientKeyExchangeMsg carries the key-exchange-class-specific
// ciphertext/point/bignum body; the class-specific parse happens inside
// key_agreement.go's processClientKeyExchange.
type clientKeyExchangeMsg struct {
	ciphertext []byte
	raw        []byte
}

func (m *clientKeyExchangeMsg) unmarshal(body []byte) error {
	m.raw = body
	// The body is opaque at this layer: RSA carries a u16-length-prefixed
	// encrypted premaster for TLS, a bare blob for SSLv3; DHE/ECDHE carry
	// a single length-prefixed public value. key_agreement.go re-parses
	// per class since only it knows which shape applies.
	m.ciphertext = body
	return nil
}

type certificateVerifyMsg struct {
	hasSignatureAndHash bool
	signatureAlgorithm  SignatureScheme
	signature           []byte
}

func (m *certificateVerifyMsg) unmarshal(body []byte) error {
	c := NewCursor(body)
	if m.hasSignatureAndHash {
		var h, s uint8
		if !c.U8(&h) || !c.U8(&s) {
			return ErrTruncated
		}
		m.signatureAlgorithm = SignatureScheme(uint16(h)<<8 | uint16(s))
	}
	sig, ok := c.U16LengthPrefixedBytes()
	if !ok {
		return ErrTruncated
	}
	if !c.Empty() {
		return handshakeError(errDecode, alertDecodeError, "trailing bytes after signature")
	}
	m.signature = sig
	return nil
}

type finishedMsg struct {
	verifyData []byte
}

func (m *finishedMsg) marshal() []byte {
	return wrapHandshake(typeFinished, m.verifyData)
}

func (m *finishedMsg) unmarshal(body []byte) error {
	m.verifyData = body
	return nil
}

// newSessionTicketMsg is the NewSessionTicket message carrying the
// ticket issued after a full handshake. lifetimeHint is 0 when reusing
// a resumed session's original timeout.
type newSessionTicketMsg struct {
	lifetimeHint uint32
	ticket       []byte
}

func (m *newSessionTicketMsg) marshal() []byte {
	w := NewWriter()
	w.U32(m.lifetimeHint)
	w.U16LengthPrefixed(func(w *Writer) { w.Bytes(m.ticket) })
	return wrapHandshake(typeNewSessionTicket, w.MustFinish())
}

// helloVerifyRequestMsg is the DTLS-only message of RFC 6347 §4.2.1
// that carries the stateless cookie back to the client when
// CookieExchange is set and the ClientHello cookie was empty.
type helloVerifyRequestMsg struct {
	vers   uint16
	cookie []byte
}

func (m *helloVerifyRequestMsg) marshal() []byte {
	w := NewWriter()
	w.U16(m.vers)
	w.U8LengthPrefixed(func(w *Writer) { w.Bytes(m.cookie) })
	return wrapHandshake(typeHelloVerifyRequest, w.MustFinish())
}

// wrapHandshake prefixes body with the 1-byte msg_type + 3-byte length
// header common to every TLS handshake message .
func wrapHandshake(typ handshakeType, body []byte) []byte {
	w := NewWriter()
	w.U8(uint8(typ))
	w.U24(uint32(len(body)))
	w.Bytes(body)
	return w.MustFinish()
}
