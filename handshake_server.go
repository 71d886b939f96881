// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// This file implements the server-side handshake state machine: accept
// through OK/ERROR, ClientHello processing, cipher and curve selection,
// session resumption via both session_id and ticket,
// ServerHello/Certificate/ServerKeyExchange/ServerHelloDone emission,
// ChangeCipherSpec, and Finished verification. It is adapted to Go's
// synchronous call/return style rather than a single re-entered switch
// over an explicit state integer: each step here is a plain function
// that blocks on the underlying net.Conn. No program counter or
// sub-state is saved, so a handshake that stops part-way is not
// re-entered; ErrWouldBlock is never returned.

package tls

import (
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/asn1"
	"io"
	"math/big"
	"net"
	"time"
)

// defaultSessionTicketLifetime is the fallback ticket validity window
// when Config.SessionTicketLifetime is unset
const defaultSessionTicketLifetime = 6 * time.Hour

// hsContext is the Handshake Context of: everything scoped
// to one handshake attempt, discarded (and zeroized) once it reaches
// OK or ERROR.
type hsContext struct {
	c      *Conn
	config *Config

	clientHello *clientHelloMsg
	serverHello *serverHelloMsg

	version uint16
	suite   *cipherSuite
	cert    *Certificate

	serverRandom [32]byte
	sessionID    []byte

	resuming bool
	session  *session

	ka  keyAgreement
	fin finishedHash

	masterSecret []byte

	alpnProtocol string
	npnProtocols []string

	plan serverExtensionPlan

	// clientCertRequested/peerCertificates/verifiedChains back the
	// optional CertificateRequest -> ClientCertificate -> ClientKeyExchange
	// -> CertificateVerify flight.
	clientCertRequested bool
	peerCertificates    []*x509.Certificate
	verifiedChains      [][]*x509.Certificate

	// clientFinishedVerify/serverFinishedVerify cache this handshake's
	// Finished verify_data values so the Conn can use them as the
	// renegotiation_info payload on a subsequent renegotiation.
	clientFinishedVerify []byte
	serverFinishedVerify []byte
}

// send writes an already-framed handshake message and folds its bytes
// into the running transcript hash Must only be called
// after sendServerHello has created hs.fin.
func (hs *hsContext) send(framed []byte) error {
	if err := hs.c.writeHandshakeMessage(framed); err != nil {
		return err
	}
	hs.fin.Write(framed)
	return nil
}

// recv reads one handshake message and folds it into the transcript
// before returning it.
func (hs *hsContext) recv() (handshakeType, []byte, error) {
	typ, body, err := hs.c.readHandshakeMessage()
	if err != nil {
		return 0, nil, err
	}
	hs.fin.Write(wrapHandshake(typ, body))
	return typ, body, nil
}

func (hs *hsContext) randReader() RandReader {
	if hs.config.Rand != nil {
		return hs.config.Rand
	}
	return defaultRandReader{}
}

// Server runs one server-side handshake to completion over conn,
// It returns once the Handshake Context reaches OK (nil
// error, conn usable for application data) or ERROR (conn has already
// had a fatal alert written to it, if possible).
func Server(conn net.Conn, config *Config) (*Conn, error) {
	c := newConn(conn, config, false)
	if err := serverHandshake(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ServerDTLS is Server's DTLS counterpart. Retransmission timers and
// anti-replay sequence-number windows are not implemented here (see
// DESIGN.md's open-question decision); callers needing them must layer
// retransmission above this engine's blocking Read/Write.
func ServerDTLS(conn net.Conn, config *Config) (*Conn, error) {
	c := newConn(conn, config, true)
	if err := serverHandshake(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Renegotiate sends HelloRequest and drives a second handshake to
// completion over an already-established Conn. Secure-renegotiation
// enforcement (checkRenegotiationInfo) rejects the client's response
// if it omits renegotiation_info after the first handshake negotiated
// it; a CCS replayed before the new Finished is rejected as
// unexpected_message by readChangeCipherSpecAndFinished's strict state
// ordering, satisfying the "accepted exactly once" rule.
func Renegotiate(c *Conn) error {
	if !c.handshakeComplete {
		return handshakeError(errProtocol, alertInternalError, "renegotiate called before initial handshake completed")
	}
	m := &helloRequestMsg{}
	if err := c.writeHandshakeMessage(m.marshal()); err != nil {
		return err
	}
	return serverHandshake(c)
}

func serverHandshake(c *Conn) (err error) {
	hs := &hsContext{c: c, config: c.config}
	defer hs.wipe()

	if err = hs.readClientHello(); err != nil {
		return hs.fail(err)
	}
	if c.dtls && hs.clientHello.dtlsCookieRequired(c.config) {
		if err = hs.sendHelloVerifyRequest(); err != nil {
			return hs.fail(err)
		}
		// Cookie-exchange-only accept: the caller issues a fresh
		// ServerDTLS call once the retried ClientHello arrives, the
		// classic SSL_OP_COOKIE_EXCHANGE behavior.
		return nil
	}

	if err = hs.pickVersionAndSuite(); err != nil {
		return hs.fail(err)
	}
	if err = hs.pickSessionOrResume(); err != nil {
		return hs.fail(err)
	}

	if err = hs.sendServerHello(); err != nil {
		return hs.fail(err)
	}

	if hs.resuming {
		if err = hs.configureCipherState(); err != nil {
			return hs.fail(err)
		}
		if err = hs.sendChangeCipherSpecAndFinished(); err != nil {
			return hs.fail(err)
		}
		if err = hs.readChangeCipherSpecAndFinished(); err != nil {
			return hs.fail(err)
		}
	} else {
		if err = hs.sendCertificate(); err != nil {
			return hs.fail(err)
		}
		if err = hs.sendServerKeyExchange(); err != nil {
			return hs.fail(err)
		}
		if err = hs.sendCertificateRequest(); err != nil {
			return hs.fail(err)
		}
		if err = hs.sendServerHelloDone(); err != nil {
			return hs.fail(err)
		}
		if err = hs.readClientCertificate(); err != nil {
			return hs.fail(err)
		}
		if err = hs.readClientKeyExchange(); err != nil {
			return hs.fail(err)
		}
		if err = hs.readCertificateVerify(); err != nil {
			return hs.fail(err)
		}
		if err = hs.readChangeCipherSpecAndFinished(); err != nil {
			return hs.fail(err)
		}
		if err = hs.sendChangeCipherSpecAndFinished(); err != nil {
			return hs.fail(err)
		}
		if err = hs.maybeSendNewSessionTicket(); err != nil {
			return hs.fail(err)
		}
	}

	c.handshakeComplete = true
	c.state = hs.connectionState()
	if hs.clientHello.secureRenegotiationSet {
		c.secureRenegotiation = true
		c.clientVerify = hs.clientFinishedVerify
		c.serverVerify = hs.serverFinishedVerify
	}
	return nil
}

// fail writes a fatal alert (best effort) and returns err's
// single error->alert folding boundary.
func (hs *hsContext) fail(err error) error {
	if ee, ok := err.(*engineError); ok {
		hs.c.sendAlert(ee.Alert())
	}
	return err
}

func (hs *hsContext) wipe() {
	zeroizeAll(hs.masterSecret)
}

// readClientHello reads the first handshake record, which must be a
// ClientHello.
func (hs *hsContext) readClientHello() error {
	typ, body, err := hs.c.readHandshakeMessage()
	if err != nil {
		return err
	}
	if typ != typeClientHello {
		return handshakeError(errProtocol, alertUnexpectedMessage, "expected ClientHello, got %d", typ)
	}
	m := new(clientHelloMsg)
	if err := m.unmarshal(body, hs.c.dtls); err != nil {
		return err
	}
	hs.clientHello = m
	return nil
}

// dtlsCookieRequired implements RFC 6347 §4.2.1's stateless cookie
// exchange: an empty cookie on the first flight means the server must
// reply with HelloVerifyRequest before doing any expensive work.
func (m *clientHelloMsg) dtlsCookieRequired(config *Config) bool {
	return config.CookieExchange && len(m.dtlsCookie) == 0
}

func (hs *hsContext) sendHelloVerifyRequest() error {
	cookie := make([]byte, 20)
	if hs.config.CookieCallback != nil {
		c, err := hs.config.CookieCallback(nil)
		if err != nil {
			return handshakeError(errResource, alertInternalError, "cookie callback: %v", err)
		}
		cookie = c
	} else if _, err := hs.randReader().Read(cookie); err != nil {
		return handshakeError(errResource, alertInternalError, "rng failure: %v", err)
	}
	msg := &helloVerifyRequestMsg{vers: VersionDTLS10, cookie: cookie}
	return hs.c.writeHandshakeMessage(msg.marshal())
}

// pickVersionAndSuite implements's version-then-suite
// negotiation: clamp the client's offer into [MinVersion,MaxVersion],
// then choose the first mutually supported, policy-permitted cipher
// suite, walking the server's preference order when
// PreferServerCipherSuites is set and the client's order otherwise.
func (hs *hsContext) pickVersionAndSuite() error {
	clientVers := hs.clientHello.vers
	minV, maxV := hs.config.minVersion(), hs.config.maxVersion()

	vers := clientVers
	if hs.c.dtls {
		// DTLS version ordering is inverted: 0xfeff (1.0) > 0xfefd (1.2)
		// numerically, so "clamp down" means "clamp up" here.
		if clientVers < maxV {
			vers = maxV
		}
		if clientVers > minV {
			vers = minV
		}
	} else {
		if clientVers > maxV {
			vers = maxV
		}
		if clientVers < minV {
			return handshakeError(errProtocol, alertProtocolVersion, "client version too old")
		}
	}
	hs.version = vers
	hs.c.vers = vers

	var chosen *cipherSuite
	serverPrefs := hs.config.cipherSuites()
	preferServer := hs.config.PreferServerCipherSuites
	if preferServer {
		for _, id := range serverPrefs {
			if chosen = mutualCipherSuite(hs.clientHello.cipherSuites, id); chosen != nil {
				if hs.suiteUsable(chosen) {
					break
				}
				chosen = nil
			}
		}
	} else {
		for _, id := range hs.clientHello.cipherSuites {
			if cs := cipherSuiteByID(id); cs != nil && hs.suiteUsable(cs) && contains(serverPrefs, id) {
				chosen = cs
				break
			}
		}
	}
	if chosen == nil {
		return handshakeError(errPolicy, alertHandshakeFailure, "no mutually supported cipher suite")
	}
	hs.suite = chosen
	return nil
}

func contains(list []uint16, id uint16) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

// suiteUsable rejects suites the negotiated version can't serve:
// TLS1.2-only suites before TLS 1.2 (DTLS 1.0 included), and ECDHE
// suites when the client sent no elliptic_curves list. The server
// certificate's key type is not checked here.
func (hs *hsContext) suiteUsable(cs *cipherSuite) bool {
	if cs.flags&suiteTLS12 != 0 && (hs.version < VersionTLS12 || hs.version == VersionDTLS10) {
		return false
	}
	if cs.flags&suiteECDHE != 0 {
		if len(hs.clientHello.supportedCurves) == 0 {
			return false
		}
	}
	return true
}

// pickSessionOrResume tries both resumption paths: a session_id hit in
// the cache, or a decryptable ticket, both take priority over a full
// handshake.
func (hs *hsContext) pickSessionOrResume() error {
	if _, err := hs.randReader().Read(hs.serverRandom[:]); err != nil {
		return handshakeError(errResource, alertInternalError, "rng failure: %v", err)
	}

	if len(hs.clientHello.sessionTicket) > 0 && !hs.config.SessionTicketsDisabled {
		if s, ok := decryptTicket(hs.config, hs.clientHello.sessionTicket, hs.config.time()); ok {
			if cipherSuiteByID(s.cipherSuite) != nil && !s.expired(hs.config.time()) {
				hs.resumeFrom(s)
				return hs.lookupCertificate()
			}
		}
	}
	if hs.config.SessionCache != nil && len(hs.clientHello.sessionID) > 0 {
		if s, ok := hs.config.SessionCache.lookup(hs.clientHello.sessionID, hs.config.time()); ok {
			hs.resumeFrom(s)
			return hs.lookupCertificate()
		}
	}

	hs.sessionID = make([]byte, 32)
	if _, err := hs.randReader().Read(hs.sessionID); err != nil {
		return handshakeError(errResource, alertInternalError, "rng failure: %v", err)
	}
	return hs.lookupCertificate()
}

func (hs *hsContext) resumeFrom(s *session) {
	hs.resuming = true
	hs.session = s
	hs.sessionID = s.sessionID
	hs.version = s.vers
	hs.c.vers = s.vers
	hs.suite = cipherSuiteByID(s.cipherSuite)
	hs.masterSecret = append([]byte(nil), s.masterSecret...)
}

func (hs *hsContext) lookupCertificate() error {
	if hs.config.GetCertificate == nil {
		return handshakeError(errResource, alertInternalError, "no GetCertificate configured")
	}
	cert, err := hs.config.GetCertificate(hs.clientHello.serverName)
	if err != nil || cert == nil {
		return handshakeError(errPolicy, alertAccessDenied, "no certificate for server name")
	}
	hs.cert = cert
	return nil
}

// sendServerHello builds and writes ServerHello, including every
// extension decision the negotiated ClientHello calls for.
func (hs *hsContext) sendServerHello() error {
	hs.fin = newFinishedHash(hs.version, hs.suite)
	hs.fin.Write(hs.clientHello.raw)

	alpn, err := chooseALPN(hs.config, hs.clientHello.alpnProtocols)
	if err != nil {
		return err
	}
	hs.alpnProtocol = alpn
	hs.npnProtocols = chooseNextProtocols(hs.config, hs.clientHello.nextProtoNeg, alpn)

	srtp := chooseSRTPProfile(hs.config, hs.clientHello.srtpProfiles)

	if err := hs.checkRenegotiationInfo(); err != nil {
		return err
	}

	var renegotiate []byte
	if hs.c.handshakeComplete {
		// Renegotiating: echo back exactly the previous handshake's
		// client||server Finished values.
		renegotiate = append(append([]byte{}, hs.c.clientVerify...), hs.c.serverVerify...)
	} else if hs.clientHello.secureRenegotiationSet || hs.config.AllowLegacyRenegotiation {
		renegotiate = []byte{} // initial handshake: empty renegotiated_connection
	}

	plan := &serverExtensionPlan{
		echoServerName:   hs.clientHello.serverName != "",
		ecPointFormats:   len(hs.clientHello.ecPointFormats) > 0 && hs.suite.flags&suiteECDHE != 0,
		renegotiate:      renegotiate,
		newSessionTicket: !hs.resuming && !hs.config.SessionTicketsDisabled && len(hs.clientHello.sessionTicket) == 0 && hs.clientHello.ticketExtensionSeen(),
		ocspStapling:     hs.clientHello.ocspStapling && hs.cert.OCSPStaple != nil,
		srtpProfile:      srtp,
		npnProtocols:     hs.npnProtocols,
		alpnProtocol:     hs.alpnProtocol,
		cryptoProBlob:    hs.config.CryptoProWorkaround && isCryptoProSuite(hs.suite.id),
	}
	hs.plan = *plan

	m := &serverHelloMsg{
		vers:              hs.version,
		random:            hs.serverRandom,
		sessionID:         hs.sessionID,
		cipherSuite:       hs.suite.id,
		compressionMethod: 0,
		plan:              plan,
	}
	hs.serverHello = m
	return hs.send(m.marshal())
}

// checkRenegotiationInfo enforces RFC 5746 §3.7: a server that
// completed a prior handshake on this Conn with secure renegotiation
// refuses a ClientHello that omits the extension, and any ClientHello
// that does carry it on a renegotiation must echo exactly the previous
// client||server Finished values.
func (hs *hsContext) checkRenegotiationInfo() error {
	if !hs.c.handshakeComplete {
		return nil
	}
	if !hs.c.secureRenegotiation {
		if !hs.config.AllowLegacyRenegotiation {
			return handshakeError(errProtocol, alertHandshakeFailure, "renegotiation attempted without prior secure renegotiation")
		}
		return nil
	}
	if !hs.clientHello.secureRenegotiationSet {
		return handshakeError(errProtocol, alertHandshakeFailure, "renegotiation_info missing on renegotiation")
	}
	expected := append(append([]byte{}, hs.c.clientVerify...), hs.c.serverVerify...)
	if subtle.ConstantTimeCompare(hs.clientHello.secureRenegotiation, expected) != 1 {
		return handshakeError(errProtocol, alertHandshakeFailure, "renegotiation_info mismatch")
	}
	return nil
}

func isCryptoProSuite(id uint16) bool {
	return id == TLS_GOSTR341094_WITH_28147_CNT_IMIT || id == TLS_GOSTR341001_WITH_28147_CNT_IMIT
}

// ticketExtensionSeen reports whether the client advertised
// session_ticket support at all (an empty ticket counts as "I support
// tickets but have none yet").
func (m *clientHelloMsg) ticketExtensionSeen() bool {
	return m.sessionTicket != nil
}

func (hs *hsContext) sendCertificate() error {
	m := &certificateMsg{certificates: hs.cert.Certificate}
	return hs.send(m.marshal())
}

func (hs *hsContext) sendServerKeyExchange() error {
	hs.ka = hs.suite.ka(hs.version)
	ske, err := hs.ka.generateServerKeyExchange(hs.config, hs.cert, hs)
	if err != nil {
		return err
	}
	if ske == nil {
		return nil
	}
	return hs.send(ske.marshal())
}

func (hs *hsContext) sendServerHelloDone() error {
	m := &serverHelloDoneMsg{}
	return hs.send(m.marshal())
}

// sendCertificateRequest implements the optional CertificateRequest
// message: omitted entirely for NoClientCert, otherwise names the
// certificate types and (TLS 1.2) signature_algorithms this server
// accepts. The certificate_authorities list is sent empty.
func (hs *hsContext) sendCertificateRequest() error {
	if hs.config.ClientAuth == NoClientCert {
		return nil
	}
	hs.clientCertRequested = true

	m := &certificateRequestMsg{
		certificateTypes: []uint8{1, 64}, // rsa_sign(1), ecdsa_sign(64)
	}
	if hs.version >= VersionTLS12 && hs.version != VersionDTLS10 {
		algs := hs.config.ClientCertSigAlgs
		if len(algs) == 0 {
			algs = []SignatureScheme{
				SignatureScheme(uint16(hashSHA256)<<8 | uint16(sigRSA)),
				SignatureScheme(uint16(hashSHA256)<<8 | uint16(sigECDSA)),
				SignatureScheme(uint16(hashSHA1)<<8 | uint16(sigRSA)),
				SignatureScheme(uint16(hashSHA1)<<8 | uint16(sigECDSA)),
			}
		}
		m.supportedSignatureAlgorithms = algs
	}
	return hs.send(m.marshal(hs.version))
}

// readClientCertificate reads the optional ClientCertificate message.
// A client that was asked for a certificate and sends an empty chain
// is accepted unless the server's policy requires one; the absence of
// a certificate means no CertificateVerify follows either.
func (hs *hsContext) readClientCertificate() error {
	if !hs.clientCertRequested {
		return nil
	}
	typ, body, err := hs.recv()
	if err != nil {
		return err
	}
	if typ != typeCertificate {
		return handshakeError(errProtocol, alertUnexpectedMessage, "expected Certificate, got %d", typ)
	}
	m := new(certificateMsg)
	if err := m.unmarshal(body); err != nil {
		return err
	}
	if len(m.certificates) == 0 {
		switch hs.config.ClientAuth {
		case RequireAnyClientCert, RequireAndVerifyClientCert:
			return handshakeError(errPolicy, alertHandshakeFailure, "client certificate required")
		}
		return nil
	}

	certs := make([]*x509.Certificate, 0, len(m.certificates))
	for _, raw := range m.certificates {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return handshakeError(errDecode, alertBadCertificate, "bad client certificate: %v", err)
		}
		certs = append(certs, cert)
	}
	hs.peerCertificates = certs

	if hs.config.ClientAuth == RequireAndVerifyClientCert || hs.config.ClientAuth == VerifyClientCertIfGiven {
		if hs.config.ClientCAs == nil {
			return handshakeError(errResource, alertInternalError, "no ClientCAs configured to verify client certificate")
		}
		chains, err := hs.config.ClientCAs.Verify(certs, hs.config.time())
		if err != nil {
			return handshakeError(errPolicy, alertUnknownCA, "client certificate verify failed: %v", err)
		}
		hs.verifiedChains = chains
	}
	return nil
}

// readCertificateVerify reads and verifies the client's signature over
// the running transcript, only when a non-empty client certificate
// was actually presented (static-DH-style suites with no signing
// certificate skip straight past this state).
func (hs *hsContext) readCertificateVerify() error {
	if len(hs.peerCertificates) == 0 {
		return nil
	}
	leaf := hs.peerCertificates[0]

	// Read directly, not via hs.recv(): the transcript CertificateVerify
	// signs is everything up to but excluding this message, so it must
	// be folded in only after the digest below is computed (mirrors
	// readChangeCipherSpecAndFinished's Finished handling).
	typ, body, err := hs.c.readHandshakeMessage()
	if err != nil {
		return err
	}
	if typ != typeCertificateVerify {
		return handshakeError(errProtocol, alertUnexpectedMessage, "expected CertificateVerify, got %d", typ)
	}

	useSigAlgs := hs.version >= VersionTLS12 && hs.version != VersionDTLS10
	m := &certificateVerifyMsg{hasSignatureAndHash: useSigAlgs}

	// GOST clients may send a bare 64-byte signature with no
	// (hash,sig)/length prefix at all; detected by length alone, per
	// the legacy compatibility note in the key-exchange section.
	if len(body) == 64 {
		return handshakeError(errPolicy, alertInternalError, "gost CertificateVerify not supported: no GOST signature verifier configured")
	}
	if err := m.unmarshal(body); err != nil {
		return err
	}

	pub := leaf.PublicKey
	var digest []byte
	var cryptoHash crypto.Hash
	if useSigAlgs {
		cryptoHash = hashForScheme(m.signatureAlgorithm)
		h := cryptoHash.New()
		h.Write(hs.fin.buffer)
		digest = h.Sum(nil)
	}

	switch k := pub.(type) {
	case *rsa.PublicKey:
		if !useSigAlgs {
			digest = hs.fin.hashForClientCertificate(sigRSA, 0)
			cryptoHash = crypto.MD5SHA1
		}
		if err := rsa.VerifyPKCS1v15(k, cryptoHash, digest, m.signature); err != nil {
			return handshakeError(errCrypto, alertDecryptError, "client CertificateVerify: %v", err)
		}
	case *ecdsa.PublicKey:
		if !useSigAlgs {
			digest = hs.fin.hashForClientCertificate(sigECDSA, 0)
		}
		var sig struct{ R, S *big.Int }
		if _, err := asn1.Unmarshal(m.signature, &sig); err != nil {
			return handshakeError(errDecode, alertDecodeError, "bad ECDSA signature encoding")
		}
		if !ecdsa.Verify(k, digest, sig.R, sig.S) {
			return handshakeError(errCrypto, alertDecryptError, "client CertificateVerify: ECDSA verify failed")
		}
	case *dsa.PublicKey:
		if !useSigAlgs {
			digest = hs.fin.hashForClientCertificate(sigDSA, 0)
		}
		var sig struct{ R, S *big.Int }
		if _, err := asn1.Unmarshal(m.signature, &sig); err != nil {
			return handshakeError(errDecode, alertDecodeError, "bad DSA signature encoding")
		}
		if !dsa.Verify(k, digest, sig.R, sig.S) {
			return handshakeError(errCrypto, alertDecryptError, "client CertificateVerify: DSA verify failed")
		}
	default:
		return handshakeError(errPolicy, alertUnsupportedCertificate, "unsupported client certificate key type")
	}
	hs.fin.Write(wrapHandshake(typ, body))
	return nil
}

// hashForScheme maps a negotiated signature_algorithms entry to the
// crypto.Hash CertificateVerify was signed with.
func hashForScheme(s SignatureScheme) crypto.Hash {
	switch s.hash() {
	case hashSHA384:
		return crypto.SHA384
	case hashSHA512:
		return crypto.SHA512
	case hashSHA1:
		return crypto.SHA1
	default:
		return crypto.SHA256
	}
}

func (hs *hsContext) readClientKeyExchange() error {
	typ, body, err := hs.recv()
	if err != nil {
		return err
	}
	if typ != typeClientKeyExchange {
		return handshakeError(errProtocol, alertUnexpectedMessage, "expected ClientKeyExchange, got %d", typ)
	}
	m := new(clientKeyExchangeMsg)
	if err := m.unmarshal(body); err != nil {
		return err
	}
	preMasterSecret, err := hs.ka.processClientKeyExchange(hs.config, hs.cert, m, hs)
	if err != nil {
		return err
	}
	hs.masterSecret = masterFromPreMasterSecret(hs.version, hs.suite, preMasterSecret, hs.clientHello.random[:], hs.serverRandom[:])
	zeroize(preMasterSecret)
	return hs.configureCipherState()
}

// configureCipherState derives the key_block and installs the pending
// (not-yet-active) read/write cipher state's key schedule.
func (hs *hsContext) configureCipherState() error {
	suite := hs.suite
	clientMAC, serverMAC, clientKey, serverKey, clientIV, serverIV := keysFromMasterSecret(
		hs.version, suite, hs.masterSecret, hs.clientHello.random[:], hs.serverRandom[:],
		suite.macLen, suite.keyLen, suite.ivLen)

	if suite.aead != nil {
		hs.c.in.nextAead = suite.aead(clientKey, clientIV)
		hs.c.out.nextAead = suite.aead(serverKey, serverIV)
	} else {
		hs.c.in.nextCipher = suite.cipher(clientKey, clientIV, true)
		hs.c.out.nextCipher = suite.cipher(serverKey, serverIV, false)
		hs.c.in.nextMac = suite.mac(hs.version, clientMAC)
		hs.c.out.nextMac = suite.mac(hs.version, serverMAC)
	}
	return nil
}

func (hs *hsContext) readChangeCipherSpecAndFinished() error {
	typ, body, err := hs.c.readRawRecord()
	if err != nil {
		return err
	}
	if typ != recordTypeChangeCipherSpec || len(body) != 1 || body[0] != 1 {
		return handshakeError(errProtocol, alertUnexpectedMessage, "expected ChangeCipherSpec")
	}
	hs.c.in.changeCipherSpec()

	ftyp, fbody, err := hs.c.readHandshakeMessage()
	if err != nil {
		return err
	}
	if ftyp != typeFinished {
		return handshakeError(errProtocol, alertUnexpectedMessage, "expected Finished, got %d", ftyp)
	}
	fm := new(finishedMsg)
	fm.unmarshal(fbody)

	// verify_data covers every handshake message up to but excluding
	// this Finished, so the comparison must run before the message is
	// folded into the transcript.
	expected := hs.fin.clientSum(hs.suite, hs.masterSecret)
	if subtle.ConstantTimeCompare(expected, fm.verifyData) != 1 {
		return handshakeError(errCrypto, alertDecryptError, "Finished verify_data mismatch")
	}
	hs.fin.Write(wrapHandshake(ftyp, fbody))
	hs.clientFinishedVerify = append([]byte(nil), fm.verifyData...)
	return nil
}

func (hs *hsContext) sendChangeCipherSpecAndFinished() error {
	if err := hs.c.writeRawRecord(recordTypeChangeCipherSpec, []byte{1}); err != nil {
		return err
	}
	hs.c.out.changeCipherSpec()

	verifyData := hs.fin.serverSum(hs.suite, hs.masterSecret)
	m := &finishedMsg{verifyData: verifyData}
	if err := hs.send(m.marshal()); err != nil {
		return err
	}
	hs.serverFinishedVerify = append([]byte(nil), verifyData...)

	if !hs.resuming {
		hs.saveSession()
	}
	return nil
}

// saveSession records the just-completed full handshake's session on
// hs (for maybeSendNewSessionTicket) and, when a SessionCache is
// configured, inserts it there so a later ClientHello's session_id can
// resume it.
func (hs *hsContext) saveSession() {
	s := &session{
		masterSecret:   append([]byte(nil), hs.masterSecret...),
		sessionID:      append([]byte(nil), hs.sessionID...),
		cipherSuite:    hs.suite.id,
		vers:           hs.version,
		sni:            hs.clientHello.serverName,
		ecPointFormats: hs.clientHello.ecPointFormats,
		ellipticCurves: hs.clientHello.supportedCurves,
		timeout:        hs.config.time().Add(ticketLifetime(hs.config)),
	}
	hs.session = s
	if hs.config.SessionCache != nil {
		hs.config.SessionCache.insert(s)
	}
}

// maybeSendNewSessionTicket implements: a fresh
// handshake that advertised session_ticket support gets an encrypted
// ticket instead of (or alongside) a session_id cache entry.
func (hs *hsContext) maybeSendNewSessionTicket() error {
	if !hs.plan.newSessionTicket {
		return nil
	}
	s := hs.session
	if s == nil {
		return nil
	}
	ticket, err := newTicket(hs.config, s)
	if err != nil {
		return handshakeError(errResource, alertInternalError, "ticket: %v", err)
	}
	lifetime := uint32(ticketLifetime(hs.config).Seconds())
	m := &newSessionTicketMsg{lifetimeHint: lifetime, ticket: ticket}
	return hs.c.writeHandshakeMessage(m.marshal())
}

func ticketLifetime(config *Config) time.Duration {
	if config.SessionTicketLifetime > 0 {
		return config.SessionTicketLifetime
	}
	return defaultSessionTicketLifetime
}

func (hs *hsContext) connectionState() ConnectionState {
	return ConnectionState{
		Version:            hs.version,
		HandshakeComplete:  true,
		DidResume:          hs.resuming,
		CipherSuite:        hs.suite.id,
		ServerName:         hs.clientHello.serverName,
		NegotiatedProtocol: firstNonEmpty(hs.alpnProtocol, firstOf(hs.npnProtocols)),
		PeerCertificates:   hs.peerCertificates,
		VerifiedChains:     hs.verifiedChains,
	}
}

func firstOf(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// --- Conn-level helpers used only by the handshake, kept here rather
// than conn.go since they're part of the Handshake Context's protocol,
// not the record layer's framing. ---

func (c *Conn) readHandshakeMessage() (handshakeType, []byte, error) {
	typ, payload, err := c.readRecord()
	if err != nil {
		return 0, nil, err
	}
	if typ == recordTypeAlert {
		return 0, nil, decodeAlert(payload)
	}
	if typ != recordTypeHandshake {
		return 0, nil, handshakeError(errProtocol, alertUnexpectedMessage, "expected handshake record, got type %d", typ)
	}
	if c.dtls {
		msgType, seq, body, err := dtlsUnwrapHandshake(payload)
		if err != nil {
			return 0, nil, err
		}
		if msgType == typeClientHello {
			// The ClientHello retried after HelloVerifyRequest legitimately
			// repeats message_seq 0; every later message must be in order.
			c.dtlsRecvSeq = seq + 1
		} else if err := c.checkRecvSeq(seq); err != nil {
			return 0, nil, err
		}
		return msgType, body, nil
	}
	if len(payload) < 4 {
		return 0, nil, ErrTruncated
	}
	msgType := handshakeType(payload[0])
	length := int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	if 4+length > len(payload) {
		return 0, nil, ErrTruncated
	}
	body := payload[4 : 4+length]
	return msgType, body, nil
}

// writeHandshakeMessage takes an already TLS-framed message (type + u24
// length + body, the shape every marshal() in handshake_messages.go
// produces) and writes it as a record. Over DTLS it is re-framed with
// the message_seq/fragment_offset/fragment_length header first.
func (c *Conn) writeHandshakeMessage(framed []byte) error {
	if c.dtls {
		if len(framed) < 4 {
			return handshakeError(errResource, alertInternalError, "short handshake message")
		}
		typ := handshakeType(framed[0])
		body := framed[4:]
		seq := uint16(0)
		if typ != typeHelloVerifyRequest {
			seq = c.nextSendSeq()
		}
		framed = dtlsWrapHandshake(typ, body, seq)
	}
	return c.writeRecord(recordTypeHandshake, framed)
}

func (c *Conn) readRawRecord() (recordType, []byte, error) {
	return c.readRecord()
}

func (c *Conn) writeRawRecord(typ recordType, data []byte) error {
	return c.writeRecord(typ, data)
}

func (c *Conn) sendAlert(al alert) {
	msg := []byte{byte(al.level()), byte(al)}
	_ = c.writeRecord(recordTypeAlert, msg)
}

func decodeAlert(payload []byte) error {
	if len(payload) != 2 {
		return handshakeError(errDecode, alertDecodeError, "malformed alert")
	}
	al := alert(payload[1])
	if alertLevel(payload[0]) == alertLevelWarning && al == alertCloseNotify {
		return io.EOF
	}
	return al
}
