// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"time"
)

// Protocol versions this engine negotiates. TLS 1.3 is out of scope;
// the target is RFC 5246/4346 and RFC 6347 DTLS.
const (
	VersionSSL30 uint16 = 0x0300
	VersionTLS10 uint16 = 0x0301
	VersionTLS11 uint16 = 0x0302
	VersionTLS12 uint16 = 0x0303

	VersionDTLS10 uint16 = 0xfeff
	VersionDTLS12 uint16 = 0xfefd
)

func isDTLS(vers uint16) bool {
	return vers == VersionDTLS10 || vers == VersionDTLS12
}

// recordType is the TLS record content_type
type recordType uint8

const (
	recordTypeChangeCipherSpec recordType = 20
	recordTypeAlert            recordType = 21
	recordTypeHandshake        recordType = 22
	recordTypeApplicationData  recordType = 23
)

// handshakeType is the one-byte msg_type field of a Handshake message.
type handshakeType uint8

const (
	typeHelloRequest       handshakeType = 0
	typeClientHello        handshakeType = 1
	typeServerHello        handshakeType = 2
	typeHelloVerifyRequest handshakeType = 3 // DTLS only, RFC 6347
	typeNewSessionTicket   handshakeType = 4
	typeCertificate        handshakeType = 11
	typeServerKeyExchange  handshakeType = 12
	typeCertificateRequest handshakeType = 13
	typeServerHelloDone    handshakeType = 14
	typeCertificateVerify  handshakeType = 15
	typeClientKeyExchange  handshakeType = 16
	typeFinished           handshakeType = 20
	typeNextProtocol       handshakeType = 67 // draft NPN
)

// CurveID is a named elliptic curve ECDHE.
type CurveID uint16

const (
	CurveP256 CurveID = 23
	CurveP384 CurveID = 24
	CurveP521 CurveID = 25
)

// PointFormat is a wire value from the ec_point_formats extension.
type PointFormat uint8

const (
	PointFormatUncompressed PointFormat = 0
)

// keyExchangeClass and authClass back the cipher suite table's
// key-exchange and authentication classification.
type keyExchangeClass uint8

const (
	kexRSA keyExchangeClass = iota
	kexDHE
	kexECDHE
	kexGOST
)

type authClass uint8

const (
	authRSA authClass = iota
	authDSA
	authECDSA
	authAnonymous
	authGOST
)

// Certificate bundles a leaf certificate, its chain, and the private
// key the engine signs ServerKeyExchange/CertificateVerify with. Actual
// RSA/ECDSA/DSA/GOST signing and X.509 parsing are out of scope and are
// reached only through crypto.Signer / *x509.Certificate.
type Certificate struct {
	Certificate [][]byte
	PrivateKey  crypto.Signer
	Leaf        *x509.Certificate

	// OCSPStaple, if set, is served in response to a status_request
	// extension .
	OCSPStaple []byte

	// SupportedSignatureAlgorithms, if non-nil, restricts which (hash,
	// sig) pairs from the client's signature_algorithms extension this
	// certificate may be used with.
	SupportedSignatureAlgorithms []SignatureScheme
}

// SignatureScheme is a (hash, signature) wire pair from the
// signature_algorithms extension
type SignatureScheme uint16

func (s SignatureScheme) hash() uint8 { return uint8(s >> 8) }
func (s SignatureScheme) sig() uint8  { return uint8(s) }

const (
	hashMD5    uint8 = 1
	hashSHA1   uint8 = 2
	hashSHA256 uint8 = 4
	hashSHA384 uint8 = 5
	hashSHA512 uint8 = 6

	sigRSA   uint8 = 1
	sigDSA   uint8 = 2
	sigECDSA uint8 = 3
)

// GostKeyExchanger is the external collaborator through which GOST VKO
// key agreement reaches the server's certificate private key. GOST
// 34.10-2001 point arithmetic and the VKO derivation itself are out of
// scope; this engine only drives the interface at the right point in
// the handshake.
type GostKeyExchanger interface {
	// VKO derives the 32-byte premaster secret from the peer's
	// transported key blob, the server's certificate key, and an
	// optional ephemeral key the ClientKeyExchange carried.
	VKO(peerBlob []byte, ephemeral []byte) ([]byte, error)
}

// TicketKeyCallback is the key-rotation hook: it may recognize older
// key names and report renew for them. The handshake does not act on
// renew: a session resumed from a ticket is never issued a new one.
type TicketKeyCallback func(keyName [16]byte) (key *TicketKey, renew bool, ok bool)

// TicketKey is the process-wide session ticket key material.
type TicketKey struct {
	Name    [16]byte
	AESKey  [16]byte
	HMACKey [16]byte
}

// ALPNSelector chooses an application protocol given the client's
// advertised list, for the application_layer_protocol_negotiation
// extension.
type ALPNSelector func(protos []string) (string, error)

// ClientAuthType mirrors the verify_mode bits (SSL_VERIFY_PEER,
// SSL_VERIFY_FAIL_IF_NO_PEER_CERT) the CertificateRequest/
// ClientCertificate/CertificateVerify flight is gated on, expressed as
// an enum rather than a flag combination since only the five settings
// below are meaningful.
type ClientAuthType int

const (
	NoClientCert ClientAuthType = iota
	RequestClientCert
	RequireAnyClientCert
	VerifyClientCertIfGiven
	RequireAndVerifyClientCert
)

// CertPoolVerifier is the external collaborator CertStore::verify
// names: chain construction/verification against a trust store and a
// purpose, explicitly out of scope to reimplement here.
type CertPoolVerifier interface {
	Verify(chain []*x509.Certificate, now time.Time) ([][]*x509.Certificate, error)
}

// Config bundles the server's negotiable policy as a struct of typed
// fields and interfaces, the way crypto/tls-style engines express this
// rather than an OpenSSL option-bit mask.
type Config struct {
	GetCertificate func(sni string) (*Certificate, error)

	MinVersion uint16
	MaxVersion uint16

	CipherSuites       []uint16
	PreferServerCipherSuites bool

	CurvePreferences []CurveID

	// SessionCache is the process-wide session cache. Nil disables
	// session_id-based resumption (tickets remain available).
	SessionCache SessionCache

	// Session ticket support.
	TicketKeyCallback TicketKeyCallback
	SessionTicketKey  *TicketKey
	SessionTicketsDisabled bool
	SessionTicketLifetime  time.Duration

	// AllowLegacyRenegotiation accepts a renegotiate Finished hash from
	// a peer that never sent the secure renegotiation extension.
	AllowLegacyRenegotiation bool

	NextProtos   []string
	ALPNSelector ALPNSelector

	SRTPProfiles []uint16

	// CryptoProWorkaround, emits the CryptoPro compatibility
	// blob for suites 0x0080/0x0081.
	CryptoProWorkaround bool

	// RollbackBug accepts the negotiated (rather than client-offered)
	// version inside the RSA premaster secret, the classic
	// SSL_OP_TLS_ROLLBACK_BUG compatibility workaround.
	RollbackBug bool

	// CookieExchange implements SSL_OP_COOKIE_EXCHANGE: an empty DTLS
	// cookie on ClientHello causes the engine to stop after emitting
	// HelloVerifyRequest rather than proceeding blind.
	CookieExchange bool
	CookieCallback func(clientAddr []byte) ([]byte, error)

	GostKeyExchanger GostKeyExchanger

	// ClientAuth controls whether/how a CertificateRequest is sent and
	// the resulting client certificate enforced.
	ClientAuth     ClientAuthType
	ClientCAs      CertPoolVerifier
	ClientCertSigAlgs []SignatureScheme

	Rand RandReader
	Time func() time.Time
}

// RandReader is the randomness source every component draws from
// instead of touching crypto/rand directly.
type RandReader interface {
	Read(p []byte) (n int, err error)
}

// defaultRandReader is the Rng used when Config.Rand is nil.
type defaultRandReader struct{}

func (defaultRandReader) Read(p []byte) (int, error) { return rand.Read(p) }

func (c *Config) time() time.Time {
	if c.Time != nil {
		return c.Time()
	}
	return time.Now()
}

func (c *Config) maxVersion() uint16 {
	if c.MaxVersion != 0 {
		return c.MaxVersion
	}
	return VersionTLS12
}

func (c *Config) minVersion() uint16 {
	if c.MinVersion != 0 {
		return c.MinVersion
	}
	return VersionTLS10
}

func (c *Config) cipherSuites() []uint16 {
	if c.CipherSuites != nil {
		return c.CipherSuites
	}
	ids := make([]uint16, 0, len(cipherSuites))
	for _, s := range cipherSuites {
		if s.flags&suiteDefaultOff == 0 {
			ids = append(ids, s.id)
		}
	}
	return ids
}

func (c *Config) curvePreferences() []CurveID {
	if c.CurvePreferences != nil {
		return c.CurvePreferences
	}
	return []CurveID{CurveP256, CurveP384, CurveP521}
}

// ConnectionState is the subset of the Handshake Context 
// exposed to callers once a handshake completes.
type ConnectionState struct {
	Version                     uint16
	HandshakeComplete           bool
	DidResume                   bool
	CipherSuite                 uint16
	ServerName                  string
	NegotiatedProtocol          string
	NegotiatedProtocolIsMutual  bool
	PeerCertificates            []*x509.Certificate
	VerifiedChains              [][]*x509.Certificate
}
