// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// This file implements the four keyAgreement classes "Key
// exchange" names: RSA key transport with constant-time Bleichenbacher
// masking, finite-field DHE, named-curve ECDHE, and GOST VKO dispatched
// through the external GostKeyExchanger. Each type is instantiated once
// per handshake (cipher_suites.go's rsaKA/dheRSAKA/ecdheRSAKA/
// ecdheECDSAKA/gostKA) and so may carry state between
// generateServerKeyExchange and processClientKeyExchange.

package tls

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/asn1"
	"io"
	"math/big"
)

// rsaKeyAgreement is plain RSA key transport, RFC 5246 §7.4.7.1: no
// ServerKeyExchange, and ClientKeyExchange carries an RSA-encrypted
// PreMasterSecret the server must decrypt without ever branching on
// whether decryption or the embedded version succeeded, for
// Bleichenbacher resistance.
type rsaKeyAgreement struct{}

func (ka *rsaKeyAgreement) generateServerKeyExchange(config *Config, cert *Certificate, hs *hsContext) (*serverKeyExchangeMsg, error) {
	return nil, nil
}

func (ka *rsaKeyAgreement) processClientKeyExchange(config *Config, cert *Certificate, ckx *clientKeyExchangeMsg, hs *hsContext) ([]byte, error) {
	priv, ok := cert.PrivateKey.(crypto.Decrypter)
	if !ok {
		return nil, handshakeError(errPolicy, alertInternalError, "certificate private key cannot decrypt")
	}
	rsaPriv, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, handshakeError(errPolicy, alertInternalError, "certificate private key is not RSA")
	}

	c := NewCursor(ckx.ciphertext)
	ciphertext, ok := c.U16LengthPrefixedBytes()
	if !ok {
		ciphertext = ckx.ciphertext // SSLv3 framing carried no length prefix
	}

	// Decrypt unconditionally into a buffer of the expected size, then
	// mask every subsequent decision (PKCS#1 validity, version match)
	// rather than branch, substituting random bytes for the premaster
	// on any failure so the caller-visible timing and output shape are
	// identical on success and failure alike: the standard Bleichenbacher
	// mitigation for RSA encrypted premaster secrets.
	preMasterSecret := make([]byte, 48)
	if _, err := io.ReadFull(hs.randReader(), preMasterSecret); err != nil {
		return nil, handshakeError(errResource, alertInternalError, "rng failure: %v", err)
	}

	// DecryptPKCS1v15SessionKey overwrites decrypted, in constant time,
	// only for valid padding around exactly 48 bytes; its error reports
	// only a ciphertext or key of unusable size, which is public.
	decrypted := append([]byte(nil), preMasterSecret...)
	goodDecrypt := ctUint8(1)
	if rsa.DecryptPKCS1v15SessionKey(nil, rsaPriv, ciphertext, decrypted) != nil {
		goodDecrypt = 0
	}
	if goodDecrypt == 1 {
		versOK := ctEq(uint16(decrypted[0])<<8|uint16(decrypted[1]), hs.clientHello.vers)
		if !config.RollbackBug {
			goodDecrypt = ctAnd(goodDecrypt, versOK)
		}
	}
	replacement := make([]byte, 48)
	if _, err := io.ReadFull(hs.randReader(), replacement); err != nil {
		return nil, handshakeError(errResource, alertInternalError, "rng failure: %v", err)
	}
	ctSelectBytes(goodDecrypt, preMasterSecret, decrypted, replacement)
	return preMasterSecret, nil
}

// dheKeyAgreement is finite-field Diffie-Hellman, RFC 5246 §7.4.3. The
// group is the fixed RFC 7919 ffdhe2048 prime/generator below rather
// than a per-handshake generated group; only the private exponent and
// the resulting public value are fresh each handshake.
type dheKeyAgreement struct {
	p, g, x *big.Int // prime modulus, generator, server's private exponent
}

// dheGroupP2048 / dheGroupG are the RFC 7919 ffdhe2048 parameters,
// reused rather than generated fresh per handshake since safe-prime
// generation is an out-of-scope primitive .
var dheGroupP2048, _ = new(big.Int).SetString(
	"FFFFFFFFFFFFFFFFADF85458A2BB4A9AAFDC5620273D3CF1D"+
		"8B9C583CE2D3695A9E13641146433FBCC939DCE249B3EF97D"+
		"2FE363630C75D8F681B202AEC4617AD3DF1ED5D5FD65612433F51F5F066ED0856365553DED1AF3B557135E7F57C935984F0C70E0E68B77E2A689DAF3EFE8721DF158A136ADE73530ACCA4F483A797ABC0AB182B324FB61D108A94BB2C8E3FBB96ADAB760D7F4681D4F42A3DE394DF4AE56EDE76372BB190B07A7C8EE0A6D709E02FCE1CDF7E2ECC03404CD28342F619172FE9CE98583FF8E4F1232EEF28183C3FE3B1B4C6FAD733BB5FCBC2EC22005C58EF1837D1683B2C6F34A26C1B2EFFA886B423861285C97FFFFFFFFFFFFFFFF",
	16)
var dheGroupG = big.NewInt(2)

func (ka *dheKeyAgreement) generateServerKeyExchange(config *Config, cert *Certificate, hs *hsContext) (*serverKeyExchangeMsg, error) {
	ka.p = dheGroupP2048
	ka.g = dheGroupG

	var err error
	ka.x, err = randFieldElement(hs.randReader(), ka.p)
	if err != nil {
		return nil, handshakeError(errResource, alertInternalError, "dhe: %v", err)
	}
	yServer := new(big.Int).Exp(ka.g, ka.x, ka.p)

	w := NewWriter()
	w.U16LengthPrefixed(func(w *Writer) { w.Bytes(ka.p.Bytes()) })
	w.U16LengthPrefixed(func(w *Writer) { w.Bytes(ka.g.Bytes()) })
	w.U16LengthPrefixed(func(w *Writer) { w.Bytes(yServer.Bytes()) })
	params := w.MustFinish()

	sig, err := signServerParams(config, cert, hs, params)
	if err != nil {
		return nil, err
	}
	w2 := NewWriter()
	w2.Bytes(params)
	w2.Bytes(sig)
	return &serverKeyExchangeMsg{key: w2.MustFinish()}, nil
}

func (ka *dheKeyAgreement) processClientKeyExchange(config *Config, cert *Certificate, ckx *clientKeyExchangeMsg, hs *hsContext) ([]byte, error) {
	c := NewCursor(ckx.ciphertext)
	yClientBytes, ok := c.U16LengthPrefixedBytes()
	if !ok || len(yClientBytes) == 0 {
		return nil, handshakeError(errDecode, alertDecodeError, "truncated DH ClientKeyExchange")
	}
	yClient := new(big.Int).SetBytes(yClientBytes)
	if yClient.Sign() <= 0 || yClient.Cmp(ka.p) >= 0 {
		return nil, handshakeError(errCrypto, alertIllegalParameter, "invalid DH public value")
	}
	pms := new(big.Int).Exp(yClient, ka.x, ka.p)
	return pms.Bytes(), nil
}

func randFieldElement(rand io.Reader, p *big.Int) (*big.Int, error) {
	b := make([]byte, (p.BitLen()+7)/8+8)
	if _, err := io.ReadFull(rand, b); err != nil {
		return nil, err
	}
	x := new(big.Int).SetBytes(b)
	x.Mod(x, new(big.Int).Sub(p, big.NewInt(2)))
	return x.Add(x, big.NewInt(1)), nil
}

// ecdheKeyAgreement is named-curve ECDHE, RFC 4492: the server picks
// the highest-preference curve both sides offered, generates an
// ephemeral key pair, and signs the encoded point with the
// certificate's key (RSA or ECDSA, by its type); isRSA is not
// consulted when signing.
type ecdheKeyAgreement struct {
	isRSA   bool
	version uint16

	curveID CurveID
	priv    *ecdsa.PrivateKey
}

func (ka *ecdheKeyAgreement) generateServerKeyExchange(config *Config, cert *Certificate, hs *hsContext) (*serverKeyExchangeMsg, error) {
	curveID := pickCurve(config.curvePreferences(), hs.clientHello.supportedCurves)
	if curveID == 0 {
		return nil, handshakeError(errPolicy, alertHandshakeFailure, "no mutually supported curve")
	}
	curve, ok := curveForID(curveID)
	if !ok {
		return nil, handshakeError(errPolicy, alertHandshakeFailure, "unsupported curve")
	}
	priv, x, y, err := elliptic.GenerateKey(curve, hs.randReader())
	if err != nil {
		return nil, handshakeError(errResource, alertInternalError, "ecdhe: %v", err)
	}
	ka.curveID = curveID
	ka.priv = &ecdsa.PrivateKey{PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y}, D: new(big.Int).SetBytes(priv)}

	ecPoint := elliptic.Marshal(curve, x, y)

	w := NewWriter()
	w.U8(3) // named_curve
	w.U16(uint16(curveID))
	w.U8LengthPrefixed(func(w *Writer) { w.Bytes(ecPoint) })
	params := w.MustFinish()

	sig, err := signServerParams(config, cert, hs, params)
	if err != nil {
		return nil, err
	}
	w2 := NewWriter()
	w2.Bytes(params)
	w2.Bytes(sig)
	return &serverKeyExchangeMsg{key: w2.MustFinish()}, nil
}

func (ka *ecdheKeyAgreement) processClientKeyExchange(config *Config, cert *Certificate, ckx *clientKeyExchangeMsg, hs *hsContext) ([]byte, error) {
	c := NewCursor(ckx.ciphertext)
	point, ok := c.U8LengthPrefixedBytes()
	if !ok || len(point) == 0 {
		return nil, handshakeError(errDecode, alertDecodeError, "truncated ECDH ClientKeyExchange")
	}
	curve, ok := curveForID(ka.curveID)
	if !ok {
		return nil, handshakeError(errResource, alertInternalError, "curve state lost")
	}
	x, y := elliptic.Unmarshal(curve, point)
	if x == nil {
		return nil, handshakeError(errCrypto, alertIllegalParameter, "invalid EC point")
	}
	pmsX, _ := curve.ScalarMult(x, y, ka.priv.D.Bytes())
	pms := make([]byte, (curve.Params().BitSize+7)/8)
	pmsBytes := pmsX.Bytes()
	copy(pms[len(pms)-len(pmsBytes):], pmsBytes)
	return pms, nil
}

func pickCurve(serverPrefs []CurveID, clientOffered []CurveID) CurveID {
	for _, want := range serverPrefs {
		for _, have := range clientOffered {
			if want == have {
				return want
			}
		}
	}
	return 0
}

func curveForID(id CurveID) (elliptic.Curve, bool) {
	switch id {
	case CurveP256:
		return elliptic.P256(), true
	case CurveP384:
		return elliptic.P384(), true
	case CurveP521:
		return elliptic.P521(), true
	}
	return nil, false
}

// signServerParams signs the ServerKeyExchange params over
// clientRandom || serverRandom || params, per RFC 5246 §7.4.3.
func signServerParams(config *Config, cert *Certificate, hs *hsContext, params []byte) ([]byte, error) {
	signed := make([]byte, 0, 64+len(params))
	signed = append(signed, hs.clientHello.random[:]...)
	signed = append(signed, hs.serverRandom[:]...)
	signed = append(signed, params...)

	sigScheme, cryptoHash := chooseSignatureScheme(cert, hs.clientHello.sigAlgs, hs.version)
	hasher := cryptoHash.New()
	hasher.Write(signed)
	digest := hasher.Sum(nil)

	var sig []byte
	var err error
	switch k := cert.PrivateKey.(type) {
	case *rsa.PrivateKey:
		sig, err = rsa.SignPKCS1v15(hs.randReader(), k, cryptoHash, digest)
	case *ecdsa.PrivateKey:
		sig, err = signECDSA(hs.randReader(), k, digest)
	case crypto.Signer:
		sig, err = k.Sign(hs.randReader(), digest, cryptoHash)
	default:
		return nil, handshakeError(errPolicy, alertInternalError, "unsupported private key type")
	}
	if err != nil {
		return nil, handshakeError(errCrypto, alertInternalError, "signing failed: %v", err)
	}

	w := NewWriter()
	if hs.version >= VersionTLS12 && hs.version != VersionDTLS10 {
		w.U8(sigScheme.hash())
		w.U8(sigScheme.sig())
	}
	w.U16LengthPrefixed(func(w *Writer) { w.Bytes(sig) })
	return w.MustFinish(), nil
}

// chooseSignatureScheme picks a (hash, sig) pair from the client's
// signature_algorithms list that this certificate is permitted to use,
// falling back to the TLS 1.0/1.1 implicit SHA1/RSA or SHA1/ECDSA pair.
func chooseSignatureScheme(cert *Certificate, offered []SignatureScheme, version uint16) (SignatureScheme, crypto.Hash) {
	_, isECDSA := cert.PrivateKey.(*ecdsa.PrivateKey)
	if version >= VersionTLS12 && version != VersionDTLS10 {
		for _, s := range offered {
			if isECDSA && s.sig() != sigECDSA {
				continue
			}
			if !isECDSA && s.sig() != sigRSA {
				continue
			}
			if len(cert.SupportedSignatureAlgorithms) > 0 && !schemeAllowed(cert.SupportedSignatureAlgorithms, s) {
				continue
			}
			switch s.hash() {
			case hashSHA256:
				return s, crypto.SHA256
			case hashSHA384:
				return s, crypto.SHA384
			case hashSHA512:
				return s, crypto.SHA512
			case hashSHA1:
				return s, crypto.SHA1
			}
		}
	}
	if isECDSA {
		return SignatureScheme(uint16(hashSHA1)<<8 | uint16(sigECDSA)), crypto.SHA1
	}
	return SignatureScheme(uint16(hashSHA1)<<8 | uint16(sigRSA)), crypto.SHA1
}

// signECDSA signs digest and DER-encodes the (r, s) pair, the
// signature shape RFC 5246 §4.7 specifies for ECDSA.
func signECDSA(rand io.Reader, priv *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand, priv, digest)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(struct{ R, S *big.Int }{r, s})
}

func schemeAllowed(allowed []SignatureScheme, s SignatureScheme) bool {
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}

// gostKeyAgreement dispatches VKO key transport (RFC 4357-style) to the
// Config's external GostKeyExchanger: this engine only routes the
// peer's encoded key blob and never touches GOST point arithmetic
// itself.
type gostKeyAgreement struct {
	ephemeral []byte
}

func (ka *gostKeyAgreement) generateServerKeyExchange(config *Config, cert *Certificate, hs *hsContext) (*serverKeyExchangeMsg, error) {
	return nil, nil // GOST suites carry key material in the certificate, no ServerKeyExchange
}

func (ka *gostKeyAgreement) processClientKeyExchange(config *Config, cert *Certificate, ckx *clientKeyExchangeMsg, hs *hsContext) ([]byte, error) {
	if config.GostKeyExchanger == nil {
		return nil, handshakeError(errPolicy, alertInternalError, "no GOST key exchanger configured")
	}
	c := NewCursor(ckx.ciphertext)
	blob, ok := c.U16LengthPrefixedBytes()
	if !ok {
		blob = ckx.ciphertext
	}
	pms, err := config.GostKeyExchanger.VKO(blob, ka.ephemeral)
	if err != nil {
		return nil, handshakeError(errCrypto, alertDecryptError, "gost VKO failed: %v", err)
	}
	return pms, nil
}
