// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// This file implements the TLS 1.0/1.1/1.2 PRF and the transcript-hash
// plumbing behind Finished/CertificateVerify. HMAC and the underlying
// hash functions are out-of-scope cryptographic primitives, reached
// only through crypto/hmac and crypto/sha*.

package tls

import (
	"crypto"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
)

const (
	masterSecretLength   = 48
	finishedVerifyLength = 12
)

// pHash implements the P_hash function of RFC 5246 §5: an HMAC-driven
// expansion of secret and seed to however many bytes the caller wants.
func pHash(result, secret, seed []byte, hashFunc func() hash.Hash) {
	h := hmac.New(hashFunc, secret)
	h.Write(seed)
	a := h.Sum(nil)

	j := 0
	for j < len(result) {
		h.Reset()
		h.Write(a)
		h.Write(seed)
		b := h.Sum(nil)
		todo := len(b)
		if j+todo > len(result) {
			todo = len(result) - j
		}
		copy(result[j:j+todo], b)
		j += todo

		h.Reset()
		h.Write(a)
		a = h.Sum(nil)
	}
}

// prf10 is the TLS 1.0/1.1 PRF (RFC 2246 §5): the output is the XOR of
// P_MD5 and P_SHA1 run over independent halves of the secret.
func prf10(result, secret, label, seed []byte) {
	hashSHA1 := sha1.New
	hashMD5 := md5.New

	labelAndSeed := make([]byte, len(label)+len(seed))
	copy(labelAndSeed, label)
	copy(labelAndSeed[len(label):], seed)

	s1, s2 := splitPreMasterKey(secret)

	pHash(result, s1, labelAndSeed, hashMD5)
	result2 := make([]byte, len(result))
	pHash(result2, s2, labelAndSeed, hashSHA1)

	for i, b := range result2 {
		result[i] ^= b
	}
}

// prf12 is the TLS 1.2 PRF (RFC 5246 §5): a single P_hash run with the
// cipher suite's negotiated hash, defaulting to SHA-256.
func prf12(hashFunc func() hash.Hash) func(result, secret, label, seed []byte) {
	return func(result, secret, label, seed []byte) {
		labelAndSeed := make([]byte, len(label)+len(seed))
		copy(labelAndSeed, label)
		copy(labelAndSeed[len(label):], seed)
		pHash(result, secret, labelAndSeed, hashFunc)
	}
}

// splitPreMasterKey implements RFC 2246 §5's "S1 and S2 are the two
// halves of the secret... If the length of the secret is odd, the
// middle byte is shared between the halves."
func splitPreMasterKey(secret []byte) (s1, s2 []byte) {
	s1 = secret[:(len(secret)+1)/2]
	s2 = secret[len(secret)/2:]
	return
}

var masterSecretLabel = []byte("master secret")
var keyExpansionLabel = []byte("key expansion")
var clientFinishedLabel = []byte("client finished")
var serverFinishedLabel = []byte("server finished")

// prfForVersion resolves the PRF implementation for the negotiated
// version and, for TLS 1.2, the suite's transcript hash.
func prfForVersion(version uint16, suite *cipherSuite) func(result, secret, label, seed []byte) {
	switch version {
	case VersionSSL30:
		panic("tls: internal error: SSL 3.0 PRF requested, out of scope")
	case VersionTLS10, VersionTLS11, VersionDTLS10:
		return prf10
	default:
		if suite != nil && suite.flags&suiteSHA384 != 0 {
			return prf12(sha512.New384)
		}
		return prf12(sha256.New)
	}
}

// masterFromPreMasterSecret implements RFC 5246 §8.1's
// "master_secret = PRF(pre_master_secret, "master secret",
//
//	ClientHello.random + ServerHello.random)".
func masterFromPreMasterSecret(version uint16, suite *cipherSuite, preMasterSecret, clientRandom, serverRandom []byte) []byte {
	seed := make([]byte, 0, len(clientRandom)+len(serverRandom))
	seed = append(seed, clientRandom...)
	seed = append(seed, serverRandom...)
	masterSecret := make([]byte, masterSecretLength)
	prfForVersion(version, suite)(masterSecret, preMasterSecret, masterSecretLabel, seed)
	return masterSecret
}

// keysFromMasterSecret implements RFC 5246 §6.3's key_block derivation
// and slices it into the six components the record layer needs.
func keysFromMasterSecret(version uint16, suite *cipherSuite, masterSecret, clientRandom, serverRandom []byte, macLen, keyLen, ivLen int) (clientMAC, serverMAC, clientKey, serverKey, clientIV, serverIV []byte) {
	seed := make([]byte, 0, len(serverRandom)+len(clientRandom))
	seed = append(seed, serverRandom...)
	seed = append(seed, clientRandom...)

	n := 2*macLen + 2*keyLen + 2*ivLen
	keyMaterial := make([]byte, n)
	prfForVersion(version, suite)(keyMaterial, masterSecret, keyExpansionLabel, seed)

	clientMAC = keyMaterial[:macLen]
	keyMaterial = keyMaterial[macLen:]
	serverMAC = keyMaterial[:macLen]
	keyMaterial = keyMaterial[macLen:]
	clientKey = keyMaterial[:keyLen]
	keyMaterial = keyMaterial[keyLen:]
	serverKey = keyMaterial[:keyLen]
	keyMaterial = keyMaterial[keyLen:]
	clientIV = keyMaterial[:ivLen]
	keyMaterial = keyMaterial[ivLen:]
	serverIV = keyMaterial[:ivLen]
	return
}

// finishedHash accumulates the running handshake transcript and derives
// Finished verify_data and CertificateVerify digests from it.
type finishedHash struct {
	client hash.Hash
	server hash.Hash

	// buffer retains the full transcript so hashForClientCertificate can
	// rehash it under whatever signature_algorithms hash the client
	// certificate's CertificateVerify used, which may differ from the
	// suite's own PRF hash.
	buffer  []byte
	version uint16
}

func newFinishedHash(version uint16, suite *cipherSuite) (h finishedHash) {
	if version >= VersionTLS12 && version != VersionDTLS10 {
		hashFunc := sha256.New
		if suite != nil && suite.flags&suiteSHA384 != 0 {
			hashFunc = sha512.New384
		}
		h.client = hashFunc()
		h.server = hashFunc()
	} else {
		h.client = combinedMD5SHA1New()
		h.server = combinedMD5SHA1New()
	}
	h.version = version
	return h
}

func (h *finishedHash) Write(msg []byte) (n int, err error) {
	h.client.Write(msg)
	h.server.Write(msg)
	h.buffer = append(h.buffer, msg...)
	return len(msg), nil
}

func (h *finishedHash) Sum() []byte {
	return h.client.Sum(nil)
}

// clientSum / serverSum compute the content of the verify_data member
// of a Finished message given the MasterSecret, per RFC 5246 §7.4.9.
func (h *finishedHash) clientSum(suite *cipherSuite, masterSecret []byte) []byte {
	out := make([]byte, finishedVerifyLength)
	prfForVersion(h.version, suite)(out, masterSecret, clientFinishedLabel, h.client.Sum(nil))
	return out
}

func (h *finishedHash) serverSum(suite *cipherSuite, masterSecret []byte) []byte {
	out := make([]byte, finishedVerifyLength)
	prfForVersion(h.version, suite)(out, masterSecret, serverFinishedLabel, h.server.Sum(nil))
	return out
}

// hashForClientCertificate returns the digest CertificateVerify must
// sign, per RFC 5246 §7.4.8 and the signature_algorithms negotiated
// scheme for TLS 1.2, or the combined MD5/SHA1 digest otherwise.
func (h *finishedHash) hashForClientCertificate(sigType uint8, cryptoHash crypto.Hash) []byte {
	if h.version >= VersionTLS12 && h.version != VersionDTLS10 {
		hasher := cryptoHash.New()
		hasher.Write(h.buffer)
		return hasher.Sum(nil)
	}
	if sigType == sigRSA {
		return h.client.Sum(nil)
	}
	// ECDSA/DSA before TLS 1.2 sign only the SHA-1 half.
	return h.client.Sum(nil)[md5.Size:]
}

// combinedMD5SHA1 implements hash.Hash by running both MD5 and SHA-1
// and concatenating their digests, used by the pre-TLS-1.2 Finished
// and CertificateVerify transcript. It is a stdlib-only adapter since
// no corpus dependency exposes this combinator.
type combinedMD5SHA1 struct {
	md5  hash.Hash
	sha1 hash.Hash
}

func combinedMD5SHA1New() hash.Hash {
	return &combinedMD5SHA1{md5: md5.New(), sha1: sha1.New()}
}

func (c *combinedMD5SHA1) Write(p []byte) (n int, err error) {
	c.md5.Write(p)
	c.sha1.Write(p)
	return len(p), nil
}

func (c *combinedMD5SHA1) Sum(b []byte) []byte {
	out := append(b, c.md5.Sum(nil)...)
	return c.sha1.Sum(out)
}

func (c *combinedMD5SHA1) Reset() {
	c.md5.Reset()
	c.sha1.Reset()
}

func (c *combinedMD5SHA1) Size() int      { return md5.Size + sha1.Size }
func (c *combinedMD5SHA1) BlockSize() int { return c.md5.BlockSize() }
