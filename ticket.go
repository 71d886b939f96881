// Copyright 2012 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"io"
	"time"
)

// ticketKeyNameLen is the width of the key name prefix a ticket carries
// so the decrypting side can find the right key without trying all of
// them.
const ticketKeyNameLen = 16

// serializeSession turns a session into the plaintext a ticket encrypts.
// Certificates are carried as their raw DER so decryptTicket can
// reconstitute x509.Certificate without touching a CA trust store.
func serializeSession(s *session) []byte {
	w := NewWriter()
	w.U16(s.vers)
	w.U16(s.cipherSuite)
	w.U8LengthPrefixed(func(w *Writer) { w.Bytes(s.sessionID) })
	w.U16LengthPrefixed(func(w *Writer) { w.Bytes(s.masterSecret) })
	w.U16LengthPrefixed(func(w *Writer) { w.Bytes([]byte(s.sni)) })
	w.U8LengthPrefixed(func(w *Writer) { w.Bytes(s.ecPointFormats) })
	w.U16LengthPrefixed(func(w *Writer) {
		for _, c := range s.ellipticCurves {
			w.U16(uint16(c))
		}
	})
	w.U32(uint32(s.timeout.Unix()))
	w.U16LengthPrefixed(func(w *Writer) {
		for _, cert := range s.peerCertificates {
			w.U24LengthPrefixed(func(w *Writer) { w.Bytes(cert.Raw) })
		}
	})
	return w.MustFinish()
}

func deserializeSession(data []byte) (*session, bool) {
	c := NewCursor(data)
	s := &session{}
	var sessionID, masterSecret, sni, ecPointFormats []byte
	var timeout uint32
	if !c.U16(&s.vers) || !c.U16(&s.cipherSuite) {
		return nil, false
	}
	if !bytesPrefixed(c, &sessionID, true) {
		return nil, false
	}
	s.sessionID = sessionID
	if !bytesPrefixed(c, &masterSecret, false) {
		return nil, false
	}
	s.masterSecret = masterSecret
	if !bytesPrefixed(c, &sni, false) {
		return nil, false
	}
	s.sni = string(sni)
	if !bytesPrefixed(c, &ecPointFormats, true) {
		return nil, false
	}
	s.ecPointFormats = ecPointFormats
	curvesCur, ok := c.U16LengthPrefixed()
	if !ok {
		return nil, false
	}
	for curvesCur.Len() > 0 {
		var id uint16
		if !curvesCur.U16(&id) {
			return nil, false
		}
		s.ellipticCurves = append(s.ellipticCurves, CurveID(id))
	}
	if !c.U32(&timeout) {
		return nil, false
	}
	s.timeout = time.Unix(int64(timeout), 0)
	certsCur, ok := c.U16LengthPrefixed()
	if !ok {
		return nil, false
	}
	for certsCur.Len() > 0 {
		sub, ok := certsCur.U24LengthPrefixed()
		if !ok {
			return nil, false
		}
		raw, ok := sub.Peek(sub.Len())
		if !ok {
			return nil, false
		}
		if cert, err := x509.ParseCertificate(raw); err == nil {
			s.peerCertificates = append(s.peerCertificates, cert)
		}
	}
	return s, c.AssertExhausted()
}

// bytesPrefixed is a small helper so deserializeSession can share one
// line per u8/u16-length-prefixed opaque field; u8 is selected with
// u8 true.
func bytesPrefixed(c *Cursor, out *[]byte, u8 bool) bool {
	var b []byte
	var ok bool
	if u8 {
		b, ok = c.U8LengthPrefixedBytes()
	} else {
		b, ok = c.U16LengthPrefixedBytes()
	}
	if !ok {
		return false
	}
	*out = append([]byte(nil), b...)
	return true
}

// pkcs7Pad appends PKCS#7 padding so plaintext becomes a multiple of
// blockSize, the padding CBC mode requires.
func pkcs7Pad(plaintext []byte, blockSize int) []byte {
	padLen := blockSize - len(plaintext)%blockSize
	padded := make([]byte, len(plaintext)+padLen)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad strips and validates PKCS#7 padding, rejecting a
// malformed or zero-length pad.
func pkcs7Unpad(padded []byte, blockSize int) ([]byte, bool) {
	if len(padded) == 0 || len(padded)%blockSize != 0 {
		return nil, false
	}
	padLen := int(padded[len(padded)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(padded) {
		return nil, false
	}
	for _, b := range padded[len(padded)-padLen:] {
		if int(b) != padLen {
			return nil, false
		}
	}
	return padded[:len(padded)-padLen], true
}

// newTicket serializes the session and seals it with the process's
// current ticket key: AES-128-CBC for confidentiality, HMAC-SHA-256
// for integrity, key name prefixed so a later decrypt can find the key
// without trying every one on file.
func newTicket(config *Config, s *session) ([]byte, error) {
	key, err := currentTicketKey(config)
	if err != nil {
		return nil, err
	}
	plaintext := pkcs7Pad(serializeSession(s), aes.BlockSize)

	encrypted := make([]byte, ticketKeyNameLen+aes.BlockSize+len(plaintext)+sha256.Size)
	keyName := encrypted[:ticketKeyNameLen]
	iv := encrypted[ticketKeyNameLen : ticketKeyNameLen+aes.BlockSize]
	ciphertext := encrypted[ticketKeyNameLen+aes.BlockSize : len(encrypted)-sha256.Size]
	macBytes := encrypted[len(encrypted)-sha256.Size:]

	copy(keyName, key.Name[:])
	if _, err := io.ReadFull(randReaderFor(config), iv); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key.AESKey[:])
	if err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	mac := hmac.New(sha256.New, key.HMACKey[:])
	mac.Write(encrypted[:len(encrypted)-sha256.Size])
	mac.Sum(macBytes[:0])

	return encrypted, nil
}

// decryptTicket verifies the MAC under the named key (trying
// TicketKeyCallback for rotated names), decrypts, deserializes, and
// rejects an expired session outright so the caller falls back to a
// full handshake.
func decryptTicket(config *Config, ticket []byte, now time.Time) (*session, bool) {
	if config.SessionTicketsDisabled || len(ticket) < ticketKeyNameLen+aes.BlockSize+sha256.Size {
		return nil, false
	}

	var keyName [16]byte
	copy(keyName[:], ticket[:ticketKeyNameLen])
	key, _, ok := lookupTicketKey(config, keyName)
	if !ok {
		return nil, false
	}

	macBytes := ticket[len(ticket)-sha256.Size:]
	mac := hmac.New(sha256.New, key.HMACKey[:])
	mac.Write(ticket[:len(ticket)-sha256.Size])
	expected := mac.Sum(nil)
	if subtle.ConstantTimeCompare(macBytes, expected) != 1 {
		return nil, false
	}

	block, err := aes.NewCipher(key.AESKey[:])
	if err != nil {
		return nil, false
	}
	iv := ticket[ticketKeyNameLen : ticketKeyNameLen+aes.BlockSize]
	ciphertext := ticket[ticketKeyNameLen+aes.BlockSize : len(ticket)-sha256.Size]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, false
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	plaintext, ok := pkcs7Unpad(padded, aes.BlockSize)
	if !ok {
		return nil, false
	}

	s, ok := deserializeSession(plaintext)
	if !ok || s.expired(now) {
		return nil, false
	}
	return s, true
}

// currentTicketKey returns the key newTicket seals with: the
// configured SessionTicketKey, or whatever TicketKeyCallback reports
// for the zero key name as a way to ask "what's current".
func currentTicketKey(config *Config) (*TicketKey, error) {
	if config.SessionTicketKey != nil {
		return config.SessionTicketKey, nil
	}
	if config.TicketKeyCallback != nil {
		if key, _, ok := config.TicketKeyCallback([16]byte{}); ok {
			return key, nil
		}
	}
	return nil, handshakeError(errResource, alertInternalError, "ticket: no SessionTicketKey configured")
}

// lookupTicketKey finds the key a ticket's key name refers to, trying
// the live key first and then TicketKeyCallback for rotated names
// (renew reports the ticket should be reissued with the current key).
func lookupTicketKey(config *Config, name [16]byte) (*TicketKey, bool, bool) {
	if config.SessionTicketKey != nil && config.SessionTicketKey.Name == name {
		return config.SessionTicketKey, false, true
	}
	if config.TicketKeyCallback != nil {
		if key, renew, ok := config.TicketKeyCallback(name); ok {
			return key, renew, true
		}
	}
	return nil, false, false
}

func randReaderFor(config *Config) io.Reader {
	if config.Rand != nil {
		return config.Rand
	}
	return defaultRandReader{}
}
