// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// This file implements the TLS/DTLS record layer: framing,
// sequence numbers, and per-record MAC-then-encrypt / AEAD sealing and
// opening. It sits directly below the handshake orchestration in
// handshake_server.go and is the only place ciphertext ever touches a
// net.Conn.

package tls

import (
	"bytes"
	"crypto/cipher"
	"io"
	"net"
	"time"
)

const (
	recordHeaderLen     = 5
	dtlsRecordHeaderLen = 13
	maxPlaintext        = 16384
	maxCiphertext       = maxPlaintext + 2048
)

// halfConn carries one direction's (read or write) cipher state: each
// direction is keyed independently once ChangeCipherSpec promotes it.
type halfConn struct {
	version uint16
	cipher  interface{} // nil, or a cipher.BlockMode, or a cipher.Stream (RC4)
	mac     macFunction
	aeadVal aead

	seq [8]byte

	nextCipher interface{}
	nextMac    macFunction
	nextAead   aead
}

func (hc *halfConn) incSeq() {
	for i := 7; i >= 0; i-- {
		hc.seq[i]++
		if hc.seq[i] != 0 {
			return
		}
	}
	panic("tls: sequence number wraparound")
}

// changeCipherSpec promotes the pending (nextCipher/nextMac/nextAead)
// state to active and resets the sequence number's
// ChangeCipherSpec effect.
func (hc *halfConn) changeCipherSpec() {
	hc.cipher = hc.nextCipher
	hc.mac = hc.nextMac
	hc.aeadVal = hc.nextAead
	hc.nextCipher, hc.nextMac, hc.nextAead = nil, nil, nil
	for i := range hc.seq {
		hc.seq[i] = 0
	}
}

// Conn wraps a net.Conn with the TLS record layer. Handshake
// orchestration lives in handshake_server.go; Conn only frames and
// (de)protects records.
type Conn struct {
	conn net.Conn

	vers   uint16
	dtls   bool
	in     halfConn
	out    halfConn
	config *Config

	handshakeComplete bool
	state             ConnectionState

	// secureRenegotiation, clientVerify and serverVerify cache the
	// outcome of the most recently completed handshake's
	// renegotiation_info exchange: RFC 5746 requires a renegotiation
	// ClientHello to echo exactly clientVerify||serverVerify back, and
	// a server that saw the extension once must refuse a renegotiation
	// that omits it.
	secureRenegotiation bool
	clientVerify        []byte
	serverVerify         []byte

	// dtlsSendSeq/dtlsRecvSeq are the DTLS handshake-layer message_seq
	// counters (RFC 6347 §4.2.2), unused when dtls is false.
	dtlsSendSeq uint16
	dtlsRecvSeq uint16

	// input buffers application-data plaintext handed back by readRecord
	// but not yet consumed by Read.
	input bytes.Buffer
}

func newConn(c net.Conn, config *Config, dtls bool) *Conn {
	return &Conn{conn: c, config: config, dtls: dtls}
}

// readRecord reads one TLS/DTLS record and returns its decrypted,
// verified payload. Content type is returned alongside so the caller
// can distinguish handshake, alert, change_cipher_spec and application
// data records
func (c *Conn) readRecord() (recordType, []byte, error) {
	hdrLen := recordHeaderLen
	if c.dtls {
		hdrLen = dtlsRecordHeaderLen
	}
	hdr := make([]byte, hdrLen)
	if _, err := io.ReadFull(c.conn, hdr); err != nil {
		return 0, nil, err
	}
	typ := recordType(hdr[0])
	var length int
	if c.dtls {
		length = int(hdr[11])<<8 | int(hdr[12])
	} else {
		length = int(hdr[3])<<8 | int(hdr[4])
	}
	if length > maxCiphertext {
		return 0, nil, handshakeError(errDecode, alertRecordOverflow, "oversized record")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return 0, nil, err
	}

	plaintext, err := c.decrypt(typ, hdr, payload)
	if err != nil {
		return 0, nil, err
	}
	return typ, plaintext, nil
}

// decrypt undoes whatever protection c.in currently has configured:
// none (pre-handshake), CBC+MAC, a stream cipher+MAC, or an AEAD.
func (c *Conn) decrypt(typ recordType, hdr, payload []byte) ([]byte, error) {
	in := &c.in
	switch {
	case in.aeadVal != nil:
		explicitLen := in.aeadVal.explicitNonceLen()
		nonce := payload[:explicitLen]
		ciphertext := payload[explicitLen:]
		if explicitLen == 0 {
			// Modern AEADs (ChaCha20-Poly1305) carry no explicit nonce on
			// the wire; the nonce is the running sequence number both
			// sides already track.
			nonce = in.seq[:]
		}
		additionalData := make([]byte, 13)
		copy(additionalData, in.seq[:])
		additionalData[8] = byte(typ)
		additionalData[9] = hdr[1]
		additionalData[10] = hdr[2]
		n := len(ciphertext) - in.aeadVal.Overhead()
		additionalData[11] = byte(n >> 8)
		additionalData[12] = byte(n)
		plaintext, err := in.aeadVal.Open(nil, nonce, ciphertext, additionalData)
		if err != nil {
			return nil, handshakeError(errCrypto, alertBadRecordMAC, "record authentication failed")
		}
		in.incSeq()
		return plaintext, nil
	case in.cipher != nil:
		return c.decryptBlockOrStream(typ, payload)
	default:
		return payload, nil
	}
}

func (c *Conn) decryptBlockOrStream(typ recordType, payload []byte) ([]byte, error) {
	in := &c.in
	data := payload
	if block, ok := in.cipher.(cipher.BlockMode); ok {
		blockSize := block.BlockSize()
		if len(data)%blockSize != 0 || len(data) < blockSize {
			return nil, handshakeError(errDecode, alertDecryptionFailed, "bad CBC record length")
		}
		explicitIVLen := 0
		if c.vers >= VersionTLS11 || c.dtls {
			explicitIVLen = blockSize
		}
		if len(data) < explicitIVLen+blockSize {
			return nil, handshakeError(errDecode, alertDecryptionFailed, "truncated CBC record")
		}
		if explicitIVLen > 0 {
			if cbc, ok := block.(cbcExplicitIVSetter); ok {
				cbc.SetIV(data[:explicitIVLen])
			}
			data = data[explicitIVLen:]
		}
		block.CryptBlocks(data, data)
		paddingLen, good := extractPadding(data)
		data = data[:len(data)-paddingLen]
		macSize := in.mac.Size()
		if len(data) < macSize {
			return nil, handshakeError(errCrypto, alertBadRecordMAC, "record too short for MAC")
		}
		recordMAC := data[len(data)-macSize:]
		data = data[:len(data)-macSize]

		header := make([]byte, 13)
		copy(header, in.seq[:])
		header[8] = byte(typ)
		header[9], header[10] = byte(c.vers>>8), byte(c.vers)
		header[11] = byte(len(data) >> 8)
		header[12] = byte(len(data))
		expected := in.mac.MAC(in.seq[:], header[8:], data, nil)
		if subtleConstantTimeCompare(expected, recordMAC) != 1 || good != 1 {
			return nil, handshakeError(errCrypto, alertBadRecordMAC, "record MAC mismatch")
		}
		in.incSeq()
		return data, nil
	}
	if stream, ok := in.cipher.(cipher.Stream); ok {
		stream.XORKeyStream(data, data)
		macSize := in.mac.Size()
		if len(data) < macSize {
			return nil, handshakeError(errCrypto, alertBadRecordMAC, "record too short for MAC")
		}
		recordMAC := data[len(data)-macSize:]
		data = data[:len(data)-macSize]
		header := make([]byte, 13)
		copy(header, in.seq[:])
		header[8] = byte(typ)
		header[9], header[10] = byte(c.vers>>8), byte(c.vers)
		header[11] = byte(len(data) >> 8)
		header[12] = byte(len(data))
		expected := in.mac.MAC(in.seq[:], header[8:], data, nil)
		if subtleConstantTimeCompare(expected, recordMAC) != 1 {
			return nil, handshakeError(errCrypto, alertBadRecordMAC, "record MAC mismatch")
		}
		in.incSeq()
		return data, nil
	}
	return nil, handshakeError(errResource, alertInternalError, "unrecognized cipher state")
}

// extractPadding validates CBC padding in constant time with respect
// to the padding length, per's "MAC/pad check masked in
// timing". It returns the number of bytes to strip (the padding length
// byte's value plus one) and 1 on a well-formed pad, that same count
// and 0 when the pad bytes mismatch, or (0, 0) when the length byte
// exceeds the data, so callers still do a
// MAC check over attacker-influenced length and never branch on the
// padding's validity before that check runs.
func extractPadding(data []byte) (int, ctUint8) {
	if len(data) == 0 {
		return 0, 0
	}
	paddingLen := data[len(data)-1]
	if int(paddingLen) > len(data)-1 {
		return 0, 0
	}
	good := ctUint8(1)
	toCheck := 255
	if toCheck > len(data)-1 {
		toCheck = len(data) - 1
	}
	for i := 0; i < toCheck; i++ {
		inPad := ctUint8(0)
		if i <= int(paddingLen) {
			inPad = 1
		}
		mismatch := data[len(data)-1-i] ^ paddingLen
		good = ctAnd(good, ctOr(ctNot(inPad), ctEq(uint16(mismatch), 0)))
	}
	return int(paddingLen) + 1, good
}

func subtleConstantTimeCompare(a, b []byte) int {
	if len(a) != len(b) {
		return 0
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	if v == 0 {
		return 1
	}
	return 0
}

// writeRecord frames, protects and writes one record, fragmenting
// payloads larger than maxPlaintext
func (c *Conn) writeRecord(typ recordType, data []byte) error {
	for len(data) > 0 {
		m := len(data)
		if m > maxPlaintext {
			m = maxPlaintext
		}
		if err := c.writeRecordFragment(typ, data[:m]); err != nil {
			return err
		}
		data = data[m:]
	}
	return nil
}

func (c *Conn) writeRecordFragment(typ recordType, data []byte) error {
	out := &c.out
	seqForHeader := out.seq

	var protected []byte
	switch {
	case out.aeadVal != nil:
		explicitLen := out.aeadVal.explicitNonceLen()
		wireNonce := out.seq[len(out.seq)-explicitLen:]
		additionalData := make([]byte, 13)
		copy(additionalData, out.seq[:])
		additionalData[8] = byte(typ)
		additionalData[9], additionalData[10] = byte(c.vers>>8), byte(c.vers)
		additionalData[11] = byte(len(data) >> 8)
		additionalData[12] = byte(len(data))
		// The nonce fed to Seal is always the full running sequence
		// number; wireNonce is only the subset (possibly empty) actually
		// written ahead of the ciphertext.
		sealed := out.aeadVal.Seal(nil, out.seq[:], data, additionalData)
		protected = append(append([]byte{}, wireNonce...), sealed...)
		out.incSeq()
	case out.cipher != nil:
		var err error
		protected, err = c.encryptBlockOrStream(typ, data)
		if err != nil {
			return err
		}
	default:
		protected = data
	}

	var hdr []byte
	if c.dtls {
		hdr = make([]byte, dtlsRecordHeaderLen)
		hdr[0] = byte(typ)
		hdr[1], hdr[2] = byte(c.vers>>8), byte(c.vers)
		copy(hdr[3:11], seqForHeader[:])
		hdr[11] = byte(len(protected) >> 8)
		hdr[12] = byte(len(protected))
	} else {
		hdr = make([]byte, recordHeaderLen)
		hdr[0] = byte(typ)
		hdr[1], hdr[2] = byte(c.vers>>8), byte(c.vers)
		hdr[3] = byte(len(protected) >> 8)
		hdr[4] = byte(len(protected))
	}

	if _, err := c.conn.Write(hdr); err != nil {
		return err
	}
	_, err := c.conn.Write(protected)
	return err
}

func (c *Conn) encryptBlockOrStream(typ recordType, data []byte) ([]byte, error) {
	out := &c.out
	header := make([]byte, 13)
	copy(header, out.seq[:])
	header[8] = byte(typ)
	header[9], header[10] = byte(c.vers>>8), byte(c.vers)
	header[11] = byte(len(data) >> 8)
	header[12] = byte(len(data))
	mac := out.mac.MAC(out.seq[:], header[8:], data, nil)

	if block, ok := out.cipher.(cipher.BlockMode); ok {
		blockSize := block.BlockSize()
		explicitIVLen := 0
		if c.vers >= VersionTLS11 || c.dtls {
			explicitIVLen = blockSize
		}
		plaintext := append(append([]byte{}, data...), mac...)
		paddingLen := blockSize - (len(plaintext)+1)%blockSize
		if paddingLen == blockSize {
			paddingLen = 0
		}
		for i := 0; i <= paddingLen; i++ {
			plaintext = append(plaintext, byte(paddingLen))
		}
		out.incSeq()
		buf := make([]byte, explicitIVLen+len(plaintext))
		if explicitIVLen > 0 {
			if _, err := io.ReadFull(c.rand(), buf[:explicitIVLen]); err != nil {
				return nil, err
			}
			block.(cbcExplicitIVSetter).SetIV(buf[:explicitIVLen])
		}
		block.CryptBlocks(buf[explicitIVLen:], plaintext)
		return buf, nil
	}
	if stream, ok := out.cipher.(cipher.Stream); ok {
		plaintext := append(append([]byte{}, data...), mac...)
		stream.XORKeyStream(plaintext, plaintext)
		out.incSeq()
		return plaintext, nil
	}
	return nil, handshakeError(errResource, alertInternalError, "unrecognized cipher state")
}

// cbcExplicitIVSetter lets writeRecordFragment install a freshly
// randomized explicit IV into an already-constructed CBC encrypter
// without reallocating it per record (TLS 1.1+/DTLS, RFC 5246 §6.2.3.2).
type cbcExplicitIVSetter interface {
	SetIV(iv []byte)
}

func (c *Conn) rand() io.Reader {
	if c.config.Rand != nil {
		return c.config.Rand
	}
	return defaultRandReader{}
}

// Read returns decrypted application data, blocking for
// more records as needed. Alerts received in the clear of this stream
// surface as io.EOF (close_notify) or the alert itself (anything
// fatal).
func (c *Conn) Read(b []byte) (int, error) {
	if !c.handshakeComplete {
		return 0, handshakeError(errProtocol, alertInternalError, "read before handshake complete")
	}
	for c.input.Len() == 0 {
		typ, payload, err := c.readRecord()
		if err != nil {
			return 0, err
		}
		switch typ {
		case recordTypeApplicationData:
			c.input.Write(payload)
		case recordTypeAlert:
			return 0, decodeAlert(payload)
		case recordTypeHandshake:
			// A post-handshake NewSessionTicket or HelloRequest; this
			// engine has nothing more to negotiate server-side once
			// OK is reached, so such messages are accepted and
			// discarded rather than treated as protocol errors.
		default:
			return 0, handshakeError(errProtocol, alertUnexpectedMessage, "unexpected record type %d", typ)
		}
	}
	return c.input.Read(b)
}

// Write encrypts and sends b as one or more application_data records.
func (c *Conn) Write(b []byte) (int, error) {
	if !c.handshakeComplete {
		return 0, handshakeError(errProtocol, alertInternalError, "write before handshake complete")
	}
	if err := c.writeRecord(recordTypeApplicationData, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close sends close_notify (best effort) and closes the
// underlying transport.
func (c *Conn) Close() error {
	if c.handshakeComplete {
		_ = c.writeRecord(recordTypeAlert, []byte{byte(alertLevelWarning), byte(alertCloseNotify)})
	}
	return c.conn.Close()
}

func (c *Conn) LocalAddr() net.Addr                { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *Conn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// ConnectionState returns the negotiated parameters of a completed
// handshake
func (c *Conn) ConnectionState() ConnectionState { return c.state }
