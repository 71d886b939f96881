// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// This file implements the DTLS-only delta on top of the shared
// TLS/DTLS record layer in conn.go: the handshake message-layer framing
// of RFC 6347 §4.2.2 (message_seq, fragment_offset, fragment_length).
// The transcript hash is unaffected, since RFC 6347 §4.2.6 specifies it
// runs over the plain TLS-style type+length header with the DTLS-only
// fields excluded; handshake_server.go's hs.fin.Write(wrapHandshake(...))
// calls already produce exactly that, unchanged by anything here.
//
// Reassembly of a handshake message delivered across multiple fragments
// and retransmission on timeout are not implemented: every message this
// engine sends is a single fragment equal to the whole message, and a
// peer that fragments is rejected rather than reassembled (see
// DESIGN.md's open-question decision).

package tls

const dtlsHandshakeHeaderLen = 12

// dtlsWrapHandshake builds the DTLS wire form of a handshake message
// from its type and body: the TLS-style type + u24 length header
// followed by message_seq/fragment_offset/fragment_length.
func dtlsWrapHandshake(typ handshakeType, body []byte, messageSeq uint16) []byte {
	w := NewWriter()
	w.U8(uint8(typ))
	w.U24(uint32(len(body)))
	w.U16(messageSeq)
	w.U24(0)
	w.U24(uint32(len(body)))
	w.Bytes(body)
	return w.MustFinish()
}

// dtlsUnwrapHandshake parses one DTLS handshake message out of a
// handshake record's plaintext payload. It rejects anything but a
// single complete fragment.
func dtlsUnwrapHandshake(payload []byte) (typ handshakeType, messageSeq uint16, body []byte, err error) {
	if len(payload) < dtlsHandshakeHeaderLen {
		return 0, 0, nil, ErrTruncated
	}
	c := NewCursor(payload)
	var t uint8
	var length, fragOffset, fragLength uint32
	var seq uint16
	if !c.U8(&t) || !c.U24(&length) || !c.U16(&seq) || !c.U24(&fragOffset) || !c.U24(&fragLength) {
		return 0, 0, nil, ErrTruncated
	}
	if fragOffset != 0 || fragLength != length {
		return 0, 0, nil, handshakeError(errProtocol, alertDecodeError, "fragmented DTLS handshake message not supported")
	}
	var b []byte
	if !c.Bytes(&b, int(length)) {
		return 0, 0, nil, ErrTruncated
	}
	return handshakeType(t), seq, b, nil
}

// nextSendSeq returns the message_seq to stamp on the next outgoing
// DTLS handshake message and advances the counter. HelloVerifyRequest
// does not consume a sequence number per RFC 6347 §4.2.2, so
// writeHandshakeMessage stamps it with messageSeq 0 without calling
// this.
func (c *Conn) nextSendSeq() uint16 {
	seq := c.dtlsSendSeq
	c.dtlsSendSeq++
	return seq
}

// checkRecvSeq enforces the simple in-order expectation this engine
// relies on in place of a reassembly/reorder buffer: each handshake
// message's message_seq must equal the next one expected.
func (c *Conn) checkRecvSeq(seq uint16) error {
	if seq != c.dtlsRecvSeq {
		return handshakeError(errProtocol, alertDecodeError, "out-of-order DTLS handshake message")
	}
	c.dtlsRecvSeq++
	return nil
}
