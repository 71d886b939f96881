// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"bytes"
	"testing"
)

func TestWriterCursorRoundTrip(t *testing.T) {
	w := NewWriter()
	w.U8(7)
	w.U16(1234)
	w.U24(567890)
	w.U8LengthPrefixed(func(w *Writer) { w.Bytes([]byte("abc")) })
	w.U16LengthPrefixed(func(w *Writer) { w.U16(1); w.U16(2) })
	out := w.MustFinish()

	c := NewCursor(out)
	var u8 uint8
	var u16 uint16
	var u24 uint32
	if !c.U8(&u8) || u8 != 7 {
		t.Fatalf("U8 = %d, want 7", u8)
	}
	if !c.U16(&u16) || u16 != 1234 {
		t.Fatalf("U16 = %d, want 1234", u16)
	}
	if !c.U24(&u24) || u24 != 567890 {
		t.Fatalf("U24 = %d, want 567890", u24)
	}
	b, ok := c.U8LengthPrefixedBytes()
	if !ok || !bytes.Equal(b, []byte("abc")) {
		t.Fatalf("U8LengthPrefixedBytes = %q, want %q", b, "abc")
	}
	sub, ok := c.U16LengthPrefixed()
	if !ok {
		t.Fatal("U16LengthPrefixed failed")
	}
	var a, bb uint16
	if !sub.U16(&a) || !sub.U16(&bb) || a != 1 || bb != 2 {
		t.Fatalf("sub values = %d, %d, want 1, 2", a, bb)
	}
	if !sub.AssertExhausted() {
		t.Fatal("sub cursor not exhausted")
	}
	if !c.Empty() {
		t.Fatal("outer cursor not exhausted")
	}
}

func TestCursorTruncated(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02})
	var u32 uint32
	if c.U32(&u32) {
		t.Fatal("expected U32 to fail on a 2-byte cursor")
	}
}

func TestWrapHandshake(t *testing.T) {
	body := []byte("hello")
	framed := wrapHandshake(typeClientHello, body)
	if framed[0] != byte(typeClientHello) {
		t.Fatalf("type byte = %d, want %d", framed[0], typeClientHello)
	}
	length := int(framed[1])<<16 | int(framed[2])<<8 | int(framed[3])
	if length != len(body) {
		t.Fatalf("length = %d, want %d", length, len(body))
	}
	if !bytes.Equal(framed[4:], body) {
		t.Fatalf("body = %q, want %q", framed[4:], body)
	}
}
