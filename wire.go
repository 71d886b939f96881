// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"golang.org/x/crypto/cryptobyte"
)

// Cursor is a read-only view over a bounded byte slice. Every advance is
// checked against the remaining span; exceeding it is reported through
// ok rather than a panic, per It wraps cryptobyte.String,
// which already implements exactly this "immutable slice, checked
// advance" contract.
type Cursor struct {
	s cryptobyte.String
}

// NewCursor wraps b for reading. b is not copied; callers must not
// mutate it while the cursor is in use.
func NewCursor(b []byte) *Cursor {
	return &Cursor{s: cryptobyte.String(b)}
}

func (c *Cursor) Len() int { return len(c.s) }

func (c *Cursor) Empty() bool { return len(c.s) == 0 }

// AssertExhausted fails if any bytes remain in the cursor. Callers that
// parsed a length-prefixed sub-message must call this before accepting
// it: a sub-cursor must itself be fully consumed.
func (c *Cursor) AssertExhausted() bool { return c.Empty() }

func (c *Cursor) U8(out *uint8) bool { return c.s.ReadUint8(out) }

func (c *Cursor) U16(out *uint16) bool { return c.s.ReadUint16(out) }

func (c *Cursor) U24(out *uint32) bool { return c.s.ReadUint24(out) }

func (c *Cursor) U32(out *uint32) bool { return c.s.ReadUint32(out) }

func (c *Cursor) Bytes(out *[]byte, n int) bool { return c.s.ReadBytes(out, n) }

func (c *Cursor) Skip(n int) bool { return c.s.Skip(n) }

// Peek returns the next n bytes without consuming them, or false if
// fewer than n bytes remain.
func (c *Cursor) Peek(n int) ([]byte, bool) {
	if len(c.s) < n {
		return nil, false
	}
	return []byte(c.s[:n]), true
}

// U8LengthPrefixed reads a u8-length-prefixed sub-slice and returns a
// cursor bounded to exactly that sub-slice.
func (c *Cursor) U8LengthPrefixed() (*Cursor, bool) {
	var child cryptobyte.String
	if !c.s.ReadUint8LengthPrefixed(&child) {
		return nil, false
	}
	return &Cursor{s: child}, true
}

// U16LengthPrefixed reads a u16-length-prefixed sub-slice.
func (c *Cursor) U16LengthPrefixed() (*Cursor, bool) {
	var child cryptobyte.String
	if !c.s.ReadUint16LengthPrefixed(&child) {
		return nil, false
	}
	return &Cursor{s: child}, true
}

// U24LengthPrefixed reads a u24-length-prefixed sub-slice (used for TLS
// handshake message bodies).
func (c *Cursor) U24LengthPrefixed() (*Cursor, bool) {
	var child cryptobyte.String
	if !c.s.ReadUint24LengthPrefixed(&child) {
		return nil, false
	}
	return &Cursor{s: child}, true
}

// U8LengthPrefixedBytes reads a u8-length-prefixed opaque string and
// returns its raw bytes (convenience over U8LengthPrefixed for leaf
// fields that are never themselves structured).
func (c *Cursor) U8LengthPrefixedBytes() ([]byte, bool) {
	child, ok := c.U8LengthPrefixed()
	if !ok {
		return nil, false
	}
	return []byte(child.s), true
}

func (c *Cursor) U16LengthPrefixedBytes() ([]byte, bool) {
	child, ok := c.U16LengthPrefixed()
	if !ok {
		return nil, false
	}
	return []byte(child.s), true
}

// Writer builds a big-endian, length-prefixed wire message. It wraps
// cryptobyte.Builder, which already patches length headers when a child
// builder closes and fails closed on overflow of a fixed-capacity
// buffer.
type Writer struct {
	b *cryptobyte.Builder
}

func NewWriter() *Writer {
	return &Writer{b: cryptobyte.NewBuilder(nil)}
}

// NewFixedWriter builds into a pre-sized buffer of exactly cap bytes;
// any add that would overflow it fails the builder permanently.
func NewFixedWriter(capacity int) *Writer {
	return &Writer{b: cryptobyte.NewFixedBuilder(make([]byte, 0, capacity))}
}

func (w *Writer) U8(v uint8) *Writer { w.b.AddUint8(v); return w }

func (w *Writer) U16(v uint16) *Writer { w.b.AddUint16(v); return w }

func (w *Writer) U24(v uint32) *Writer { w.b.AddUint24(v); return w }

func (w *Writer) U32(v uint32) *Writer { w.b.AddUint32(v); return w }

func (w *Writer) Bytes(p []byte) *Writer { w.b.AddBytes(p); return w }

// U8LengthPrefixed appends a child region whose one-byte length header
// is patched in once fn returns.
func (w *Writer) U8LengthPrefixed(fn func(*Writer)) *Writer {
	w.b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		fn(&Writer{b: b})
	})
	return w
}

func (w *Writer) U16LengthPrefixed(fn func(*Writer)) *Writer {
	w.b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		fn(&Writer{b: b})
	})
	return w
}

func (w *Writer) U24LengthPrefixed(fn func(*Writer)) *Writer {
	w.b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		fn(&Writer{b: b})
	})
	return w
}

// Finish returns the accumulated bytes. It fails if any add since
// construction overflowed a fixed-capacity buffer or otherwise reported
// an error.
func (w *Writer) Finish() ([]byte, error) {
	return w.b.Bytes()
}

// MustFinish is Finish for call sites that have already proven the
// writer cannot fail (e.g. building into an unbounded Writer).
func (w *Writer) MustFinish() []byte {
	return w.b.BytesOrPanic()
}
