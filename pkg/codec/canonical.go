// Package codec implements the deterministic byte encoding that every
// signable or hashable structure in pkg/consensus is serialised through.
//
// Every peer must produce byte-identical output for the same logical value:
// BLS aggregate verification reconstructs each signer's message independently
// and will fail silently (by returning false, never by panicking) on the
// smallest encoding drift. There is no ecosystem library in the retrieved
// examples for this: borsh/protobuf/gob all carry either non-Go runtimes or
// reflection-driven field ordering that isn't pinned across versions, so the
// encoding here is hand-rolled over encoding/binary — see DESIGN.md for the
// justification.
package codec

import (
	"encoding/binary"
	"fmt"
)

// Writer accumulates a canonical byte encoding. Zero value is ready to use.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

// Tag writes a single variant discriminant byte ahead of a tagged union's payload.
func (w *Writer) Tag(t byte) { w.buf = append(w.buf, t) }

// Uint64 writes v as 8 little-endian bytes.
func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Raw appends b verbatim with no length prefix. Only safe for fixed-size
// fields (public keys, signatures, hashes) whose length is implied by type.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// LenPrefixed writes b length-prefixed (uint64 LE length, then the bytes),
// for any field whose length varies by value.
func (w *Writer) LenPrefixed(b []byte) {
	w.Uint64(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// Slice writes a length-prefixed ordered collection, invoking encode for
// each element in order. Order is part of the canonical form.
func Slice[T any](w *Writer, items []T, encode func(*Writer, T)) {
	w.Uint64(uint64(len(items)))
	for _, it := range items {
		encode(w, it)
	}
}

// Encodable is implemented by every structure that participates in a
// signature or hash.
type Encodable interface {
	EncodeCanonical(w *Writer)
}

// Encode runs v's canonical encoding and returns the resulting bytes.
func Encode(v Encodable) []byte {
	w := NewWriter()
	v.EncodeCanonical(w)
	return w.Bytes()
}

// Reader walks a canonical encoding produced by Writer. pkg/consensus's
// decode.go uses it to parse messages a real network transport has
// received back into structures; signatures themselves remain opaque once
// produced and are never decoded further than their raw bytes.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Tag() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("codec: truncated tag")
	}
	t := r.buf[r.pos]
	r.pos++
	return t, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, fmt.Errorf("codec: truncated uint64")
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *Reader) Raw(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("codec: truncated raw(%d)", n)
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	return r.Raw(int(n))
}

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }
