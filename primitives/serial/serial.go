// Package serial implements the deterministic canonical binary encoding
// mandated by spec §4.A: unsigned integers big-endian at fixed width,
// variable-length byte strings prefixed by a 16-bit length, enums prefixed
// by a single discriminant byte. Every domain object's serialize_content
// (the form that is hashed and signed) is built with this codec.
//
// This is deliberately not RLP: the wire format is fixed-width and
// discriminant-tagged rather than length-prefixed-recursive, so byte layout
// must be controlled directly; encoding/binary is used rather than any
// third-party codec (see DESIGN.md).
package serial

import (
	"encoding/binary"
	"errors"
	"io"
)

var ErrVarBytesTooLong = errors.New("serial: variable-length byte string exceeds 65535 bytes")

// Writer accumulates a canonical byte encoding.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteFixed appends a fixed-width byte array verbatim (e.g. an Address,
// Hash, PublicKey, or Signature) with no length prefix.
func (w *Writer) WriteFixed(b []byte) { w.buf = append(w.buf, b...) }

// WriteVarBytes appends a u16-length-prefixed byte string.
func (w *Writer) WriteVarBytes(b []byte) error {
	if len(b) > 0xFFFF {
		return ErrVarBytesTooLong
	}
	w.WriteUint16(uint16(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

// WriteDiscriminant writes the single-byte tag identifying which variant of
// an enum/tagged-union follows.
func (w *Writer) WriteDiscriminant(tag uint8) { w.WriteUint8(tag) }

// Reader consumes a canonical byte encoding produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadFixed(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *Reader) ReadVarBytes() ([]byte, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	return r.ReadFixed(int(n))
}

func (r *Reader) ReadDiscriminant() (uint8, error) { return r.ReadUint8() }
