package bin

// Small binary serialization library for the SST file format.
//
// The Encoder accumulates a sticky error so call sites can encode a whole
// record and check for failure once; the Decoder does the same for parsing.

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrShortBuffer is reported when a Decoder runs out of input mid-value.
var ErrShortBuffer = errors.New("bin: decode past end of buffer")

// Encoder writes binary values to an output stream.
type Encoder struct {
	w   io.Writer
	n   int
	err error
}

// NewEncoder creates an encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// BytesWritten returns the number of bytes written since creation.
func (e *Encoder) BytesWritten() int {
	return e.n
}

// Err returns the first write error encountered, if any.
func (e *Encoder) Err() error {
	return e.err
}

// Bytes copies raw bytes to the output.
func (e *Encoder) Bytes(b []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(b)
	e.n += n
	e.err = err
}

// Uint32 encodes a little-endian uint32.
func (e *Encoder) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.Bytes(b[:])
}

// Uint64 encodes a little-endian uint64.
func (e *Encoder) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.Bytes(b[:])
}

// Uvarint encodes a varint-compressed uint64.
func (e *Encoder) Uvarint(v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	e.Bytes(b[:n])
}

// String encodes a length-prefixed string.
func (e *Encoder) String(s string) {
	e.Uvarint(uint64(len(s)))
	e.Bytes([]byte(s))
}

// Decoder parses binary values from a byte buffer.
type Decoder struct {
	buf []byte
	err error
}

// NewDecoder creates a decoder over b. Retains b; the caller should not
// modify it afterward.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// RemainingBytes gives the number of unparsed bytes.
func (d *Decoder) RemainingBytes() int {
	return len(d.buf)
}

// Err returns the first decode error encountered, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Bytes consumes and returns the next n bytes.
func (d *Decoder) Bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf) {
		d.err = ErrShortBuffer
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

// Uint32 decodes a little-endian uint32.
func (d *Decoder) Uint32() uint32 {
	b := d.Bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 decodes a little-endian uint64.
func (d *Decoder) Uint64() uint64 {
	b := d.Bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Uvarint decodes a varint-compressed uint64.
func (d *Decoder) Uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.err = ErrShortBuffer
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

// String decodes a length-prefixed string.
func (d *Decoder) String() string {
	n := d.Uvarint()
	b := d.Bytes(int(n))
	return string(b)
}
