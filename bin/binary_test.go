package bin

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRoundtrip(t *testing.T, enc func(e *Encoder), dec func(d *Decoder)) {
	var b bytes.Buffer
	e := NewEncoder(&b)
	enc(e)
	assert.NoError(t, e.Err())
	d := NewDecoder(b.Bytes())
	dec(d)
	assert.NoError(t, d.Err())
	assert.Equal(t, 0, d.RemainingBytes(), "decoder should consume all bytes")
}

func TestUints(t *testing.T) {
	for _, v := range []uint64{0, 3, 0x20DF135CE9DBF162, 0xfffffff} {
		testRoundtrip(t, func(e *Encoder) {
			e.Uint64(v)
		}, func(d *Decoder) {
			assert.Equal(t, v, d.Uint64(), "uint64 %v should roundtrip", v)
		})
	}
	for _, v := range []uint32{0, 3, 0xCE9DBF62, 0xffff} {
		testRoundtrip(t, func(e *Encoder) {
			e.Uint32(v)
		}, func(d *Decoder) {
			assert.Equal(t, v, d.Uint32(), "uint32 should roundtrip")
		})
	}
}

func TestUvarint(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 1 << 20, 1<<63 - 1} {
		testRoundtrip(t, func(e *Encoder) {
			e.Uvarint(v)
		}, func(d *Decoder) {
			assert.Equal(t, v, d.Uvarint(), "uvarint %v should roundtrip", v)
		})
	}
}

func TestString(t *testing.T) {
	for _, s := range []string{"", "k", "some longer string", "\x00binary\xff"} {
		testRoundtrip(t, func(e *Encoder) {
			e.String(s)
		}, func(d *Decoder) {
			assert.Equal(t, s, d.String())
		})
	}
}

func TestMixedRecord(t *testing.T) {
	testRoundtrip(t, func(e *Encoder) {
		e.String("key")
		e.String("value")
		e.Uint64(42)
		e.Uint32(7)
	}, func(d *Decoder) {
		assert.Equal(t, "key", d.String())
		assert.Equal(t, "value", d.String())
		assert.Equal(t, uint64(42), d.Uint64())
		assert.Equal(t, uint32(7), d.Uint32())
	})
}

func TestShortBuffer(t *testing.T) {
	d := NewDecoder([]byte{1, 2})
	d.Uint64()
	assert.ErrorIs(t, d.Err(), ErrShortBuffer)
}

func TestBytesWritten(t *testing.T) {
	var b bytes.Buffer
	e := NewEncoder(&b)
	e.Uint64(1)
	e.Uint32(2)
	assert.Equal(t, 12, e.BytesWritten())
	assert.Equal(t, 12, b.Len())
}
