package types

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var errShortRead = errors.New("types: short read decoding canonical encoding")

// encoder builds the canonical byte encoding used for hashing and signing.
// Integers are written little-endian; variable-length byte fields are
// length-prefixed with a little-endian uint32 so that the overall encoding
// stays injective (spec.md §4.1).
type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) u64(v uint64) *encoder {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
	return e
}

func (e *encoder) u32(v uint32) *encoder {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
	return e
}

func (e *encoder) byte(v byte) *encoder {
	e.buf.WriteByte(v)
	return e
}

// fixed writes raw fixed-width bytes (hashes, addresses, keys) with no
// length prefix — their width is already implicit in the type.
func (e *encoder) fixed(b []byte) *encoder {
	e.buf.Write(b)
	return e
}

// bytesField writes a length-prefixed variable-length byte field.
func (e *encoder) bytesField(b []byte) *encoder {
	e.u32(uint32(len(b)))
	e.buf.Write(b)
	return e
}

// optionalFixed writes a presence byte followed by the fixed-width bytes when present,
// used for the optional `to` address and optional vote block hash.
func (e *encoder) optionalFixed(present bool, b []byte) *encoder {
	if present {
		e.byte(1)
		e.buf.Write(b)
	} else {
		e.byte(0)
	}
	return e
}

// optionalU64 writes a presence byte followed by the value when present,
// used for the optional chain_id field.
func (e *encoder) optionalU64(present bool, v uint64) *encoder {
	if present {
		e.byte(1)
		e.u64(v)
	} else {
		e.byte(0)
	}
	return e
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

// decoder reads back the encoding produced by encoder, used to parse account
// records out of trie leaf values.
type decoder struct {
	b   []byte
	pos int
}

func newDecoder(b []byte) *decoder { return &decoder{b: b} }

func (d *decoder) u64() (uint64, error) {
	if len(d.b)-d.pos < 8 {
		return 0, errShortRead
	}
	v := binary.LittleEndian.Uint64(d.b[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if len(d.b)-d.pos < 4 {
		return 0, errShortRead
	}
	v := binary.LittleEndian.Uint32(d.b[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) byte() (byte, error) {
	if len(d.b)-d.pos < 1 {
		return 0, errShortRead
	}
	v := d.b[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) fixed(n int) ([]byte, error) {
	if len(d.b)-d.pos < n {
		return nil, errShortRead
	}
	v := d.b[d.pos : d.pos+n]
	d.pos += n
	return v, nil
}

func (d *decoder) bytesField() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	return d.fixed(int(n))
}

func (d *decoder) optionalFixed(n int) (bool, []byte, error) {
	present, err := d.byte()
	if err != nil {
		return false, nil, err
	}
	if present == 0 {
		return false, nil, nil
	}
	b, err := d.fixed(n)
	return true, b, err
}

func (d *decoder) optionalU64() (bool, uint64, error) {
	present, err := d.byte()
	if err != nil {
		return false, 0, err
	}
	if present == 0 {
		return false, 0, nil
	}
	v, err := d.u64()
	return true, v, err
}
