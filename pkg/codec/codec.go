// Package codec implements the canonical binary encoding for every
// structural type in the data model, plus the id/hash functions built
// on top of it. The wire form is fixed by field order; integers are
// little-endian; sequences carry a u16 length prefix; tagged variants
// emit a one-byte discriminant before their body.
//
// The reader/writer pair here is adapted from the teacher's
// pkg/prot.Conn: a struct that sticks its first error and turns every
// subsequent call into a no-op, so a decode pipeline reads top to
// bottom without an if err != nil after every field.
package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/tangle-go/client/pkg/core"
	"github.com/tangle-go/client/pkg/tangleerr"
	"golang.org/x/crypto/blake2b"
)

// Encoder accumulates the canonical byte form of one value. Writes
// never fail, so unlike Decoder it carries no sticky error.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) WriteUint8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *Encoder) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteUint8(1)
	} else {
		e.WriteUint8(0)
	}
}

// WriteFixed writes raw bytes with no length prefix, for fields whose
// size is implied by the type (hashes, public keys, signatures).
func (e *Encoder) WriteFixed(v []byte) {
	e.buf.Write(v)
}

// WriteBytes writes a u16-length-prefixed byte slice.
func (e *Encoder) WriteBytes(v []byte) {
	e.WriteUint16(uint16(len(v)))
	e.buf.Write(v)
}

// WriteString writes a u16-length-prefixed UTF-8 string.
func (e *Encoder) WriteString(v string) {
	e.WriteBytes([]byte(v))
}

func (e *Encoder) WriteMessageId(v core.MessageId) {
	e.WriteFixed(v.Bytes())
}

func (e *Encoder) WriteAddress(v core.Address) {
	e.WriteUint8(uint8(v.Variant))
	e.WriteBytes(v.Payload)
}

// Decoder consumes the canonical byte form of one value. The first
// error encountered is sticky: every read after it returns a zero
// value instead of panicking or re-reporting.
type Decoder struct {
	data []byte
	pos  int
	err  error
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) fail(format string, args ...interface{}) {
	if d.err == nil {
		d.err = tangleerr.New(tangleerr.KindMalformedMessage, format, args...)
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.data) {
		d.fail("length prefix exceeds remaining buffer: want %d, have %d", n, len(d.data)-d.pos)
		return nil
	}
	out := d.data[d.pos : d.pos+n]
	d.pos += n
	return out
}

func (d *Decoder) ReadUint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) ReadUint16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *Decoder) ReadUint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) ReadUint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) ReadBool() bool {
	v := d.ReadUint8()
	if v > 1 {
		d.fail("unrecognized bool byte: %d", v)
		return false
	}
	return v == 1
}

func (d *Decoder) ReadFixed(n int) []byte {
	b := d.take(n)
	if b == nil {
		return make([]byte, n)
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// ReadBytes reads a u16-length-prefixed byte slice.
func (d *Decoder) ReadBytes() []byte {
	n := d.ReadUint16()
	if d.err != nil {
		return nil
	}
	return d.take(int(n))
}

func (d *Decoder) ReadString() string {
	b := d.ReadBytes()
	if b == nil {
		return ""
	}
	return string(b)
}

func (d *Decoder) ReadMessageId() core.MessageId {
	id, err := core.NewMessageIdFromBytes(d.ReadFixed(32))
	if err != nil {
		d.fail("%s", err)
	}
	return id
}

func (d *Decoder) ReadAddress() core.Address {
	variant := core.AddressVariant(d.ReadUint8())
	if variant != core.AddressEd25519 && variant != core.AddressWots {
		d.fail("unknown address variant discriminant: %d", variant)
	}
	payload := d.ReadBytes()
	if d.err != nil {
		return core.Address{}
	}
	return core.Address{Variant: variant, Payload: payload}
}

// Remaining reports how many undecoded bytes are left, used by callers
// that must reject trailing garbage after a top-level decode.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

// Blake2b256 is the digest this package's id/hash functions use.
func Blake2b256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}
