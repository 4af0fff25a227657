package wire

import (
	"encoding/binary"
	"math"
)

// builder accumulates a message payload (opcode + fields) before it is
// wrapped in the 4-byte length header by Encode.
type builder struct {
	buf []byte
}

func newBuilder(op OpCode) *builder {
	b := &builder{buf: make([]byte, 0, 64)}
	b.buf = append(b.buf, byte(op))
	return b
}

func (b *builder) writeByte(v byte) {
	b.buf = append(b.buf, v)
}

func (b *builder) writeBool(v bool) {
	if v {
		b.writeByte(1)
	} else {
		b.writeByte(0)
	}
}

func (b *builder) writeI32(v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	b.buf = append(b.buf, tmp[:]...)
}

func (b *builder) writeU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *builder) writeU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *builder) writeF64(v float64) {
	b.writeU64(math.Float64bits(v))
}

func (b *builder) writeString(s string) {
	b.writeU32(uint32(len(s)))
	b.buf = append(b.buf, s...)
}

func (b *builder) writeOptString(s *string) {
	if s == nil {
		b.writeBool(false)
		return
	}
	b.writeBool(true)
	b.writeString(*s)
}

func (b *builder) writeBytes(p []byte) {
	b.writeU32(uint32(len(p)))
	b.buf = append(b.buf, p...)
}

// writeTrailingOptU64 always writes the presence flag, per the wire's
// forward-compatibility rule for trailing optional fields.
func (b *builder) writeTrailingOptU64(v *uint64) {
	if v == nil {
		b.writeBool(false)
		return
	}
	b.writeBool(true)
	b.writeU64(*v)
}

// frame prepends the 4-byte little-endian length header (opcode + payload,
// excluding the header itself) and returns the complete wire message.
func (b *builder) frame() []byte {
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(b.buf)))
	out := make([]byte, 0, 4+len(b.buf))
	out = append(out, header[:]...)
	out = append(out, b.buf...)
	return out
}
