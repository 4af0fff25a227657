package wire

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// cursor is a sequential reader over a decoded message payload. Every Read*
// method advances pos and fails closed with InsufficientDataError rather
// than panicking on a short buffer.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) take(n int) ([]byte, error) {
	if c.remaining() < n {
		return nil, errInsufficient(n, c.remaining())
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) readByte() (byte, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readBool() (bool, error) {
	b, err := c.readByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (c *cursor) readI32() (int32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (c *cursor) readU32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readU64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) readF64() (float64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint64(b)
	return math.Float64frombits(bits), nil
}

func (c *cursor) readString(field string) (string, error) {
	n, err := c.readU32()
	if err != nil {
		return "", err
	}
	b, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &Utf8Error{Field: field}
	}
	return string(b), nil
}

func (c *cursor) readOptString(field string) (*string, error) {
	present, err := c.readBool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	s, err := c.readString(field)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *cursor) readBytes(field string) ([]byte, error) {
	n, err := c.readU32()
	if err != nil {
		return nil, err
	}
	b, err := c.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// readTrailingOptU64 implements the forward-compatible "optional u64
// trailing" field: the encoder always writes the presence flag, but an
// older decoder that stops before this field (or a truncated message) must
// still yield None rather than an error. Only the flag byte and, if set,
// the 8 value bytes are consumed; if the cursor has already run dry the
// field is treated as absent, not as an error.
func (c *cursor) readTrailingOptU64() (*uint64, error) {
	if c.remaining() == 0 {
		return nil, nil
	}
	present, err := c.readBool()
	if err != nil {
		return nil, nil
	}
	if !present {
		return nil, nil
	}
	if c.remaining() < 8 {
		return nil, nil
	}
	v, err := c.readU64()
	if err != nil {
		return nil, nil
	}
	return &v, nil
}
