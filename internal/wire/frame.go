package wire

import (
	"encoding/binary"
	"io"
)

// MaxFrameBytes bounds how large an incoming frame's declared length may be,
// guarding against a corrupt or hostile length header causing an unbounded
// allocation.
const MaxFrameBytes = 64 << 20 // 64 MiB, generous for a screenshot payload

// ReadFrame reads one complete framed message from r: the 4-byte length
// header, then exactly that many bytes of opcode+payload. The returned
// slice still carries its leading opcode byte, ready for DecodePayload or
// DecodeResponsePayload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(header[:])
	if n == 0 {
		return nil, errInsufficient(1, 0)
	}
	if n > MaxFrameBytes {
		return nil, &InvalidPayloadError{Text: "frame length exceeds maximum"}
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes a pre-built frame (as returned by EncodeRequest or
// EncodeResponse, header included) to w.
func WriteFrame(w io.Writer, frame []byte) error {
	_, err := w.Write(frame)
	return err
}
