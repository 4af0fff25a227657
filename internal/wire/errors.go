package wire

import "fmt"

// InsufficientDataError means the cursor ran out of bytes before a field
// could be fully read: the payload is shorter than its fields require.
// Truncated input yields this error, never a panic.
type InsufficientDataError struct {
	Need int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("wire: insufficient data: need %d bytes, have %d", e.Need, e.Have)
}

// InvalidOpCodeError means the opcode byte did not match any known request
// or response variant.
type InvalidOpCodeError struct {
	Code byte
}

func (e *InvalidOpCodeError) Error() string {
	return fmt.Sprintf("wire: invalid opcode: 0x%02x", e.Code)
}

// Utf8Error means a length-prefixed string field contained invalid UTF-8.
type Utf8Error struct {
	Field string
}

func (e *Utf8Error) Error() string {
	return fmt.Sprintf("wire: invalid utf-8 in field %q", e.Field)
}

// InvalidPayloadError means the payload decoded structurally but failed a
// shape check (e.g. an unknown response sub-type, or a frame length header
// over the maximum frame size).
type InvalidPayloadError struct {
	Text string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("wire: invalid payload: %s", e.Text)
}

func errInsufficient(need, have int) error {
	return &InsufficientDataError{Need: need, Have: have}
}
