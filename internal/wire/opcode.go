// Package wire implements the length-framed, little-endian, opcode-dispatched
// binary protocol spoken between the host and the on-device agent.
package wire

// OpCode identifies the shape of a message payload. Request opcodes are
// agent-bound; 0x99 and 0xA0 are agent-to-host only.
type OpCode byte

const (
	OpHeartbeat   OpCode = 0x01
	OpTapCoord    OpCode = 0x02
	OpTapElement  OpCode = 0x03
	OpTapByLabel  OpCode = 0x04
	OpTapWithType OpCode = 0x05
	OpTypeText    OpCode = 0x06
	OpSwipe       OpCode = 0x07
	OpGetValue    OpCode = 0x08
	OpLongPress   OpCode = 0x09
	OpDumpTree    OpCode = 0x10
	OpScreenshot  OpCode = 0x11
	OpSetTarget   OpCode = 0x12
	OpFindElement OpCode = 0x13

	OpBareError OpCode = 0x99
	OpResponse  OpCode = 0xA0
)

// ResponseKind is the 1-byte response sub-type carried under OpResponse.
type ResponseKind byte

const (
	RespOk         ResponseKind = 0x00
	RespError      ResponseKind = 0x01
	RespTree       ResponseKind = 0x02
	RespScreenshot ResponseKind = 0x03
	RespValue      ResponseKind = 0x04
	RespElement    ResponseKind = 0x05
)

func (o OpCode) String() string {
	switch o {
	case OpHeartbeat:
		return "Heartbeat"
	case OpTapCoord:
		return "TapCoord"
	case OpTapElement:
		return "TapElement"
	case OpTapByLabel:
		return "TapByLabel"
	case OpTapWithType:
		return "TapWithType"
	case OpTypeText:
		return "TypeText"
	case OpSwipe:
		return "Swipe"
	case OpGetValue:
		return "GetValue"
	case OpLongPress:
		return "LongPress"
	case OpDumpTree:
		return "DumpTree"
	case OpScreenshot:
		return "Screenshot"
	case OpSetTarget:
		return "SetTarget"
	case OpFindElement:
		return "FindElement"
	case OpBareError:
		return "BareError"
	case OpResponse:
		return "Response"
	default:
		return "Unknown"
	}
}
