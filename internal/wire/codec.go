package wire

// EncodeRequest frames a request exactly as described in the wire protocol:
// 4-byte LE length header, opcode byte, then fields in declared order.
func EncodeRequest(r Request) []byte {
	b := newBuilder(r.OpCode())
	switch v := r.(type) {
	case Heartbeat:
	case TapCoord:
		b.writeI32(v.X)
		b.writeI32(v.Y)
	case TapElement:
		b.writeString(v.Selector)
		b.writeTrailingOptU64(v.TimeoutMs)
	case TapByLabel:
		b.writeString(v.Label)
		b.writeTrailingOptU64(v.TimeoutMs)
	case TapWithType:
		b.writeString(v.Selector)
		b.writeBool(v.ByLabel)
		b.writeString(v.Type)
		b.writeTrailingOptU64(v.TimeoutMs)
	case TypeText:
		b.writeString(v.Text)
	case Swipe:
		b.writeI32(v.StartX)
		b.writeI32(v.StartY)
		b.writeI32(v.EndX)
		b.writeI32(v.EndY)
		b.writeBool(v.Duration != nil)
		if v.Duration != nil {
			b.writeF64(*v.Duration)
		}
	case GetValue:
		b.writeString(v.Selector)
		b.writeBool(v.ByLabel)
		b.writeOptString(v.Type)
		b.writeTrailingOptU64(v.TimeoutMs)
	case LongPress:
		b.writeI32(v.X)
		b.writeI32(v.Y)
		b.writeF64(v.Duration)
	case DumpTree:
	case Screenshot:
	case SetTarget:
		b.writeString(v.BundleID)
	case FindElement:
		b.writeString(v.Selector)
		b.writeBool(v.ByLabel)
		b.writeOptString(v.Type)
	case BareError:
		b.writeString(v.Message)
	default:
		panic("wire: unknown request type")
	}
	return b.frame()
}

// EncodeResponse frames a Response under opcode 0xA0 with its kind byte.
func EncodeResponse(r Response) []byte {
	b := newBuilder(OpResponse)
	b.writeByte(byte(r.Kind))
	switch r.Kind {
	case RespOk:
	case RespError:
		b.writeString(r.Error)
	case RespTree:
		b.writeString(r.Tree)
	case RespScreenshot:
		b.writeBytes(r.Screenshot)
	case RespValue:
		b.writeOptString(r.Value)
	case RespElement:
		b.writeString(r.Element)
	default:
		panic("wire: unknown response kind")
	}
	return b.frame()
}

// DecodePayload decodes a request from a payload that still carries its
// leading opcode byte (the frame with the 4-byte length header already
// stripped). Used by the agent side; the host side uses DecodeResponsePayload.
func DecodePayload(payload []byte) (Request, error) {
	if len(payload) < 1 {
		return nil, errInsufficient(1, len(payload))
	}
	op := OpCode(payload[0])
	c := newCursor(payload[1:])

	switch op {
	case OpHeartbeat:
		return Heartbeat{}, nil
	case OpTapCoord:
		x, err := c.readI32()
		if err != nil {
			return nil, err
		}
		y, err := c.readI32()
		if err != nil {
			return nil, err
		}
		return TapCoord{X: x, Y: y}, nil
	case OpTapElement:
		sel, err := c.readString("selector")
		if err != nil {
			return nil, err
		}
		timeout, err := c.readTrailingOptU64()
		if err != nil {
			return nil, err
		}
		return TapElement{Selector: sel, TimeoutMs: timeout}, nil
	case OpTapByLabel:
		label, err := c.readString("label")
		if err != nil {
			return nil, err
		}
		timeout, err := c.readTrailingOptU64()
		if err != nil {
			return nil, err
		}
		return TapByLabel{Label: label, TimeoutMs: timeout}, nil
	case OpTapWithType:
		sel, err := c.readString("selector")
		if err != nil {
			return nil, err
		}
		byLabel, err := c.readBool()
		if err != nil {
			return nil, err
		}
		typ, err := c.readString("type")
		if err != nil {
			return nil, err
		}
		timeout, err := c.readTrailingOptU64()
		if err != nil {
			return nil, err
		}
		return TapWithType{Selector: sel, ByLabel: byLabel, Type: typ, TimeoutMs: timeout}, nil
	case OpTypeText:
		text, err := c.readString("text")
		if err != nil {
			return nil, err
		}
		return TypeText{Text: text}, nil
	case OpSwipe:
		sx, err := c.readI32()
		if err != nil {
			return nil, err
		}
		sy, err := c.readI32()
		if err != nil {
			return nil, err
		}
		ex, err := c.readI32()
		if err != nil {
			return nil, err
		}
		ey, err := c.readI32()
		if err != nil {
			return nil, err
		}
		hasDuration, err := c.readBool()
		if err != nil {
			return nil, err
		}
		var dur *float64
		if hasDuration {
			d, err := c.readF64()
			if err != nil {
				return nil, err
			}
			dur = &d
		}
		return Swipe{StartX: sx, StartY: sy, EndX: ex, EndY: ey, Duration: dur}, nil
	case OpGetValue:
		sel, err := c.readString("selector")
		if err != nil {
			return nil, err
		}
		byLabel, err := c.readBool()
		if err != nil {
			return nil, err
		}
		typ, err := c.readOptString("type")
		if err != nil {
			return nil, err
		}
		timeout, err := c.readTrailingOptU64()
		if err != nil {
			return nil, err
		}
		return GetValue{Selector: sel, ByLabel: byLabel, Type: typ, TimeoutMs: timeout}, nil
	case OpLongPress:
		x, err := c.readI32()
		if err != nil {
			return nil, err
		}
		y, err := c.readI32()
		if err != nil {
			return nil, err
		}
		dur, err := c.readF64()
		if err != nil {
			return nil, err
		}
		return LongPress{X: x, Y: y, Duration: dur}, nil
	case OpDumpTree:
		return DumpTree{}, nil
	case OpScreenshot:
		return Screenshot{}, nil
	case OpSetTarget:
		bundle, err := c.readString("bundle_id")
		if err != nil {
			return nil, err
		}
		return SetTarget{BundleID: bundle}, nil
	case OpFindElement:
		sel, err := c.readString("selector")
		if err != nil {
			return nil, err
		}
		byLabel, err := c.readBool()
		if err != nil {
			return nil, err
		}
		typ, err := c.readOptString("type")
		if err != nil {
			return nil, err
		}
		return FindElement{Selector: sel, ByLabel: byLabel, Type: typ}, nil
	case OpBareError:
		msg, err := c.readString("message")
		if err != nil {
			return nil, err
		}
		return BareError{Message: msg}, nil
	default:
		return nil, &InvalidOpCodeError{Code: byte(op)}
	}
}

// DecodeResponsePayload decodes a response from a payload with its leading
// opcode byte intact. Opcode 0x99 (bare error) is accepted and normalized to
// the same logical error shape as a RespError under 0xA0, per the codec's
// bare-error equivalence requirement.
func DecodeResponsePayload(payload []byte) (Response, error) {
	if len(payload) < 1 {
		return Response{}, errInsufficient(1, len(payload))
	}
	op := OpCode(payload[0])

	if op == OpBareError {
		c := newCursor(payload[1:])
		msg, err := c.readString("message")
		if err != nil {
			return Response{}, err
		}
		return Response{Kind: RespError, Error: msg}, nil
	}

	if op != OpResponse {
		return Response{}, &InvalidOpCodeError{Code: byte(op)}
	}

	c := newCursor(payload[1:])
	kindByte, err := c.readByte()
	if err != nil {
		return Response{}, err
	}
	kind := ResponseKind(kindByte)

	switch kind {
	case RespOk:
		return Response{Kind: RespOk}, nil
	case RespError:
		msg, err := c.readString("error")
		if err != nil {
			return Response{}, err
		}
		return Response{Kind: RespError, Error: msg}, nil
	case RespTree:
		tree, err := c.readString("tree")
		if err != nil {
			return Response{}, err
		}
		return Response{Kind: RespTree, Tree: tree}, nil
	case RespScreenshot:
		data, err := c.readBytes("screenshot")
		if err != nil {
			return Response{}, err
		}
		return Response{Kind: RespScreenshot, Screenshot: data}, nil
	case RespValue:
		val, err := c.readOptString("value")
		if err != nil {
			return Response{}, err
		}
		return Response{Kind: RespValue, Value: val}, nil
	case RespElement:
		el, err := c.readString("element")
		if err != nil {
			return Response{}, err
		}
		return Response{Kind: RespElement, Element: el}, nil
	default:
		return Response{}, &InvalidPayloadError{Text: "unknown response sub-type"}
	}
}
