package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Codec converts between push frames and events.
type Codec interface {
	Encode(e Event) ([]byte, error)
	Decode(frame []byte) (Event, error)
}

// TextCodec is the line-oriented codec used on the TLS push stream.
type TextCodec struct{}

// Encode implements Codec.
func (TextCodec) Encode(e Event) ([]byte, error) {
	return []byte(EncodeFrame(e)), nil
}

// Decode implements Codec.
func (TextCodec) Decode(frame []byte) (Event, error) {
	if len(frame) == 0 {
		return Event{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	return ParseFrame(string(frame)), nil
}

// Protobuf field numbers of the binary event encoding.
const (
	fieldKind      protowire.Number = 1
	fieldSender    protowire.Number = 2
	fieldTimestamp protowire.Number = 3
	fieldBody      protowire.Number = 4
	fieldNames     protowire.Number = 5
	fieldNotice    protowire.Number = 6
)

// BinaryCodec encodes events in the protobuf wire format, one event per
// WebSocket binary message.
type BinaryCodec struct{}

// Encode implements Codec.
func (BinaryCodec) Encode(e Event) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Kind))
	b = appendString(b, fieldSender, e.Sender)
	b = appendString(b, fieldTimestamp, e.Timestamp)
	b = appendString(b, fieldBody, e.Body)
	for _, name := range e.Names {
		b = protowire.AppendTag(b, fieldNames, protowire.BytesType)
		b = protowire.AppendString(b, name)
	}
	if e.Notice != NoticeGeneric {
		b = protowire.AppendTag(b, fieldNotice, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Notice))
	}
	return b, nil
}

// Decode implements Codec.
// Unknown fields are skipped and unknown kinds degrade to a generic notice.
func (BinaryCodec) Decode(frame []byte) (Event, error) {
	if len(frame) == 0 {
		return Event{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	var e Event
	for len(frame) > 0 {
		num, typ, n := protowire.ConsumeTag(frame)
		if n < 0 {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		frame = frame[n:]

		switch {
		case typ == protowire.VarintType && (num == fieldKind || num == fieldNotice):
			v, m := protowire.ConsumeVarint(frame)
			if m < 0 {
				return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(m))
			}
			if num == fieldKind {
				e.Kind = EventKind(v)
			} else {
				e.Notice = NoticeKind(v)
			}
			n = m
		case typ == protowire.BytesType && num >= fieldSender && num <= fieldNames:
			s, m := protowire.ConsumeString(frame)
			if m < 0 {
				return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(m))
			}
			switch num {
			case fieldSender:
				e.Sender = s
			case fieldTimestamp:
				e.Timestamp = s
			case fieldBody:
				e.Body = s
			case fieldNames:
				e.Names = append(e.Names, s)
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, frame)
			if n < 0 {
				return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
			}
		}
		frame = frame[n:]
	}

	if e.Kind < EventChat || e.Kind > EventNotice {
		return Notice(NoticeGeneric, e.Body), nil
	}
	if e.Notice < NoticeGeneric || e.Notice > NoticeLeave {
		e.Notice = NoticeGeneric
	}
	return e, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}
