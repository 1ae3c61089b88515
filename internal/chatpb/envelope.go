// Package chatpb defines the wire envelope carried inside a protocol.Frame
// whose CmdType is CmdMessage, encoded with the protobuf wire format via
// google.golang.org/protobuf/encoding/protowire. A full .proto/protoc-gen-go
// pipeline is overkill for one small message shape, but the wire format and
// its varint/length-delimited encoding rules are exactly protobuf's, so we
// use the same library the generated code would use rather than inventing
// our own framing.
package chatpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldFromUserID protowire.Number = 1
	fieldToUserID   protowire.Number = 2
	fieldContent    protowire.Number = 3
	fieldMsgType    protowire.Number = 4
	fieldSeqID      protowire.Number = 5
	fieldTimestamp  protowire.Number = 6
)

// Envelope is one chat message as it travels between gateway and client, or
// between two gateways over Pub/Sub.
type Envelope struct {
	FromUserID string
	ToUserID   string
	Content    []byte
	MsgType    int32
	SeqID      int64
	Timestamp  int64
}

// Marshal encodes e as a protobuf message.
func Marshal(e *Envelope) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldFromUserID, protowire.BytesType)
	b = protowire.AppendString(b, e.FromUserID)
	b = protowire.AppendTag(b, fieldToUserID, protowire.BytesType)
	b = protowire.AppendString(b, e.ToUserID)
	if len(e.Content) > 0 {
		b = protowire.AppendTag(b, fieldContent, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Content)
	}
	b = protowire.AppendTag(b, fieldMsgType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.MsgType))
	b = protowire.AppendTag(b, fieldSeqID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.SeqID))
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Timestamp))
	return b
}

// Unmarshal decodes an Envelope from its protobuf wire form. Unknown fields
// are skipped rather than rejected, matching protobuf's forward-compat rule.
func Unmarshal(data []byte) (*Envelope, error) {
	e := &Envelope{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("chatpb: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldFromUserID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("chatpb: from_user_id: %w", protowire.ParseError(n))
			}
			e.FromUserID = v
			data = data[n:]
		case fieldToUserID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("chatpb: to_user_id: %w", protowire.ParseError(n))
			}
			e.ToUserID = v
			data = data[n:]
		case fieldContent:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("chatpb: content: %w", protowire.ParseError(n))
			}
			e.Content = append([]byte(nil), v...)
			data = data[n:]
		case fieldMsgType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("chatpb: msg_type: %w", protowire.ParseError(n))
			}
			e.MsgType = int32(v)
			data = data[n:]
		case fieldSeqID:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("chatpb: seq_id: %w", protowire.ParseError(n))
			}
			e.SeqID = int64(v)
			data = data[n:]
		case fieldTimestamp:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("chatpb: timestamp: %w", protowire.ParseError(n))
			}
			e.Timestamp = int64(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("chatpb: skip field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return e, nil
}
