package protocol

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding is a session's preferred wire representation.
type Encoding int

const (
	// EncodingBinary is the default: MessagePack frames over binary WS opcodes.
	EncodingBinary Encoding = iota
	// EncodingText is JSON frames over text WS opcodes, sticky once a session
	// authenticates with a text-JSON auth frame (preserves round-trippability).
	EncodingText
)

// Codec handles message encoding and decoding for the WebSocket and RPC layers.
type Codec struct{}

// NewCodec creates a new codec.
func NewCodec() *Codec {
	return &Codec{}
}

// EncodeMsgpack encodes a message to MessagePack bytes.
func (c *Codec) EncodeMsgpack(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

// DecodeMsgpack decodes MessagePack bytes to a message.
func (c *Codec) DecodeMsgpack(data []byte) (*Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeJSON encodes a message to JSON bytes.
func (c *Codec) EncodeJSON(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeJSON decodes JSON bytes to a message.
func (c *Codec) DecodeJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Decode tries the binary packed format first; a structural failure there
// falls back to text-JSON. Unknown message types decode successfully — the
// session layer, not the codec, rejects them.
func (c *Codec) Decode(data []byte) (*Message, error) {
	msg, err := c.DecodeMsgpack(data)
	if err != nil {
		return c.DecodeJSON(data)
	}
	return msg, nil
}

// Encode renders a message in the requested encoding.
func (c *Codec) Encode(msg *Message, enc Encoding) ([]byte, error) {
	if enc == EncodingText {
		return c.EncodeJSON(msg)
	}
	return c.EncodeMsgpack(msg)
}
