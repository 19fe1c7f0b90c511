package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
)

// Codec 一条连接的线格式；Binary 决定 websocket 帧类型
type Codec interface {
	Name() string
	Binary() bool
	Encode(msg Outbound) ([]byte, error)
	Decode(frame []byte) (Inbound, error)
}

// ForName 按名称选择编解码器，未知名称回落到 JSON
func ForName(name string) Codec {
	if name == "msgpack" {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// JSONCodec 文本帧 {"type":..., "data":{...}}
type JSONCodec struct{}

type jsonEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (JSONCodec) Name() string { return "json" }
func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(msg Outbound) ([]byte, error) {
	return json.Marshal(struct {
		Type string   `json:"type"`
		Data Outbound `json:"data"`
	}{msg.Kind(), msg})
}

func (JSONCodec) Decode(frame []byte) (Inbound, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ctor, ok := inboundTypes[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	msg := ctor()
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return msg, nil
	}
	if err := json.Unmarshal(env.Data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

const msgpackNil = 0xc0

// MsgpackCodec 二进制帧，字段名沿用 json 标签
type MsgpackCodec struct{}

type msgpackEnvelope struct {
	Type string             `msgpack:"type"`
	Data msgpack.RawMessage `msgpack:"data"`
}

func (MsgpackCodec) Name() string { return "msgpack" }
func (MsgpackCodec) Binary() bool { return true }

func (MsgpackCodec) Encode(msg Outbound) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.EncodeMapLen(2); err != nil {
		return nil, err
	}
	if err := enc.EncodeString("type"); err != nil {
		return nil, err
	}
	if err := enc.EncodeString(msg.Kind()); err != nil {
		return nil, err
	}
	if err := enc.EncodeString("data"); err != nil {
		return nil, err
	}
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Decode(frame []byte) (Inbound, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ctor, ok := inboundTypes[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	msg := ctor()
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte{msgpackNil}) {
		return msg, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(env.Data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}
