package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects the wire form of a session. JSON travels in text frames,
// msgpack in binary frames; both use the json field names.
type Encoding string

const (
	EncodingJSON    Encoding = "json"
	EncodingMsgpack Encoding = "msgpack"
)

func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", string(EncodingJSON):
		return EncodingJSON, nil
	case string(EncodingMsgpack):
		return EncodingMsgpack, nil
	}
	return "", fmt.Errorf("unknown encoding %q", s)
}

func (e Encoding) Binary() bool { return e == EncodingMsgpack }

func (e Encoding) Marshal(v any) ([]byte, error) {
	if e != EncodingMsgpack {
		return json.Marshal(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e Encoding) Unmarshal(b []byte, v any) error {
	if e != EncodingMsgpack {
		return json.Unmarshal(b, v)
	}
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// DecodeBase reads the routing header of a frame in either encoding.
func (e Encoding) DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := e.Unmarshal(b, &m)
	return m, err
}

// DecodeInput decodes an INPUT frame and validates it against its schema.
// Msgpack frames are validated through their JSON form.
func (e Encoding) DecodeInput(b []byte) (InputMsg, error) {
	var m InputMsg
	raw := b
	if e == EncodingMsgpack {
		if err := e.Unmarshal(b, &m); err != nil {
			return m, err
		}
		var err error
		if raw, err = json.Marshal(m); err != nil {
			return m, err
		}
	}
	if err := Validate(TypeInput, raw); err != nil {
		return m, err
	}
	if e == EncodingMsgpack {
		return m, nil
	}
	err := json.Unmarshal(raw, &m)
	return m, err
}
