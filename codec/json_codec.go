package codec

import (
	"encoding/json"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Pre-encoded payloads ([]byte, json.RawMessage) pass through untouched, so
// batches and hand-built requests reach the node byte for byte.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	switch p := v.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	}
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) ContentType() string {
	return "application/json"
}
