// Package codec encodes payloads for the wire and decodes node responses.
package codec

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	ContentType() string
}

// Default is the codec used when none is configured.
var Default Codec = &JSONCodec{}
