package codec

import (
	"fmt"
	"strings"
)

// IValueSerializer converts store values to bytes and back.
//
// Deserialize returns values in canonical shapes, regardless of the Go type that was serialized:
//   - integers: int64 (uint64 only for values above math.MaxInt64)
//   - floats: float64
//   - strings and byte slices: string
//   - lists: []any
//   - maps: map[string]any (keys are converted with fmt.Sprint)
//   - bools: bool
type IValueSerializer interface {
	// Serialize encodes a value. It returns an error if the value cannot be encoded.
	Serialize(v any) ([]byte, error)
	// Deserialize decodes bytes produced by Serialize of the same serializer.
	Deserialize(b []byte) (any, error)
	// Name returns the configuration name of the serializer.
	Name() string
}

// Default returns the serializer used when none is configured (msgpack).
func Default() IValueSerializer {
	return NewMsgpackSerializer()
}

// ByName returns the serializer with the given configuration name ("msgpack" or "json").
func ByName(name string) (IValueSerializer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "msgpack":
		return NewMsgpackSerializer(), nil
	case "json":
		return NewJSONSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q (expected one of: msgpack, json)", name)
	}
}
