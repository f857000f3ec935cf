package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// NewJSONSerializer creates a new serializer using json encoding.
// Floats are always written with a fraction or exponent (3.0, not 3) so they are decoded
// as float64 again.
func NewJSONSerializer() IValueSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IValueSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// jsonFloat marshals a float so that it cannot be mistaken for an integer.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, fmt.Errorf("unsupported float value %v", v)
	}
	b := strconv.AppendFloat(nil, v, 'g', -1, 64)
	if !bytes.ContainsAny(b, ".eE") {
		b = append(b, '.', '0')
	}
	return b, nil
}

// markFloats copies v into generic slices and maps with every float replaced by a jsonFloat.
// Structs and other types are passed through unchanged.
func markFloats(v any) any {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case float64:
		return jsonFloat(x)
	case float32:
		return jsonFloat(x)
	case []byte:
		return string(x)
	case json.Marshaler:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return jsonFloat(rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = markFloats(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = markFloats(iter.Value().Interface())
		}
		return out
	default:
		return v
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.IValueSerializer)
// --------------------------------------------------------------------------

func (s *jsonSerializerImpl) Serialize(v any) ([]byte, error) {
	return json.Marshal(markFloats(v))
}

func (s *jsonSerializerImpl) Deserialize(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func (s *jsonSerializerImpl) Name() string {
	return "json"
}
