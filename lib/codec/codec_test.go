package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IValueSerializer{
	"msgpack": NewMsgpackSerializer,
	"json":    NewJSONSerializer,
}

type point struct {
	X int
	Y string
}

// TestSerializerRoundTrip checks that values come back in their canonical shapes
func TestSerializerRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"small int", 7, int64(7)},
		{"negative int", -5, int64(-5)},
		{"large int", 1000000, int64(1000000)},
		{"int64 max", int64(math.MaxInt64), int64(math.MaxInt64)},
		{"uint64 max", uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{"uint8", uint8(200), int64(200)},
		{"float", 3.25, 3.25},
		{"integral float", 3.0, 3.0},
		{"float32", float32(0.5), 0.5},
		{"large float", 1e21, 1e21},
		{"mixed slice", []any{1, "two", 3.0}, []any{int64(1), "two", 3.0}},
		{"float map", map[string]float64{"f": 2}, map[string]any{"f": 2.0}},
		{"bytes", []byte("raw"), "raw"},
		{"string", "hello", "hello"},
		{"empty string", "", ""},
		{"bool", true, true},
		{"int slice", []int{1, 2, 300}, []any{int64(1), int64(2), int64(300)}},
		{"nested map", map[string]any{
			"a": 1,
			"b": []any{"x", 2.5},
			"c": map[string]int{"d": 4},
		}, map[string]any{
			"a": int64(1),
			"b": []any{"x", 2.5},
			"c": map[string]any{"d": int64(4)},
		}},
		{"int keys", map[int]string{1: "one"}, map[string]any{"1": "one"}},
		{"struct", point{X: 3, Y: "y"}, map[string]any{"X": int64(3), "Y": "y"}},
	}

	for name, factory := range testSerializers {
		s := factory()
		assert.Equal(t, name, s.Name())

		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				b, err := s.Serialize(tt.in)
				require.NoError(t, err)

				got, err := s.Deserialize(b)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	}
}

func TestMsgpackKeepsFloatType(t *testing.T) {
	s := NewMsgpackSerializer()
	b, err := s.Serialize(2.0)
	require.NoError(t, err)
	got, err := s.Deserialize(b)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestSmallIntsAreInt64(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()
			for _, in := range []any{int8(1), int16(-300), int32(70000), uint8(255), uint32(1 << 31), 7, -1} {
				b, err := s.Serialize(in)
				require.NoError(t, err)
				got, err := s.Deserialize(b)
				require.NoError(t, err)
				assert.IsType(t, int64(0), got, "value %v", in)
			}
		})
	}
}

func TestJSONRejectsNaN(t *testing.T) {
	_, err := NewJSONSerializer().Serialize(math.NaN())
	assert.Error(t, err)
}

func TestDeserializeGarbage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			_, err := factory().Deserialize(nil)
			assert.Error(t, err)
		})
	}
}

func TestByName(t *testing.T) {
	s, err := ByName("JSON")
	require.NoError(t, err)
	assert.Equal(t, "json", s.Name())

	s, err = ByName("")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", s.Name())

	_, err = ByName("gob")
	assert.Error(t, err)
}

func TestAdd(t *testing.T) {
	tests := []struct {
		a, b    any
		want    any
		wantErr bool
	}{
		{a: int64(1), b: 2, want: int64(3)},
		{a: 0, b: int64(-4), want: int64(-4)},
		{a: int64(1), b: 0.5, want: 1.5},
		{a: 1.5, b: uint8(1), want: 2.5},
		{a: "x", b: 1, wantErr: true},
		{a: 1, b: "1", wantErr: true},
		{a: true, b: 1, wantErr: true},
		{a: 1, b: nil, wantErr: true},
		{a: int64(math.MaxInt64 - 1), b: 1, want: int64(math.MaxInt64)},
		{a: uint64(math.MaxUint64 - 1), b: 1, want: uint64(math.MaxUint64)},
		{a: uint64(math.MaxUint64), b: int64(-1), want: uint64(math.MaxUint64 - 1)},
		{a: uint64(math.MaxInt64 + 1), b: int64(-1), want: int64(math.MaxInt64)},
	}

	for _, tt := range tests {
		got, err := Add(tt.a, tt.b)
		if tt.wantErr {
			assert.Error(t, err, "Add(%v, %v)", tt.a, tt.b)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "Add(%v, %v)", tt.a, tt.b)
	}
}

func TestAddOverflow(t *testing.T) {
	for _, tt := range []struct{ a, b any }{
		{int64(math.MaxInt64), 1},
		{int64(math.MinInt64), int64(-1)},
		{uint64(math.MaxUint64), 1},
		{1, uint64(math.MaxUint64)},
	} {
		_, err := Add(tt.a, tt.b)
		assert.ErrorIs(t, err, ErrOverflow, "Add(%v, %v)", tt.a, tt.b)
	}
}

func TestToInt64(t *testing.T) {
	n, ok := ToInt64(uint64(math.MaxInt64))
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), n)

	_, ok = ToInt64(uint64(math.MaxUint64))
	assert.False(t, ok)

	n, ok = ToInt64(2.9)
	assert.True(t, ok)
	assert.Equal(t, int64(2), n)
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric(1))
	assert.True(t, IsNumeric(uint16(1)))
	assert.True(t, IsNumeric(float32(1)))
	assert.False(t, IsNumeric(true))
	assert.False(t, IsNumeric("1"))
	assert.False(t, IsNumeric(nil))
}
