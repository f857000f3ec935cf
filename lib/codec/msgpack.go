package codec

import (
	"bytes"

	"github.com/valyala/bytebufferpool"
	"github.com/vmihailenco/msgpack/v5"
)

// NewMsgpackSerializer creates a new serializer using msgpack encoding
func NewMsgpackSerializer() IValueSerializer {
	return &msgpackSerializerImpl{}
}

// msgpackSerializerImpl implements the IValueSerializer interface using msgpack encoding
type msgpackSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.IValueSerializer)
// --------------------------------------------------------------------------

func (s *msgpackSerializerImpl) Serialize(v any) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	enc.Reset(buf)
	enc.UseCompactInts(true)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

func (s *msgpackSerializerImpl) Deserialize(b []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	dec.SetMapDecoder(func(d *msgpack.Decoder) (interface{}, error) {
		return d.DecodeUntypedMap()
	})

	v, err := dec.DecodeInterfaceLoose()
	if err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func (s *msgpackSerializerImpl) Name() string {
	return "msgpack"
}
