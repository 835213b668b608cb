package value

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// EncodeMsgpack writes a normalized value. Numbers are always written as
// float64 and objects as maps in member order, so equal values produce equal
// bytes.
func EncodeMsgpack(enc *msgpack.Encoder, v any) error {
	switch v := v.(type) {
	case nil:
		return enc.EncodeNil()
	case bool:
		return enc.EncodeBool(v)
	case float64:
		return enc.EncodeFloat64(v)
	case string:
		return enc.EncodeString(v)
	case []any:
		if err := enc.EncodeArrayLen(len(v)); err != nil {
			return err
		}
		for _, el := range v {
			if err := EncodeMsgpack(enc, el); err != nil {
				return err
			}
		}
		return nil
	case Object:
		return v.EncodeMsgpack(enc)
	default:
		return &InvalidValueError{Value: v}
	}
}

func (o Object) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(o)); err != nil {
		return err
	}
	for _, m := range o {
		if err := enc.EncodeString(m.Key); err != nil {
			return err
		}
		if err := EncodeMsgpack(enc, m.Value); err != nil {
			return err
		}
	}
	return nil
}

func (o *Object) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := DecodeMsgpack(dec)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("value: expected msgpack map, got %s", KindOf(v))
	}
	*o = obj
	return nil
}

// DecodeMsgpack reads one value, turning maps into Objects in wire order.
func DecodeMsgpack(dec *msgpack.Decoder) (any, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	switch {
	case c == msgpcode.Nil:
		return nil, dec.DecodeNil()
	case c == msgpcode.False || c == msgpcode.True:
		return dec.DecodeBool()
	case isNumberCode(c):
		return dec.DecodeFloat64()
	case msgpcode.IsString(c):
		return dec.DecodeString()
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		arr := make([]any, 0, max(n, 0))
		for i := 0; i < n; i++ {
			el, err := DecodeMsgpack(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, el)
		}
		return arr, nil
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		obj := make(Object, 0, max(n, 0))
		for i := 0; i < n; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			el, err := DecodeMsgpack(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, Member{key, el})
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("value: unsupported msgpack code 0x%02x", c)
	}
}

func isNumberCode(c byte) bool {
	if msgpcode.IsFixedNum(c) {
		return true
	}
	switch c {
	case msgpcode.Float, msgpcode.Double,
		msgpcode.Uint8, msgpcode.Uint16, msgpcode.Uint32, msgpcode.Uint64,
		msgpcode.Int8, msgpcode.Int16, msgpcode.Int32, msgpcode.Int64:
		return true
	}
	return false
}

// AppendMsgpack appends the encoding of v to buf.
func AppendMsgpack(buf []byte, v any) ([]byte, error) {
	bb := bytes.NewBuffer(buf)
	enc := msgpack.GetEncoder()
	enc.Reset(bb)
	err := EncodeMsgpack(enc, v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return bb.Bytes(), nil
}

func UnmarshalMsgpack(data []byte) (any, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(data))
	return DecodeMsgpack(dec)
}
