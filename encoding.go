package ss

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/shootingstick/ss/value"
)

// appendMsgpack encodes v after buf using a pooled encoder. Structs are
// encoded through their msgpack tags; value.Object members keep their order.
func appendMsgpack(buf []byte, v any) ([]byte, error) {
	bb := bytesBuilder{buf}
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bb, nil)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
	}
	return bb.Buf, nil
}

func mustAppendMsgpack(buf []byte, v any) []byte {
	return must(appendMsgpack(buf, v))
}

func unmarshalMsgpack(buf []byte, v any) error {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(buf, 0, err, "failed to decode msgpack into %T", v)
	}
	return nil
}

// structured wraps a structured value so it can sit inside msgpack-tagged
// structs without losing object member order.
type structured struct {
	V any
}

var (
	_ msgpack.CustomEncoder = structured{}
	_ msgpack.CustomDecoder = (*structured)(nil)
)

func (s structured) EncodeMsgpack(enc *msgpack.Encoder) error {
	return value.EncodeMsgpack(enc, s.V)
}

func (s *structured) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := value.DecodeMsgpack(dec)
	if err != nil {
		return err
	}
	s.V = v
	return nil
}
