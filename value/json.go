package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ParseJSON decodes a single JSON value, keeping object member order.
func ParseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("value: trailing data after JSON value")
	}
	return v, nil
}

// DecodeJSON reads the next JSON value from dec, keeping object member order.
// The decoder must have UseNumber enabled.
func DecodeJSON(dec *json.Decoder) (any, error) {
	return decodeJSON(dec)
}

func decodeJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch tok := tok.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return tok, nil
	case json.Number:
		f, err := strconv.ParseFloat(string(tok), 64)
		if err != nil {
			return nil, fmt.Errorf("value: bad number %q: %w", tok, err)
		}
		return finite(f, "")
	case float64:
		return finite(tok, "")
	case json.Delim:
		switch tok {
		case '[':
			arr := []any{}
			for dec.More() {
				el, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, el)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		case '{':
			obj := Object{}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("value: object key is %T", kt)
				}
				el, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, Member{key, el})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		}
	}
	return nil, fmt.Errorf("value: unexpected JSON token %v", tok)
}

// MarshalJSON writes members in order.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("value: expected JSON object, got %s", KindOf(v))
	}
	*o = obj
	return nil
}

// ToJSON renders a normalized value as compact JSON.
func ToJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
