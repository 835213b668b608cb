// Package value defines the structured values stored in documents and emitted by
// map functions: null, booleans, numbers, strings, arrays and objects.
//
// In Go, a structured value is an any holding one of:
//
//	nil, bool, float64, string, []any, Object
//
// Object is an ordered list of members. Member order is significant: it survives
// JSON and msgpack round trips and affects collation of object keys.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

type Kind int

const (
	Invalid Kind = iota
	Null
	Bool
	Number
	String
	Array
	Obj
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Obj:
		return "object"
	default:
		return "invalid"
	}
}

// KindOf reports the kind of a normalized value. Non-normalized values
// (ints, maps, structs) report Invalid.
func KindOf(v any) Kind {
	switch v := v.(type) {
	case nil:
		return Null
	case bool:
		return Bool
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Invalid
		}
		return Number
	case string:
		return String
	case []any:
		return Array
	case Object:
		return Obj
	default:
		return Invalid
	}
}

type Member struct {
	Key   string
	Value any
}

type Object []Member

func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

func (o Object) Has(key string) bool {
	_, found := o.Get(key)
	return found
}

// With returns a copy of o with key set to v. An existing member keeps its
// position; a new one is appended.
func (o Object) With(key string, v any) Object {
	out := make(Object, 0, len(o)+1)
	var replaced bool
	for _, m := range o {
		if m.Key == key {
			out = append(out, Member{key, v})
			replaced = true
		} else {
			out = append(out, m)
		}
	}
	if !replaced {
		out = append(out, Member{key, v})
	}
	return out
}

// Without returns a copy of o without the given keys.
func (o Object) Without(keys ...string) Object {
	out := make(Object, 0, len(o))
outer:
	for _, m := range o {
		for _, k := range keys {
			if m.Key == k {
				continue outer
			}
		}
		out = append(out, m)
	}
	return out
}

func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, m := range o {
		keys[i] = m.Key
	}
	return keys
}

type InvalidValueError struct {
	Path  string
	Value any
}

func (e *InvalidValueError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid structured value of type %T: %v", e.Value, e.Value)
	}
	return fmt.Sprintf("invalid structured value at %s of type %T: %v", e.Path, e.Value, e.Value)
}

// Normalize converts common Go representations into a structured value.
// Integers and float32 become float64, json.Number is parsed, map[string]T
// becomes an Object with keys sorted (Go maps have no order), and typed
// slices become []any. Non-finite numbers and other types are rejected.
func Normalize(v any) (any, error) {
	return normalize(v, "")
}

func MustNormalize(v any) any {
	r, err := Normalize(v)
	if err != nil {
		panic(err)
	}
	return r
}

func normalize(v any, path string) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return v, nil
	case float64:
		return finite(v, path)
	case float32:
		return finite(float64(v), path)
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return nil, &InvalidValueError{path, v}
		}
		return finite(f, path)
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			n, err := normalize(el, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case Object:
		out := make(Object, len(v))
		for i, m := range v {
			n, err := normalize(m.Value, path+"."+m.Key)
			if err != nil {
				return nil, err
			}
			out[i] = Member{m.Key, n}
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(Object, len(keys))
		for i, k := range keys {
			n, err := normalize(v[k], path+"."+k)
			if err != nil {
				return nil, err
			}
			out[i] = Member{k, n}
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		n := rv.Len()
		out := make([]any, n)
		for i := 0; i < n; i++ {
			el, err := normalize(rv.Index(i).Interface(), path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			out[i] = el
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return normalize(m, path)
	}
	return nil, &InvalidValueError{path, v}
}

func finite(f float64, path string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &InvalidValueError{path, f}
	}
	return f, nil
}

// Equal reports whether two normalized values are identical, including
// object member order.
func Equal(a, b any) bool {
	switch a := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && a == bv
	case float64:
		bv, ok := b.(float64)
		return ok && a == bv
	case string:
		bv, ok := b.(string)
		return ok && a == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(a) != len(bv) {
			return false
		}
		for i := range a {
			if !Equal(a[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(a) != len(bv) {
			return false
		}
		for i := range a {
			if a[i].Key != bv[i].Key || !Equal(a[i].Value, bv[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
