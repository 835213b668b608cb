// Package collation turns structured values into binary sort keys.
//
// Comparing two keys with bytes.Compare gives the same result as comparing
// the original values under CouchDB view collation:
//
//	null < false < true < numbers < strings < arrays < objects
//
// A key is a stream of big-endian 16-bit words. Every value starts with a
// type tag; arrays and objects end with a terminator tag that is smaller than
// every start tag, so a prefix array sorts before any of its extensions.
// Strings are represented by their Unicode collation key, with any word that
// could be mistaken for a tag preceded by an escape word. An object is encoded
// like an array of [key, value] pairs between its own start and end tags.
//
// Keys cannot be decoded back into values.
package collation

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/shootingstick/ss/value"
)

type Tag uint16

const (
	ArrayEnd Tag = 1 + iota
	ObjectEnd
	Null
	False
	True
	NegativeNumber
	PositiveNumber
	String
	ArrayStart
	ObjectStart

	Escape Tag = 0x000f
)

const (
	wordSize   = 2
	numberSize = wordSize + 8
)

// Locale is the collation used for strings: root UCA rules with all four
// comparison levels enabled.
var Locale = language.MustParse("und-u-ks-level4")

type InvalidValueError = value.InvalidValueError

// InvariantViolation is the panic value raised when an encoder writes a
// different number of bytes than it computed up front. It signals a codec
// defect and must never be recovered silently.
type InvariantViolation struct {
	Computed int
	Written  int
}

func (e InvariantViolation) Error() string {
	return fmt.Sprintf("collation: encoder wrote %d bytes, computed %d", e.Written, e.Computed)
}

// SortKey returns the binary sort key of v. It accepts normalized structured
// values only (see value.Normalize) and returns *InvalidValueError otherwise.
func SortKey(v any) ([]byte, error) {
	return AppendSortKey(nil, v)
}

// AppendSortKey appends the sort key of v to buf. On error buf is returned
// unchanged.
func AppendSortKey(buf []byte, v any) ([]byte, error) {
	e := encoderPool.Get().(*encoder)
	defer e.release()
	return e.append(buf, v)
}

// MustSortKey is like SortKey but panics on invalid input.
func MustSortKey(v any) []byte {
	k, err := SortKey(v)
	if err != nil {
		panic(err)
	}
	return k
}

var encoderPool = &sync.Pool{
	New: func() any {
		return &encoder{coll: collate.New(Locale)}
	},
}

// encoder carries a collator, which is not safe for concurrent use, plus
// scratch space reused between calls.
type encoder struct {
	coll    *collate.Collator
	buf     collate.Buffer
	strKeys map[string][]byte
}

func (e *encoder) release() {
	e.buf.Reset()
	clear(e.strKeys)
	encoderPool.Put(e)
}

func (e *encoder) append(buf []byte, v any) ([]byte, error) {
	size, err := e.size(v)
	if err != nil {
		return buf, err
	}
	start := len(buf)
	out := ensureCapacity(buf, start+size)
	out = e.write(out, v)
	if n := len(out) - start; n != size {
		panic(InvariantViolation{Computed: size, Written: n})
	}
	return out, nil
}

func (e *encoder) stringKey(s string) []byte {
	if k, ok := e.strKeys[s]; ok {
		return k
	}
	k := e.coll.KeyFromString(&e.buf, s)
	if len(k)%wordSize != 0 {
		k = append(k[:len(k):len(k)], 0)
	}
	if e.strKeys == nil {
		e.strKeys = make(map[string][]byte)
	}
	e.strKeys[s] = k
	return k
}

func (e *encoder) size(v any) (int, error) {
	switch v := v.(type) {
	case nil, bool:
		return wordSize, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &InvalidValueError{Value: v}
		}
		return numberSize, nil
	case string:
		return wordSize + escapedSize(e.stringKey(v)), nil
	case []any:
		total := 2 * wordSize
		for i, el := range v {
			n, err := e.size(el)
			if err != nil {
				return 0, withPathPrefix(err, fmt.Sprintf("[%d]", i))
			}
			total += n
		}
		return total, nil
	case value.Object:
		total := 2 * wordSize
		for _, m := range v {
			total += 3*wordSize + escapedSize(e.stringKey(m.Key))
			n, err := e.size(m.Value)
			if err != nil {
				return 0, withPathPrefix(err, "."+m.Key)
			}
			total += n
		}
		return total, nil
	default:
		return 0, &InvalidValueError{Value: v}
	}
}

func withPathPrefix(err error, seg string) error {
	if ive, ok := err.(*InvalidValueError); ok {
		ive.Path = seg + ive.Path
	}
	return err
}

func (e *encoder) write(buf []byte, v any) []byte {
	switch v := v.(type) {
	case nil:
		return appendWord(buf, Null)
	case bool:
		if v {
			return appendWord(buf, True)
		}
		return appendWord(buf, False)
	case float64:
		return appendNumber(buf, v)
	case string:
		return appendString(buf, e.stringKey(v))
	case []any:
		buf = appendWord(buf, ArrayStart)
		for _, el := range v {
			buf = e.write(buf, el)
		}
		return appendWord(buf, ArrayEnd)
	case value.Object:
		buf = appendWord(buf, ObjectStart)
		for _, m := range v {
			buf = appendWord(buf, ArrayStart)
			buf = appendString(buf, e.stringKey(m.Key))
			buf = e.write(buf, m.Value)
			buf = appendWord(buf, ArrayEnd)
		}
		return appendWord(buf, ObjectEnd)
	default:
		panic(fmt.Errorf("collation: unexpected %T after sizing", v))
	}
}

func appendWord(buf []byte, t Tag) []byte {
	return binary.BigEndian.AppendUint16(buf, uint16(t))
}

// appendNumber writes the tag and the IEEE-754 bits of |f|. For negative
// numbers every bit is inverted, so larger magnitudes sort first. Negative
// zero takes the positive path.
func appendNumber(buf []byte, f float64) []byte {
	if f < 0 {
		buf = appendWord(buf, NegativeNumber)
		return binary.BigEndian.AppendUint64(buf, ^math.Float64bits(-f))
	}
	buf = appendWord(buf, PositiveNumber)
	return binary.BigEndian.AppendUint64(buf, math.Float64bits(math.Abs(f)))
}

func appendString(buf []byte, key []byte) []byte {
	buf = appendWord(buf, String)
	for i := 0; i < len(key); i += wordSize {
		w := binary.BigEndian.Uint16(key[i:])
		if w <= uint16(Escape) {
			buf = appendWord(buf, Escape)
		}
		buf = binary.BigEndian.AppendUint16(buf, w)
	}
	return buf
}

func escapedSize(key []byte) int {
	size := len(key)
	for i := 0; i < len(key); i += wordSize {
		if binary.BigEndian.Uint16(key[i:]) <= uint16(Escape) {
			size += wordSize
		}
	}
	return size
}

func ensureCapacity(buf []byte, minCap int) []byte {
	if cap(buf) >= minCap {
		return buf
	}
	out := make([]byte, len(buf), minCap)
	copy(out, buf)
	return out
}
