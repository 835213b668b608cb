package collation

import (
	"bytes"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shootingstick/ss/value"
)

func assertAscending(t *testing.T, values ...any) {
	t.Helper()
	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = MustSortKey(value.MustNormalize(v))
	}
	for i := 1; i < len(keys); i++ {
		assert.Negative(t, bytes.Compare(keys[i-1], keys[i]), "expected %v < %v\n%x\n%x", values[i-1], values[i], keys[i-1], keys[i])
	}
}

func TestTypePrecedence(t *testing.T) {
	assertAscending(t,
		nil,
		false,
		true,
		-1e300,
		0,
		1e300,
		"",
		"a",
		[]any{},
		[]any{nil},
		value.Object{},
		value.Object{{Key: "a", Value: 1}},
	)
}

func TestNumbers(t *testing.T) {
	assertAscending(t, -1000000, -12, -3, -0.0001, 0, 0.00001, 0.001, 3, 3.00001, 3.0001, 3.001, 3.01, 3.1, 4, 5, 100, float64(1<<50), 1e38)
	assertAscending(t, -math.MaxFloat64, -1, -math.SmallestNonzeroFloat64, 0, math.SmallestNonzeroFloat64, math.MaxFloat64)
}

func TestNegativeZeroIsZero(t *testing.T) {
	assert.Equal(t, MustSortKey(0.0), MustSortKey(math.Copysign(0, -1)))
}

func TestNumberLayout(t *testing.T) {
	k := MustSortKey(1.0)
	require.Len(t, k, numberSize)
	assert.Equal(t, []byte{0, byte(PositiveNumber), 0x3f, 0xf0, 0, 0, 0, 0, 0, 0}, k)

	k = MustSortKey(-1.0)
	assert.Equal(t, []byte{0, byte(NegativeNumber), 0xc0, 0x0f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, k)
}

func TestStrings(t *testing.T) {
	assertAscending(t, "123", "andover", "Andrew", "andy", "Andy", "Sam", "Smoo")
	assertAscending(t, "a", "á", "b")
	assertAscending(t, "", "a", "aa")
	// Root collation puts punctuation ahead of digits and letters.
	assertAscending(t, "", "~", "123", "andover")
}

func TestStringsNeverCollideWithTags(t *testing.T) {
	for _, s := range []string{"", "a", "\x00", "\x01", "~", "中文", "á"} {
		k := MustSortKey(s)
		require.Equal(t, uint16(String), uint16(k[0])<<8|uint16(k[1]))
		for i := wordSize; i < len(k); i += wordSize {
			w := uint16(k[i])<<8 | uint16(k[i+1])
			if w <= uint16(Escape) {
				require.Equal(t, uint16(Escape), w, "unescaped low word at %d in %x", i, k)
				i += wordSize
			}
		}
	}
}

func TestArrays(t *testing.T) {
	assertAscending(t, []any{}, []any{"A"}, []any{"A", "B"}, []any{"A", "B", "C"}, []any{"B"})
	assertAscending(t, []any{1937, 1}, []any{1937, 1, "x"}, []any{1937, 2}, []any{1937, 12}, []any{1938})
	assertAscending(t, []any{[]any{1}}, []any{[]any{1}, 0}, []any{[]any{2}})
}

func TestObjects(t *testing.T) {
	assertAscending(t,
		value.Object{},
		value.Object{{Key: "A", Value: 3}, {Key: "B", Value: 12}},
		value.Object{{Key: "A", Value: 3}, {Key: "B", Value: 12}, {Key: "C", Value: 0}},
		value.Object{{Key: "A", Value: 13}, {Key: "B", Value: 1}},
		value.Object{{Key: "A", Value: 13}, {Key: "B", Value: 9}},
	)

	// Member order is significant.
	a := MustSortKey(value.Object{{Key: "a", Value: 1.0}, {Key: "b", Value: 2.0}})
	b := MustSortKey(value.Object{{Key: "b", Value: 2.0}, {Key: "a", Value: 1.0}})
	assert.NotEqual(t, a, b)
}

func TestDeterminism(t *testing.T) {
	v := value.MustNormalize([]any{"Hello", 3.5, value.Object{{Key: "k", Value: []any{nil, true}}}})
	first := MustSortKey(v)
	for range 10 {
		assert.Equal(t, first, MustSortKey(v))
	}
}

func TestAppendSortKey(t *testing.T) {
	prefix := []byte("pre")
	out, err := AppendSortKey(prefix, "x")
	require.NoError(t, err)
	assert.Equal(t, "pre", string(out[:3]))
	assert.Equal(t, MustSortKey("x"), out[3:])
}

func TestInvalidValues(t *testing.T) {
	for _, v := range []any{
		3,
		math.NaN(),
		math.Inf(-1),
		map[string]any{"a": 1.0},
		[]any{1.0, struct{}{}},
		value.Object{{Key: "a", Value: []any{int64(1)}}},
	} {
		buf := []byte("keep")
		out, err := AppendSortKey(buf, v)
		var ive *InvalidValueError
		require.ErrorAs(t, err, &ive, "%#v", v)
		assert.Equal(t, "keep", string(out))
	}

	_, err := SortKey(value.Object{{Key: "a", Value: []any{int64(1)}}})
	var ive *InvalidValueError
	require.ErrorAs(t, err, &ive)
	assert.Equal(t, ".a[0]", ive.Path)
}

func TestSortMixedDemo(t *testing.T) {
	things := []any{
		[]any{"A", "B", "C"},
		value.Object{{Key: "A", Value: 3}, {Key: "B", Value: 12}},
		"Hello",
		[]any{"A"},
		"Sam",
		5,
		nil,
		-3,
		[]any{},
		true,
	}
	want := []any{
		nil,
		true,
		-3,
		5,
		"Hello",
		"Sam",
		[]any{},
		[]any{"A"},
		[]any{"A", "B", "C"},
		value.Object{{Key: "A", Value: 3}, {Key: "B", Value: 12}},
	}

	normalized := make([]any, len(things))
	for i, v := range things {
		normalized[i] = value.MustNormalize(v)
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return bytes.Compare(MustSortKey(normalized[i]), MustSortKey(normalized[j])) < 0
	})
	for i := range want {
		assert.True(t, value.Equal(value.MustNormalize(want[i]), normalized[i]), "position %d: got %#v", i, normalized[i])
	}
}

func TestConcurrentUse(t *testing.T) {
	want := MustSortKey("concurrency")
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				k, err := SortKey("concurrency")
				if !assert.NoError(t, err) || !assert.Equal(t, want, k) {
					return
				}
			}
		}()
	}
	wg.Wait()
}
