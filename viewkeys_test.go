package ss

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shootingstick/ss/collation"
	"github.com/shootingstick/ss/value"
)

func sk(v any) []byte {
	return collation.MustSortKey(value.MustNormalize(v))
}

func assertBytesAscending(t *testing.T, keys ...[]byte) {
	t.Helper()
	for i := 1; i < len(keys); i++ {
		assert.Negative(t, bytes.Compare(keys[i-1], keys[i]), "key %d: %x >= %x", i, keys[i-1], keys[i])
	}
}

func TestRowKeyOrder(t *testing.T) {
	assertBytesAscending(t,
		keyFloor(sk("a")),
		rowKey(sk("a"), "a", 0),
		rowKey(sk("a"), "a", 1),
		rowKey(sk("a"), "ab", 0),
		rowKey(sk("a"), "zzzzzzzz", 7),
		keyCeiling(sk("a")),
		rowKey(sk("ab"), "a", 0),
		rowKey(sk([]any{"a"}), "a", 0),
		rowKey(sk([]any{"a", 1}), "a", 0),
	)
}

func TestDocBound(t *testing.T) {
	k := sk(1937)
	assertBytesAscending(t,
		rowKey(k, "d1", 99),
		docBound(k, "d2", idEnd),
		rowKey(k, "d2", 0),
		rowKey(k, "d2", 5),
		docBound(k, "d2", idAfter),
		rowKey(k, "d2x", 0),
		rowKey(k, "d3", 0),
	)
}

func TestPlanRanges(t *testing.T) {
	ranges, err := planRanges(&QueryOptions{Keys: Some([]any{"b", "a"}), Descending: true})
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	assert.Equal(t, keyFloor(sk("b")), ranges[0].Lower)
	assert.Equal(t, keyCeiling(sk("b")), ranges[0].Upper)
	assert.True(t, ranges[0].Reverse)

	ranges, err = planRanges(&QueryOptions{})
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Nil(t, ranges[0].Lower)
	assert.Nil(t, ranges[0].Upper)

	ranges, err = planRanges(&QueryOptions{StartKey: Some[any]("a"), EndKey: Some[any]("c")})
	require.NoError(t, err)
	assert.Equal(t, sk("a"), ranges[0].Lower)
	assert.True(t, ranges[0].LowerInc)
	assert.Equal(t, keyCeiling(sk("c")), ranges[0].Upper)
	assert.False(t, ranges[0].UpperInc)

	_, err = planRanges(&QueryOptions{StartKey: Some[any](struct{}{})})
	assert.Error(t, err)
}
