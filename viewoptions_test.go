package ss

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shootingstick/ss/value"
)

func TestParseQueryOptions(t *testing.T) {
	q := url.Values{
		"startkey":       {`["a",1]`},
		"endkey":         {`{"x":null}`},
		"startkey_docid": {"d1"},
		"end_key_doc_id": {"d9"},
		"inclusive_end":  {"false"},
		"descending":     {"true"},
		"limit":          {"10"},
		"skip":           {"3"},
		"include_docs":   {"true"},
		"update_seq":     {"true"},
		"reduce":         {"false"},
		"sorted":         {"false"},
		"conflicts":      {"true"},
		"unknown":        {"whatever"},
	}
	opt, err := ParseQueryOptions(q)
	require.NoError(t, err)

	assert.Equal(t, Some[any]([]any{"a", 1.0}), opt.StartKey)
	assert.True(t, value.Equal(value.Object{{Key: "x", Value: nil}}, opt.EndKey.Value))
	assert.Equal(t, "d1", opt.StartKeyDocID)
	assert.Equal(t, "d9", opt.EndKeyDocID)
	assert.Equal(t, Some(false), opt.InclusiveEnd)
	assert.True(t, opt.Descending)
	assert.Equal(t, Some(10), opt.Limit)
	assert.Equal(t, 3, opt.Skip)
	assert.True(t, opt.IncludeDocs)
	assert.True(t, opt.UpdateSeq)
	assert.Equal(t, Some(false), opt.Reduce)
	assert.Equal(t, Some(false), opt.Sorted)
	assert.True(t, opt.Conflicts)
	assert.Equal(t, UpdateBefore, opt.Update)
}

func TestParseQueryOptions_KeyAndKeys(t *testing.T) {
	opt, err := ParseQueryOptions(url.Values{"key": {`"k"`}})
	require.NoError(t, err)
	assert.Equal(t, Some[any]("k"), opt.Key)

	opt, err = ParseQueryOptions(url.Values{"keys": {`["a", 2, null]`}})
	require.NoError(t, err)
	assert.Equal(t, Some([]any{"a", 2.0, nil}), opt.Keys)

	_, err = ParseQueryOptions(url.Values{"keys": {`"a"`}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = ParseQueryOptions(url.Values{"key": {`"a"`}, "keys": {`["b"]`}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = ParseQueryOptions(url.Values{"key": {`"a"`}, "endkey": {`"b"`}})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestParseQueryOptions_UpdateAndStale(t *testing.T) {
	tests := []struct {
		q    url.Values
		want UpdateMode
	}{
		{url.Values{}, UpdateBefore},
		{url.Values{"update": {"true"}}, UpdateBefore},
		{url.Values{"update": {"false"}}, UpdateNever},
		{url.Values{"update": {"lazy"}}, UpdateLazy},
		{url.Values{"stale": {"ok"}}, UpdateNever},
		{url.Values{"stale": {"update_after"}}, UpdateLazy},
		{url.Values{"stale": {"ok"}, "update": {"true"}}, UpdateNever},
	}
	for _, tt := range tests {
		opt, err := ParseQueryOptions(tt.q)
		require.NoError(t, err, tt.q.Encode())
		assert.Equal(t, tt.want, opt.Update, tt.q.Encode())
	}

	_, err := ParseQueryOptions(url.Values{"update": {"sometimes"}})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = ParseQueryOptions(url.Values{"stale": {"maybe"}})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestParseQueryOptions_Invalid(t *testing.T) {
	bad := []url.Values{
		{"startkey": {`[1,`}},
		{"limit": {"-1"}},
		{"limit": {"ten"}},
		{"skip": {"-5"}},
		{"descending": {"yes"}},
		{"reduce": {"true"}},
		{"group": {"true"}},
		{"group_level": {"2"}},
	}
	for _, q := range bad {
		_, err := ParseQueryOptions(q)
		assert.ErrorIs(t, err, ErrInvalidQuery, q.Encode())
	}
}

func TestOpt(t *testing.T) {
	var o Opt[int]
	assert.Equal(t, 7, o.Get(7))
	assert.Equal(t, 3, Some(3).Get(7))
	assert.Equal(t, "lazy", UpdateLazy.String())
}
