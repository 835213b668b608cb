package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONKeepsMemberOrder(t *testing.T) {
	v, err := ParseJSON([]byte(`{"z": 1, "a": [true, null, "x"], "m": {"b": 2, "a": 1}}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())

	inner, _ := obj.Get("m")
	assert.Equal(t, []string{"b", "a"}, inner.(Object).Keys())

	arr, _ := obj.Get("a")
	assert.Equal(t, []any{true, nil, "x"}, arr)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"z":1,"a":[true,null,"x"],"m":{"b":2,"a":1}}`, string(out))
	assert.Equal(t, `{"z":1,"a":[true,null,"x"],"m":{"b":2,"a":1}}`, string(out))
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	_, err := ParseJSON([]byte(`1 2`))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	v, err := Normalize(map[string]any{"b": int64(2), "a": []string{"x", "y"}})
	require.NoError(t, err)
	assert.True(t, Equal(Object{{"a", []any{"x", "y"}}, {"b", 2.0}}, v))

	v, err = Normalize([]any{int8(1), uint32(7), float32(0.5), json.Number("12.5")})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 7.0, 0.5, 12.5}, v)

	_, err = Normalize(math.NaN())
	var ive *InvalidValueError
	require.ErrorAs(t, err, &ive)

	_, err = Normalize([]any{1, struct{}{}})
	require.ErrorAs(t, err, &ive)
	assert.Equal(t, "[1]", ive.Path)

	_, err = Normalize(map[int]string{1: "x"})
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Null, KindOf(nil))
	assert.Equal(t, Bool, KindOf(false))
	assert.Equal(t, Number, KindOf(1.5))
	assert.Equal(t, String, KindOf("s"))
	assert.Equal(t, Array, KindOf([]any{}))
	assert.Equal(t, Obj, KindOf(Object{}))
	assert.Equal(t, Invalid, KindOf(3))
	assert.Equal(t, Invalid, KindOf(math.Inf(1)))
}

func TestObjectWithWithout(t *testing.T) {
	o := Object{{"_id", "a"}, {"x", 1.0}}
	o2 := o.With("_rev", "1-abc").With("x", 2.0)
	assert.Equal(t, []string{"_id", "x", "_rev"}, o2.Keys())
	x, _ := o2.Get("x")
	assert.Equal(t, 2.0, x)
	x, _ = o.Get("x")
	assert.Equal(t, 1.0, x, "original must not change")

	assert.Equal(t, []string{"x", "_rev"}, o2.Without("_id").Keys())
}

func TestMsgpackKeepsOrderAndCanonicalNumbers(t *testing.T) {
	v := Object{{"k", []any{3.0, "s", nil, false}}, {"a", Object{{"y", 1.0}, {"x", 2.0}}}}
	raw, err := AppendMsgpack(nil, v)
	require.NoError(t, err)

	back, err := UnmarshalMsgpack(raw)
	require.NoError(t, err)
	assert.True(t, Equal(v, back), "got %#v", back)

	raw2, err := AppendMsgpack(nil, MustNormalize(Object{{"k", []any{3, "s", nil, false}}, {"a", Object{{"y", 1}, {"x", 2}}}}))
	require.NoError(t, err)
	assert.Equal(t, raw, raw2)

	_, err = AppendMsgpack(nil, []any{struct{}{}})
	assert.Error(t, err)
}

func TestObjectUnmarshalJSON(t *testing.T) {
	var doc struct {
		Body Object `json:"body"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"body": {"b": 1, "a": 2}}`), &doc))
	assert.Equal(t, []string{"b", "a"}, doc.Body.Keys())

	assert.Error(t, json.Unmarshal([]byte(`{"body": [1]}`), &doc))
}
