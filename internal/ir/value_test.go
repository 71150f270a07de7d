package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b IRValue
		want bool
	}{
		{"nil and null", nil, IRNull{}, true},
		{"strings", IRString("a"), IRString("a"), true},
		{"different strings", IRString("a"), IRString("b"), false},
		{"int vs string", IRInt(1), IRString("1"), false},
		{"null vs empty string", IRNull{}, IRString(""), false},
		{"arrays", IRArray{IRInt(1), IRBool(true)}, IRArray{IRInt(1), IRBool(true)}, true},
		{"array order", IRArray{IRInt(1), IRInt(2)}, IRArray{IRInt(2), IRInt(1)}, false},
		{"objects", IRObject{"a": IRInt(1)}, IRObject{"a": IRInt(1)}, true},
		{"object missing key", IRObject{"a": IRInt(1)}, IRObject{"b": IRInt(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a))
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	orig := IRObject{"tags": IRArray{IRString("x")}, "n": IRInt(1)}
	cp := orig.Clone()
	cp["tags"].(IRArray)[0] = IRString("y")
	cp["n"] = IRInt(2)

	assert.Equal(t, IRString("x"), orig["tags"].(IRArray)[0])
	assert.Equal(t, IRInt(1), orig["n"])
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{"a": 1, "b": []any{"x", true, nil}})
	require.NoError(t, err)
	assert.True(t, Equal(IRObject{"a": IRInt(1), "b": IRArray{IRString("x"), IRBool(true), IRNull{}}}, v))

	v, err = FromAny(float64(3))
	require.NoError(t, err)
	assert.Equal(t, IRInt(3), v)

	_, err = FromAny(3.5)
	assert.Error(t, err)
}

func TestUnmarshalIRValue_RejectsFloats(t *testing.T) {
	_, err := UnmarshalIRValue([]byte(`{"price": 1.5}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestIRObject_JSONRoundTrip(t *testing.T) {
	obj := IRObject{"name": IRString("cart"), "count": IRInt(5), "note": IRNull{}}
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"count":5,"name":"cart","note":null}`, string(data))

	var back IRObject
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(obj, back))
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 encodes to a surrogate pair (0xD83D...) that sorts before U+FF61.
	obj := IRObject{"\uff61": IRInt(1), "\U0001F600": IRInt(2), "a": IRInt(3)}
	assert.Equal(t, []string{"a", "\U0001F600", "\uff61"}, obj.SortedKeys())
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "null", Display(nil))
	assert.Equal(t, `"hi"`, Display(IRString("hi")))
	assert.Equal(t, "42", Display(IRInt(42)))
	assert.Equal(t, `{"a":true}`, Display(IRObject{"a": IRBool(true)}))
}
