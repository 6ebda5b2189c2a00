package jsonutil_test

import (
	"testing"

	"github.com/jvs-project/taskstate/pkg/jsonutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalMarshal_SortedKeys(t *testing.T) {
	input := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"mid":   3,
	}
	out, err := jsonutil.CanonicalMarshal(input)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zebra":1}`, string(out))
}

func TestCanonicalMarshal_Nested(t *testing.T) {
	input := map[string]any{
		"b": map[string]any{"z": 1, "a": 2},
		"a": 0,
	}
	out, err := jsonutil.CanonicalMarshal(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":0,"b":{"a":2,"z":1}}`, string(out))
}

func TestCanonicalMarshal_NullAndArrays(t *testing.T) {
	out, err := jsonutil.CanonicalMarshal(map[string]any{"key": nil, "list": []any{3, 1, 2}})
	require.NoError(t, err)
	assert.Equal(t, `{"key":null,"list":[3,1,2]}`, string(out))
}

func TestCanonicalMarshal_StructSortsFields(t *testing.T) {
	type sample struct {
		Zebra int    `json:"zebra"`
		Alpha string `json:"alpha"`
	}
	out, err := jsonutil.CanonicalMarshal(sample{Zebra: 1, Alpha: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","zebra":1}`, string(out))
}

func TestCanonicalMarshal_LargeIntegersExact(t *testing.T) {
	type stamp struct {
		ModTime int64 `json:"mod_time"`
	}
	out, err := jsonutil.CanonicalMarshal(stamp{ModTime: 1734567890123456789})
	require.NoError(t, err)
	assert.Equal(t, `{"mod_time":1734567890123456789}`, string(out))
}

func TestCanonicalMarshal_Unmarshalable(t *testing.T) {
	_, err := jsonutil.CanonicalMarshal(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestChecksum_StableAcrossKeyOrder(t *testing.T) {
	a, err := jsonutil.Checksum(map[string]any{"x": 1, "y": "two"})
	require.NoError(t, err)
	b, err := jsonutil.Checksum(map[string]any{"y": "two", "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := jsonutil.Checksum(map[string]any{"x": 2, "y": "two"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
