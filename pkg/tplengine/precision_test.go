package tplengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertWithPrecision(t *testing.T) {
	t.Run("Should convert safe integers to int64", func(t *testing.T) {
		assert.Equal(t, int64(42), ConvertWithPrecision("42"))
		assert.Equal(t, int64(-7), ConvertWithPrecision("-7"))
		assert.Equal(t, int64(0), ConvertWithPrecision("0.0"))
	})
	t.Run("Should keep integers beyond the safe range as strings", func(t *testing.T) {
		assert.Equal(t, "9007199254740993", ConvertWithPrecision("9007199254740993"))
	})
	t.Run("Should convert exact decimals to float64", func(t *testing.T) {
		assert.Equal(t, 2.5, ConvertWithPrecision("2.5"))
	})
	t.Run("Should keep high-precision decimals as strings", func(t *testing.T) {
		assert.Equal(t, "0.123456789123456789", ConvertWithPrecision("0.123456789123456789"))
		assert.Equal(t, "-0.123456789123456789", ConvertWithPrecision("-0.123456789123456789"))
	})
	t.Run("Should pass non-numeric strings through", func(t *testing.T) {
		assert.Equal(t, "not a number", ConvertWithPrecision("not a number"))
		assert.Equal(t, "", ConvertWithPrecision("  "))
	})
}

func TestParseJSONPrecise(t *testing.T) {
	t.Run("Should preserve precision across a document", func(t *testing.T) {
		parsed, err := ParseJSONPrecise(`{"count": 3, "precise": 0.123456789123456789, "items": [1.5]}`)
		require.NoError(t, err)
		m := parsed.(map[string]any)
		assert.Equal(t, int64(3), m["count"])
		assert.Equal(t, "0.123456789123456789", m["precise"])
		assert.Equal(t, []any{1.5}, m["items"])
	})
	t.Run("Should reject invalid JSON", func(t *testing.T) {
		_, err := ParseJSONPrecise("{nope")
		assert.Error(t, err)
	})
}
