package tplengine

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// maxSafeInteger mirrors JavaScript's Number.MAX_SAFE_INTEGER. Integers
// beyond it stay strings so downstream JSON consumers never silently round.
const maxSafeInteger = 9007199254740991

// ParseJSONPrecise parses a JSON document keeping numeric precision: numbers
// decode through json.Number and convert to int64 or float64 only when the
// conversion is lossless, otherwise they stay strings.
func ParseJSONPrecise(jsonStr string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(jsonStr))
	decoder.UseNumber()

	var result any
	if err := decoder.Decode(&result); err != nil {
		return nil, err
	}
	return convertNumbers(result), nil
}

func convertNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		return ConvertWithPrecision(string(v))
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, val := range v {
			result[k] = convertNumbers(val)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = convertNumbers(val)
		}
		return result
	default:
		return v
	}
}

// ConvertWithPrecision converts a numeric string to int64 or float64 when the
// conversion preserves the value exactly. Non-numeric strings pass through.
func ConvertWithPrecision(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	if dec.IsInteger() {
		bigInt := dec.BigInt()
		if bigInt.IsInt64() {
			i64 := bigInt.Int64()
			if i64 >= -maxSafeInteger && i64 <= maxSafeInteger {
				return i64
			}
		}
		return s
	}
	f64, _ := dec.Float64()
	if !dec.Equal(decimal.NewFromFloat(f64)) {
		return s
	}
	if significantDigits(s) > 15 {
		return s
	}
	return f64
}

func significantDigits(s string) int {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(strings.ToLower(s), "e"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimLeft(s, "+-")
	s = strings.TrimLeft(s, "0")
	if s == "" || s == "." {
		return 1
	}
	count := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			count++
		}
	}
	return count
}
