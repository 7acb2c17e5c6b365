// Package wire decodes the JSON bodies the chat service returns.
// Responses are prefixed with an anti-hijacking guard ("for (;;);")
// that must be stripped before unmarshaling.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// jsonGuard is the prefix the service prepends to every JSON response.
var jsonGuard = []byte("for (;;);")

// Strip removes the anti-hijacking prefix, if present, and trims
// leading whitespace so the remainder starts at the JSON value.
func Strip(data []byte) []byte {
	data = bytes.TrimSpace(data)
	data = bytes.TrimPrefix(data, jsonGuard)
	return bytes.TrimSpace(data)
}

// Decode strips the guard prefix and unmarshals the remainder into v.
// Numbers are decoded as json.Number so numeric ids survive without
// float truncation.
func Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(Strip(data)))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// String coerces the scalar shapes the wire format uses for ids and
// timestamps: plain strings, json.Number, or floats from a decoder
// without UseNumber. Anything else yields "".
func String(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

// Int coerces a wire scalar to int, defaulting to 0.
func Int(v any) int {
	switch n := v.(type) {
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case float64:
		return int(n)
	case int64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}
