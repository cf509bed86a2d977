// Package keys implements an order-preserving, self-delimiting byte encoding for
// index keys. Numbers sort before strings, numbers sort numerically and strings
// sort bytewise, so engines can compare encoded keys with bytes.Compare.
package keys

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	tagNumber byte = 0x10
	tagString byte = 0x20

	escape     byte = 0x00
	escapedNul byte = 0xff
	terminator byte = 0x01
)

// ErrInvalidKey is returned for values that cannot be used as keys.
var ErrInvalidKey = errors.New("invalid key")

// Encode encodes a string or numeric value.
func Encode(v any) ([]byte, error) {
	return Append(nil, v)
}

// Append appends the encoding of v to b.
func Append(b []byte, v any) ([]byte, error) {
	switch k := v.(type) {
	case string:
		return appendString(b, k), nil
	case json.Number:
		f, err := k.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return appendFloat(b, f)
	}

	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, v)
	}
	return appendFloat(b, f)
}

// Len returns the length of the encoded key at the start of b.
func Len(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty encoding", ErrInvalidKey)
	}
	switch b[0] {
	case tagNumber:
		if len(b) < 9 {
			return 0, fmt.Errorf("%w: short number encoding", ErrInvalidKey)
		}
		return 9, nil
	case tagString:
		for i := 1; i < len(b)-1; i++ {
			if b[i] != escape {
				continue
			}
			if b[i+1] == terminator {
				return i + 2, nil
			}
			i++ // skip escaped nul
		}
		return 0, fmt.Errorf("%w: unterminated string encoding", ErrInvalidKey)
	default:
		return 0, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidKey, b[0])
	}
}

// Decode decodes the key at the start of b and returns it with the number of bytes used.
// Numbers decode as float64.
func Decode(b []byte) (any, int, error) {
	n, err := Len(b)
	if err != nil {
		return nil, 0, err
	}
	if b[0] == tagNumber {
		bits := binary.BigEndian.Uint64(b[1:9])
		if bits&(1<<63) != 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), n, nil
	}

	out := make([]byte, 0, n-3)
	for i := 1; i < n-2; i++ {
		if b[i] == escape {
			out = append(out, 0x00)
			i++
			continue
		}
		out = append(out, b[i])
	}
	return string(out), n, nil
}

// IsKey reports whether v can be encoded.
func IsKey(v any) bool {
	switch v.(type) {
	case string, json.Number:
		return true
	}
	f, ok := toFloat(v)
	return ok && !math.IsNaN(f)
}

func appendString(b []byte, s string) []byte {
	b = append(b, tagString)
	for i := 0; i < len(s); i++ {
		if s[i] == 0x00 {
			b = append(b, escape, escapedNul)
			continue
		}
		b = append(b, s[i])
	}
	return append(b, escape, terminator)
}

func appendFloat(b []byte, f float64) ([]byte, error) {
	if math.IsNaN(f) {
		return nil, fmt.Errorf("%w: NaN", ErrInvalidKey)
	}
	if f == 0 {
		f = 0 // normalise -0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	b = append(b, tagNumber)
	return binary.BigEndian.AppendUint64(b, bits), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
