package keys

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"testing"
)

func TestOrdering(t *testing.T) {
	ordered := []any{-1e9, -2.5, -1, 0, 0.5, 1, 42, 1e12, "", "\x00", "\x00a", "a", "a\x00", "ab", "b", "zzz"}

	encoded := make([][]byte, len(ordered))
	for i, v := range ordered {
		b, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", v, err)
		}
		encoded[i] = b
	}

	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Errorf("Expected %q < %q in encoded form", ordered[i-1], ordered[i])
		}
	}

	shuffled := make([][]byte, 0, len(encoded))
	for i := len(encoded) - 1; i >= 0; i-- {
		shuffled = append(shuffled, encoded[i])
	}
	sort.Slice(shuffled, func(i, j int) bool { return bytes.Compare(shuffled[i], shuffled[j]) < 0 })
	for i := range shuffled {
		if !bytes.Equal(shuffled[i], encoded[i]) {
			t.Errorf("Sorted position %d does not match %v", i, ordered[i])
		}
	}
}

func TestRoundTrip(t *testing.T) {
	values := []any{"", "alice", "a\x00b\x00", 3.25, -7.0, 0.0}
	for _, v := range values {
		b, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", v, err)
		}

		// append trailing bytes to make sure the encoding is self-delimiting
		withSuffix := append(append([]byte{}, b...), []byte("primary-key")...)

		got, n, err := Decode(withSuffix)
		if err != nil {
			t.Fatalf("Decode(%v) failed: %v", v, err)
		}
		if n != len(b) {
			t.Errorf("Expected length %d for %v, got %d", len(b), v, n)
		}
		if got != v {
			t.Errorf("Expected %v (%T), got %v (%T)", v, v, got, got)
		}
	}
}

func TestIntegerKindsEncodeLikeFloats(t *testing.T) {
	expected, _ := Encode(float64(28))
	for _, v := range []any{28, int8(28), int64(28), uint32(28), float32(28), json.Number("28")} {
		b, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode(%T) failed: %v", v, err)
		}
		if !bytes.Equal(b, expected) {
			t.Errorf("Expected %T(28) to encode like float64(28)", v)
		}
	}
}

func TestInvalidKeys(t *testing.T) {
	for _, v := range []any{nil, true, []string{"a"}, map[string]any{}} {
		if _, err := Encode(v); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey for %T, got %v", v, err)
		}
		if IsKey(v) {
			t.Errorf("IsKey(%T) should be false", v)
		}
	}

	if _, err := Len([]byte{tagString, 'a'}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for unterminated string, got %v", err)
	}
	if _, err := Len(nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for empty input, got %v", err)
	}
}
