package rec

import (
	"testing"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{"42", 42.0},
		{"-1.5", -1.5},
		{"alice", "alice"},
		{"NaN", "NaN"},
		{"inf", "inf"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseKey(tt.input); got != tt.expected {
				t.Errorf("Expected %v (%T), got %v (%T)", tt.expected, tt.expected, got, got)
			}
		})
	}
}

func TestRangeKey(t *testing.T) {
	if got := rangeKey("", "10"); got != "10" {
		t.Errorf("Expected primary key bounds to stay strings, got %v (%T)", got, got)
	}
	if got := rangeKey("age", "10"); got != 10.0 {
		t.Errorf("Expected index bounds to be parsed as numbers, got %v (%T)", got, got)
	}
}
