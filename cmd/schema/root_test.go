package schema

import (
	"testing"

	"github.com/ValentinKolb/docKV/lib/store"
)

func TestParseIndex(t *testing.T) {
	tests := []struct {
		spec     string
		expected store.IndexDef
		wantErr  bool
	}{
		{"name", store.IndexDef{Name: "name"}, false},
		{"email!", store.IndexDef{Name: "email", Unique: true}, false},
		{"city:address.city", store.IndexDef{Name: "city", KeyPath: "address.city"}, false},
		{"mail:contact.mail!", store.IndexDef{Name: "mail", KeyPath: "contact.mail", Unique: true}, false},
		{"", store.IndexDef{}, true},
		{":path", store.IndexDef{}, true},
		{"!", store.IndexDef{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			idx, err := ParseIndex(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %+v", tt.spec, idx)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if idx != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, idx)
			}
		})
	}
}
