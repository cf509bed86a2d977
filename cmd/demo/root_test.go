package demo

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ValentinKolb/docKV/lib/db/engines/maple"
)

func TestRun(t *testing.T) {
	var out bytes.Buffer
	if err := Run(context.Background(), maple.NewMapleEngine(), &out); err != nil {
		t.Fatalf("Demo failed: %v", err)
	}

	for _, line := range []string{
		"get     -> name=Alice, age=28, is_delete=false",
		"delete  -> true",
		"get     -> is_delete=true",
		"select  -> 0 records",
		"count   -> 1 records",
	} {
		if !strings.Contains(out.String(), line) {
			t.Errorf("Expected output to contain %q, got:\n%s", line, out.String())
		}
	}
}
