package bolt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/docKV/lib/db"
	dbtesting "github.com/ValentinKolb/docKV/lib/db/testing"
)

func newTestEngine(t testing.TB) db.Engine {
	engine, err := NewBoltEngine(t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error creating the engine: %v", err)
	}
	return engine
}

func Test(t *testing.T) {
	dbtesting.RunEngineTests(t, "Bolt", newTestEngine)
}

func Benchmark(b *testing.B) {
	dbtesting.RunEngineBenchmarks(b, "Bolt", newTestEngine)
}

func TestPersistsAcrossEngines(t *testing.T) {
	dir := t.TempDir()

	engine, err := NewBoltEngine(dir)
	if err != nil {
		t.Fatalf("Unexpected error creating the engine: %v", err)
	}
	conn, err := engine.Open(context.Background(), "persist", 2, db.OpenHooks{Upgrade: func(s db.Schema) error {
		if err := s.CreateObjectStore("users", db.ObjectStoreOptions{}); err != nil {
			return err
		}
		return s.CreateIndex("users", "name", "name", db.IndexOptions{})
	}})
	if err != nil {
		t.Fatalf("Unexpected error during Open: %v", err)
	}
	err = conn.Update(func(tx db.Tx) error {
		s, err := tx.ObjectStore("users")
		if err != nil {
			return err
		}
		return s.Put("u1", []byte(`{"id":"u1","name":"alice"}`))
	})
	if err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Unexpected error during Close: %v", err)
	}

	// a second engine on the same directory sees the committed state
	reopened, err := NewBoltEngine(dir)
	if err != nil {
		t.Fatalf("Unexpected error creating the engine: %v", err)
	}
	conn, err = reopened.Open(context.Background(), "persist", 0, db.OpenHooks{Upgrade: func(db.Schema) error {
		t.Error("Upgrade must not run when opening the stored version")
		return nil
	}})
	if err != nil {
		t.Fatalf("Unexpected error during Open: %v", err)
	}
	defer conn.Close()

	if conn.Version() != 2 {
		t.Errorf("Expected version 2, got %d", conn.Version())
	}
	err = conn.View(func(tx db.Tx) error {
		s, err := tx.ObjectStore("users")
		if err != nil {
			return err
		}
		idx, err := s.Index("name")
		if err != nil {
			return err
		}
		value, loaded, err := idx.Get("alice")
		if err != nil {
			return err
		}
		if !loaded || string(value) != `{"id":"u1","name":"alice"}` {
			t.Errorf("Unexpected value %s (loaded=%v)", value, loaded)
		}
		return nil
	})
	if err != nil {
		t.Errorf("Unexpected error during View: %v", err)
	}
}

func TestDropRemovesFile(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewBoltEngine(dir)
	if err != nil {
		t.Fatalf("Unexpected error creating the engine: %v", err)
	}

	conn, err := engine.Open(context.Background(), "dropme", 1, db.OpenHooks{})
	if err != nil {
		t.Fatalf("Unexpected error during Open: %v", err)
	}
	path := filepath.Join(dir, "dropme"+fileExt)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected database file %s to exist: %v", path, err)
	}
	_ = conn.Close()

	if err := engine.Drop(context.Background(), "dropme", nil); err != nil {
		t.Fatalf("Unexpected error during Drop: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected database file to be removed, got %v", err)
	}
}

func TestRejectsPathNames(t *testing.T) {
	engine := newTestEngine(t)
	for _, name := range []string{"", "a/b", `a\b`, ".."} {
		if _, err := engine.Open(context.Background(), name, 1, db.OpenHooks{}); err == nil {
			t.Errorf("Expected an error for database name %q", name)
		}
	}
}
