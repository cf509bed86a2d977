package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/docKV/lib/db"
)

// EngineFactory creates a new, empty instance of an engine implementation
type EngineFactory func(t testing.TB) db.Engine

// RunEngineTests runs a comprehensive test suite for an engine implementation.
func RunEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenVersioning", func(t *testing.T) {
			testOpenVersioning(t, factory(t))
		})

		t.Run("UpgradeRollback", func(t *testing.T) {
			testUpgradeRollback(t, factory(t))
		})

		t.Run("BlockedUpgrade", func(t *testing.T) {
			testBlockedUpgrade(t, factory(t))
		})

		t.Run("SchemaErrors", func(t *testing.T) {
			testSchemaErrors(t, factory(t))
		})

		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("TransactionRollback", func(t *testing.T) {
			testTransactionRollback(t, factory(t))
		})

		t.Run("CursorRanges", func(t *testing.T) {
			testCursorRanges(t, factory(t))
		})

		t.Run("Index", func(t *testing.T) {
			testIndex(t, factory(t))
		})

		t.Run("UniqueIndex", func(t *testing.T) {
			testUniqueIndex(t, factory(t))
		})

		t.Run("IndexBackfill", func(t *testing.T) {
			testIndexBackfill(t, factory(t))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory(t))
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory(t))
		})

		t.Run("Drop", func(t *testing.T) {
			testDrop(t, factory(t))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory(t))
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("ConcurrentWrites", func(t *testing.T) {
			testConcurrentWrites(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the engine supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, engine db.Engine, feature db.Feature) {
	if !engine.SupportsFeature(feature) {
		t.Skip()
	}
}

// open opens a database and closes it when the test ends
func open(t testing.TB, engine db.Engine, name string, version uint64, upgrade func(db.Schema) error) db.Conn {
	t.Helper()
	conn, err := engine.Open(context.Background(), name, version, db.OpenHooks{Upgrade: upgrade})
	if err != nil {
		t.Fatalf("Unexpected error opening %s (version %d): %v", name, version, err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// withStores returns an upgrade callback creating the given object stores
func withStores(names ...string) func(db.Schema) error {
	return func(s db.Schema) error {
		for _, name := range names {
			if err := s.CreateObjectStore(name, db.ObjectStoreOptions{}); err != nil {
				return err
			}
		}
		return nil
	}
}

// put writes values (alternating key and JSON document) in one readwrite transaction
func put(t testing.TB, conn db.Conn, store string, kv ...string) {
	t.Helper()
	err := conn.Update(func(tx db.Tx) error {
		s, err := tx.ObjectStore(store)
		if err != nil {
			return err
		}
		for i := 0; i+1 < len(kv); i += 2 {
			if err := s.Put(kv[i], []byte(kv[i+1])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
}

// get reads one value in a readonly transaction
func get(t testing.TB, conn db.Conn, store, key string) ([]byte, bool) {
	t.Helper()
	var (
		value  []byte
		loaded bool
	)
	err := conn.View(func(tx db.Tx) error {
		s, err := tx.ObjectStore(store)
		if err != nil {
			return err
		}
		value, loaded, err = s.Get(key)
		return err
	})
	if err != nil {
		t.Fatalf("Unexpected error during Get: %v", err)
	}
	return value, loaded
}

// keysOf collects the primary keys in the range
func keysOf(t testing.TB, conn db.Conn, store string, r *db.KeyRange) []string {
	t.Helper()
	var result []string
	err := conn.View(func(tx db.Tx) error {
		s, err := tx.ObjectStore(store)
		if err != nil {
			return err
		}
		return s.Cursor(r, func(key string, _ []byte) (bool, error) {
			result = append(result, key)
			return true, nil
		})
	})
	if err != nil {
		t.Fatalf("Unexpected error during Cursor(%s): %v", r, err)
	}
	return result
}

// indexValues collects the values of an index range
func indexValues(t testing.TB, conn db.Conn, store, index string, r *db.KeyRange) []string {
	t.Helper()
	var result []string
	err := conn.View(func(tx db.Tx) error {
		s, err := tx.ObjectStore(store)
		if err != nil {
			return err
		}
		idx, err := s.Index(index)
		if err != nil {
			return err
		}
		values, err := idx.GetAll(r)
		for _, v := range values {
			result = append(result, string(v))
		}
		return err
	})
	if err != nil {
		t.Fatalf("Unexpected error during Index.GetAll(%s): %v", r, err)
	}
	return result
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenVersioning(t *testing.T, engine db.Engine) {
	requireFeature(t, engine, db.FeatureVersioning)

	var calls []string
	upgrade := func(s db.Schema) error {
		calls = append(calls, fmt.Sprintf("%d->%d", s.OldVersion(), s.NewVersion()))
		if s.OldVersion() == 0 {
			return s.CreateObjectStore("users", db.ObjectStoreOptions{})
		}
		return nil
	}

	conn := open(t, engine, "versioning", 0, upgrade)
	if conn.Version() != 1 {
		t.Errorf("Expected version 1 for a new database, got %d", conn.Version())
	}
	if conn.Name() != "versioning" {
		t.Errorf("Expected name versioning, got %s", conn.Name())
	}
	if names := conn.ObjectStoreNames(); !equalStrings(names, []string{"users"}) {
		t.Errorf("Expected object stores [users], got %v", names)
	}
	_ = conn.Close()

	conn = open(t, engine, "versioning", 0, upgrade)
	if conn.Version() != 1 {
		t.Errorf("Expected version 1 when opening the current version, got %d", conn.Version())
	}
	_ = conn.Close()

	conn = open(t, engine, "versioning", 3, upgrade)
	if conn.Version() != 3 {
		t.Errorf("Expected version 3, got %d", conn.Version())
	}
	_ = conn.Close()

	if !equalStrings(calls, []string{"0->1", "1->3"}) {
		t.Errorf("Unexpected upgrade calls: %v", calls)
	}

	_, err := engine.Open(context.Background(), "versioning", 2, db.OpenHooks{Upgrade: upgrade})
	if !errors.Is(err, db.ErrVersion) {
		t.Errorf("Expected ErrVersion when opening a lower version, got %v", err)
	}

	// the store created in version 1 survives later upgrades
	conn = open(t, engine, "versioning", 3, nil)
	if names := conn.ObjectStoreNames(); !equalStrings(names, []string{"users"}) {
		t.Errorf("Expected object stores [users] after upgrades, got %v", names)
	}
}

func testUpgradeRollback(t *testing.T, engine db.Engine) {
	requireFeature(t, engine, db.FeatureVersioning)

	conn := open(t, engine, "rollback", 1, withStores("a"))
	_ = conn.Close()

	failing := func(s db.Schema) error {
		if err := s.CreateObjectStore("b", db.ObjectStoreOptions{}); err != nil {
			return err
		}
		return errors.New("migration failed")
	}
	if _, err := engine.Open(context.Background(), "rollback", 2, db.OpenHooks{Upgrade: failing}); err == nil {
		t.Errorf("Expected the failing upgrade to return an error")
	}

	panicking := func(s db.Schema) error {
		_ = s.CreateObjectStore("c", db.ObjectStoreOptions{})
		panic("boom")
	}
	if _, err := engine.Open(context.Background(), "rollback", 2, db.OpenHooks{Upgrade: panicking}); err == nil {
		t.Errorf("Expected the panicking upgrade to return an error")
	}

	conn = open(t, engine, "rollback", 0, nil)
	if conn.Version() != 1 {
		t.Errorf("Expected version 1 after failed upgrades, got %d", conn.Version())
	}
	if names := conn.ObjectStoreNames(); !equalStrings(names, []string{"a"}) {
		t.Errorf("Expected object stores [a] after failed upgrades, got %v", names)
	}
}

func testBlockedUpgrade(t *testing.T, engine db.Engine) {
	requireFeature(t, engine, db.FeatureVersioning)

	first, err := engine.Open(context.Background(), "blocked", 1, db.OpenHooks{Upgrade: withStores("a")})
	if err != nil {
		t.Fatalf("Unexpected error during Open: %v", err)
	}

	blocked := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		conn, err := engine.Open(context.Background(), "blocked", 2, db.OpenHooks{
			Upgrade: withStores("b"),
			Blocked: func() { blocked <- struct{}{} },
		})
		if err == nil {
			err = conn.Close()
		}
		done <- err
	}()

	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the upgrade to report that it is blocked")
	}

	select {
	case err := <-done:
		t.Fatalf("Upgrade finished while a connection was open: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Unexpected error during Close: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Unexpected error after unblocking: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Upgrade did not continue after the blocking connection was closed")
	}

	// an upgrade that stays blocked gives up with the context
	holder := open(t, engine, "blocked", 0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := engine.Open(ctx, "blocked", 3, db.OpenHooks{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if holder.Version() != 2 {
		t.Errorf("Expected version 2, got %d", holder.Version())
	}
}

func testSchemaErrors(t *testing.T, engine db.Engine) {
	var (
		errExists, errMissingStore, errMissingDelete error
		hasIndex, hasMissing                         bool
	)
	conn := open(t, engine, "schema", 1, func(s db.Schema) error {
		if err := s.CreateObjectStore("a", db.ObjectStoreOptions{}); err != nil {
			return err
		}
		if err := s.CreateObjectStore("gone", db.ObjectStoreOptions{}); err != nil {
			return err
		}
		if err := s.DeleteObjectStore("gone"); err != nil {
			return err
		}
		if err := s.CreateIndex("a", "name", "name", db.IndexOptions{}); err != nil {
			return err
		}
		errExists = s.CreateObjectStore("a", db.ObjectStoreOptions{})
		errMissingStore = s.CreateIndex("missing", "name", "name", db.IndexOptions{})
		errMissingDelete = s.DeleteObjectStore("missing")
		hasIndex = s.HasIndex("a", "name")
		hasMissing = s.HasIndex("a", "other")
		return nil
	})

	if !errors.Is(errExists, db.ErrExists) {
		t.Errorf("Expected ErrExists for a duplicate object store, got %v", errExists)
	}
	if !errors.Is(errMissingStore, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an index on a missing store, got %v", errMissingStore)
	}
	if !errors.Is(errMissingDelete, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound when deleting a missing store, got %v", errMissingDelete)
	}
	if !hasIndex || hasMissing {
		t.Errorf("HasIndex returned %v/%v, expected true/false", hasIndex, hasMissing)
	}
	if names := conn.ObjectStoreNames(); !equalStrings(names, []string{"a"}) {
		t.Errorf("Expected object stores [a], got %v", names)
	}

	err := conn.View(func(tx db.Tx) error {
		_, err := tx.ObjectStore("missing")
		return err
	})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing object store, got %v", err)
	}

	err = conn.View(func(tx db.Tx) error {
		s, err := tx.ObjectStore("a")
		if err != nil {
			return err
		}
		if s.KeyPath() != db.DefaultKeyPath {
			t.Errorf("Expected default key path %s, got %s", db.DefaultKeyPath, s.KeyPath())
		}
		_, err = s.Index("missing")
		return err
	})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing index, got %v", err)
	}
}

func testPutGet(t *testing.T, engine db.Engine) {
	conn := open(t, engine, "putget", 1, withStores("docs"))

	put(t, conn, "docs", "k1", `{"id":"k1","v":1}`)

	value, loaded := get(t, conn, "docs", "k1")
	if !loaded {
		t.Fatalf("Expected key k1 to exist after Put")
	}
	if string(value) != `{"id":"k1","v":1}` {
		t.Errorf("Unexpected value %s", value)
	}

	// returned values are copies
	value[0] = 'X'
	value2, _ := get(t, conn, "docs", "k1")
	if bytes.Equal(value, value2) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	put(t, conn, "docs", "k1", `{"id":"k1","v":2}`)
	value, _ = get(t, conn, "docs", "k1")
	if string(value) != `{"id":"k1","v":2}` {
		t.Errorf("Expected overwritten value, got %s", value)
	}

	if _, loaded := get(t, conn, "docs", "missing"); loaded {
		t.Errorf("Expected missing key to return loaded=false")
	}

	err := conn.Update(func(tx db.Tx) error {
		s, err := tx.ObjectStore("docs")
		if err != nil {
			return err
		}
		if err := s.Delete("k1"); err != nil {
			return err
		}
		return s.Delete("never-existed")
	})
	if err != nil {
		t.Errorf("Unexpected error during Delete: %v", err)
	}
	if _, loaded := get(t, conn, "docs", "k1"); loaded {
		t.Errorf("Expected k1 to be gone after Delete")
	}

	err = conn.View(func(tx db.Tx) error {
		if tx.Writable() {
			t.Errorf("View transactions must not be writable")
		}
		s, err := tx.ObjectStore("docs")
		if err != nil {
			return err
		}
		return s.Put("k2", []byte(`{}`))
	})
	if !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly for a write in View, got %v", err)
	}
}

func testTransactionRollback(t *testing.T, engine db.Engine) {
	conn := open(t, engine, "tx", 1, withStores("docs"))
	put(t, conn, "docs", "keep", `{"id":"keep"}`)

	failure := errors.New("abort")
	err := conn.Update(func(tx db.Tx) error {
		s, err := tx.ObjectStore("docs")
		if err != nil {
			return err
		}
		if err := s.Put("new", []byte(`{"id":"new"}`)); err != nil {
			return err
		}
		if err := s.Delete("keep"); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Errorf("Expected the callback error to be returned, got %v", err)
	}

	if _, loaded := get(t, conn, "docs", "new"); loaded {
		t.Errorf("Put of an aborted transaction must not be visible")
	}
	if _, loaded := get(t, conn, "docs", "keep"); !loaded {
		t.Errorf("Delete of an aborted transaction must not be visible")
	}
}

func testCursorRanges(t *testing.T, engine db.Engine) {
	conn := open(t, engine, "ranges", 1, withStores("docs"))
	put(t, conn, "docs",
		"c", `{"id":"c"}`,
		"a", `{"id":"a"}`,
		"e", `{"id":"e"}`,
		"b", `{"id":"b"}`,
		"d", `{"id":"d"}`,
	)

	tests := []struct {
		name string
		r    *db.KeyRange
		want []string
	}{
		{"All", nil, []string{"a", "b", "c", "d", "e"}},
		{"Only", db.Only("c"), []string{"c"}},
		{"OnlyMissing", db.Only("cc"), nil},
		{"Closed", db.Bound("b", "d", false, false), []string{"b", "c", "d"}},
		{"Open", db.Bound("b", "d", true, true), []string{"c"}},
		{"LowerOpenUpperClosed", db.Bound("b", "d", true, false), []string{"c", "d"}},
		{"LowerBound", db.LowerBound("d", false), []string{"d", "e"}},
		{"LowerBoundOpen", db.LowerBound("d", true), []string{"e"}},
		{"UpperBound", db.UpperBound("b", false), []string{"a", "b"}},
		{"UpperBoundOpen", db.UpperBound("b", true), []string{"a"}},
		{"Empty", db.Bound("x", "z", false, false), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keysOf(t, conn, "docs", tt.r); !equalStrings(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}

			err := conn.View(func(tx db.Tx) error {
				s, err := tx.ObjectStore("docs")
				if err != nil {
					return err
				}
				n, err := s.Count(tt.r)
				if err != nil {
					return err
				}
				if n != len(tt.want) {
					t.Errorf("Expected Count %d, got %d", len(tt.want), n)
				}
				values, err := s.GetAll(tt.r)
				if err != nil {
					return err
				}
				if len(values) != len(tt.want) {
					t.Errorf("Expected %d values from GetAll, got %d", len(tt.want), len(values))
				}
				return nil
			})
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}

	t.Run("StopEarly", func(t *testing.T) {
		var seen []string
		err := conn.View(func(tx db.Tx) error {
			s, err := tx.ObjectStore("docs")
			if err != nil {
				return err
			}
			return s.Cursor(nil, func(key string, _ []byte) (bool, error) {
				seen = append(seen, key)
				return len(seen) < 2, nil
			})
		})
		if err != nil || !equalStrings(seen, []string{"a", "b"}) {
			t.Errorf("Expected [a b] and no error, got %v, %v", seen, err)
		}
	})

	t.Run("CallbackError", func(t *testing.T) {
		failure := errors.New("stop")
		err := conn.View(func(tx db.Tx) error {
			s, err := tx.ObjectStore("docs")
			if err != nil {
				return err
			}
			return s.Cursor(nil, func(string, []byte) (bool, error) {
				return true, failure
			})
		})
		if !errors.Is(err, failure) {
			t.Errorf("Expected the callback error, got %v", err)
		}
	})

	t.Run("InvalidKey", func(t *testing.T) {
		err := conn.View(func(tx db.Tx) error {
			s, err := tx.ObjectStore("docs")
			if err != nil {
				return err
			}
			_, err = s.GetAll(db.LowerBound(42, false))
			return err
		})
		if !errors.Is(err, db.ErrInvalidKey) {
			t.Errorf("Expected ErrInvalidKey for a numeric primary key bound, got %v", err)
		}
	})
}

func testIndex(t *testing.T, engine db.Engine) {
	conn := open(t, engine, "index", 1, func(s db.Schema) error {
		if err := s.CreateObjectStore("users", db.ObjectStoreOptions{}); err != nil {
			return err
		}
		if err := s.CreateIndex("users", "name", "name", db.IndexOptions{}); err != nil {
			return err
		}
		return s.CreateIndex("users", "age", "profile.age", db.IndexOptions{})
	})

	u1 := `{"id":"u1","name":"bob","profile":{"age":30}}`
	u2 := `{"id":"u2","name":"alice","profile":{"age":25}}`
	u3 := `{"id":"u3","name":"bob","profile":{"age":9}}`
	u4 := `{"id":"u4","name":7}`
	u5 := `{"id":"u5"}`
	put(t, conn, "users", "u3", u3, "u1", u1, "u2", u2, "u4", u4, "u5", u5)

	t.Run("OrderByIndexKeyThenPrimaryKey", func(t *testing.T) {
		// numbers sort before strings, documents without the attribute are not indexed
		want := []string{u4, u2, u1, u3}
		if got := indexValues(t, conn, "users", "name", nil); !equalStrings(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("NumericRange", func(t *testing.T) {
		want := []string{u3, u2}
		if got := indexValues(t, conn, "users", "age", db.Bound(5, 30, false, true)); !equalStrings(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("Only", func(t *testing.T) {
		want := []string{u1, u3}
		if got := indexValues(t, conn, "users", "name", db.Only("bob")); !equalStrings(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("GetFirst", func(t *testing.T) {
		err := conn.View(func(tx db.Tx) error {
			s, err := tx.ObjectStore("users")
			if err != nil {
				return err
			}
			idx, err := s.Index("name")
			if err != nil {
				return err
			}
			value, loaded, err := idx.Get("bob")
			if err != nil {
				return err
			}
			if !loaded || string(value) != u1 {
				t.Errorf("Expected %s, got %s (loaded=%v)", u1, value, loaded)
			}
			if _, loaded, _ := idx.Get("carol"); loaded {
				t.Errorf("Expected no value for carol")
			}
			if _, _, err := idx.Get([]int{1}); !errors.Is(err, db.ErrInvalidKey) {
				t.Errorf("Expected ErrInvalidKey, got %v", err)
			}
			return nil
		})
		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("UpdateMovesEntry", func(t *testing.T) {
		moved := `{"id":"u1","name":"zed","profile":{"age":30}}`
		put(t, conn, "users", "u1", moved)
		if got := indexValues(t, conn, "users", "name", db.Only("bob")); !equalStrings(got, []string{u3}) {
			t.Errorf("Expected only u3 under bob, got %v", got)
		}
		if got := indexValues(t, conn, "users", "name", db.Only("zed")); !equalStrings(got, []string{moved}) {
			t.Errorf("Expected u1 under zed, got %v", got)
		}
	})

	t.Run("DeleteRemovesEntry", func(t *testing.T) {
		err := conn.Update(func(tx db.Tx) error {
			s, err := tx.ObjectStore("users")
			if err != nil {
				return err
			}
			return s.Delete("u3")
		})
		if err != nil {
			t.Fatalf("Unexpected error during Delete: %v", err)
		}
		if got := indexValues(t, conn, "users", "name", db.Only("bob")); len(got) != 0 {
			t.Errorf("Expected no entries under bob, got %v", got)
		}
	})
}

func testUniqueIndex(t *testing.T, engine db.Engine) {
	requireFeature(t, engine, db.FeatureUniqueIndex)

	conn := open(t, engine, "unique", 1, func(s db.Schema) error {
		if err := s.CreateObjectStore("users", db.ObjectStoreOptions{}); err != nil {
			return err
		}
		return s.CreateIndex("users", "email", "email", db.IndexOptions{Unique: true})
	})

	put(t, conn, "users", "u1", `{"id":"u1","email":"a@x"}`)

	// overwriting the owner of the key is fine
	put(t, conn, "users", "u1", `{"id":"u1","email":"a@x","n":1}`)

	err := conn.Update(func(tx db.Tx) error {
		s, err := tx.ObjectStore("users")
		if err != nil {
			return err
		}
		if err := s.Put("u3", []byte(`{"id":"u3","email":"c@x"}`)); err != nil {
			return err
		}
		return s.Put("u2", []byte(`{"id":"u2","email":"a@x"}`))
	})
	if !errors.Is(err, db.ErrConstraint) {
		t.Errorf("Expected ErrConstraint, got %v", err)
	}
	if _, loaded := get(t, conn, "users", "u3"); loaded {
		t.Errorf("The transaction with the constraint violation must be rolled back")
	}

	// freeing the key allows reuse
	put(t, conn, "users", "u1", `{"id":"u1","email":"b@x"}`, "u2", `{"id":"u2","email":"a@x"}`)
	if got := indexValues(t, conn, "users", "email", nil); len(got) != 2 {
		t.Errorf("Expected 2 index entries, got %v", got)
	}
}

func testIndexBackfill(t *testing.T, engine db.Engine) {
	requireFeature(t, engine, db.FeatureVersioning)

	conn := open(t, engine, "backfill", 1, withStores("users"))
	put(t, conn, "users", "u1", `{"id":"u1","city":"b"}`, "u2", `{"id":"u2","city":"a"}`)
	_ = conn.Close()

	conn = open(t, engine, "backfill", 2, func(s db.Schema) error {
		return s.CreateIndex("users", "city", "", db.IndexOptions{})
	})
	want := []string{`{"id":"u2","city":"a"}`, `{"id":"u1","city":"b"}`}
	if got := indexValues(t, conn, "users", "city", nil); !equalStrings(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	_ = conn.Close()

	if !engine.SupportsFeature(db.FeatureUniqueIndex) {
		return
	}
	conn = open(t, engine, "backfill", 0, nil)
	put(t, conn, "users", "u3", `{"id":"u3","city":"a"}`)
	_ = conn.Close()

	_, err := engine.Open(context.Background(), "backfill", 3, db.OpenHooks{Upgrade: func(s db.Schema) error {
		return s.CreateIndex("users", "city-unique", "city", db.IndexOptions{Unique: true})
	}})
	if !errors.Is(err, db.ErrConstraint) {
		t.Errorf("Expected ErrConstraint when existing records violate a new unique index, got %v", err)
	}
}

func testClear(t *testing.T, engine db.Engine) {
	conn := open(t, engine, "clear", 1, func(s db.Schema) error {
		if err := withStores("a", "b")(s); err != nil {
			return err
		}
		return s.CreateIndex("a", "v", "v", db.IndexOptions{})
	})
	put(t, conn, "a", "1", `{"id":"1","v":1}`, "2", `{"id":"2","v":2}`)
	put(t, conn, "b", "1", `{"id":"1"}`)

	for i := 0; i < 2; i++ {
		err := conn.Update(func(tx db.Tx) error {
			s, err := tx.ObjectStore("a")
			if err != nil {
				return err
			}
			return s.Clear()
		})
		if err != nil {
			t.Errorf("Unexpected error during Clear #%d: %v", i+1, err)
		}
	}

	if got := keysOf(t, conn, "a", nil); len(got) != 0 {
		t.Errorf("Expected an empty store after Clear, got %v", got)
	}
	if got := indexValues(t, conn, "a", "v", nil); len(got) != 0 {
		t.Errorf("Expected an empty index after Clear, got %v", got)
	}
	if got := keysOf(t, conn, "b", nil); len(got) != 1 {
		t.Errorf("Clear must not touch other stores, got %v", got)
	}
}

func testClose(t *testing.T, engine db.Engine) {
	conn1 := open(t, engine, "close", 1, withStores("docs"))
	conn2 := open(t, engine, "close", 0, nil)

	if err := conn1.Close(); err != nil {
		t.Errorf("Unexpected error during Close: %v", err)
	}
	if err := conn1.Close(); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed for a second Close, got %v", err)
	}
	if err := conn1.View(func(db.Tx) error { return nil }); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed for View on a closed connection, got %v", err)
	}
	if err := conn1.Update(func(db.Tx) error { return nil }); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed for Update on a closed connection, got %v", err)
	}

	// other handles stay usable
	put(t, conn2, "docs", "k", `{"id":"k"}`)
	if _, loaded := get(t, conn2, "docs", "k"); !loaded {
		t.Errorf("Expected the second connection to keep working")
	}
}

func testDrop(t *testing.T, engine db.Engine) {
	if err := engine.Drop(context.Background(), "never-created", nil); err != nil {
		t.Errorf("Dropping a missing database should succeed, got %v", err)
	}

	conn, err := engine.Open(context.Background(), "drop", 1, db.OpenHooks{Upgrade: withStores("docs")})
	if err != nil {
		t.Fatalf("Unexpected error during Open: %v", err)
	}
	put(t, conn, "docs", "k", `{"id":"k"}`)

	blocked := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- engine.Drop(context.Background(), "drop", func() { blocked <- struct{}{} })
	}()

	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected Drop to report that it is blocked")
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Unexpected error during Close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Unexpected error during Drop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Drop did not continue after the connection was closed")
	}

	created := false
	conn = open(t, engine, "drop", 0, func(s db.Schema) error {
		created = s.OldVersion() == 0
		return nil
	})
	if !created {
		t.Errorf("Expected a fresh database after Drop")
	}
	if names := conn.ObjectStoreNames(); len(names) != 0 {
		t.Errorf("Expected no object stores after Drop, got %v", names)
	}
}

func testInfo(t *testing.T, engine db.Engine) {
	conn := open(t, engine, "info", 2, func(s db.Schema) error {
		if err := withStores("a", "b")(s); err != nil {
			return err
		}
		return s.CreateIndex("a", "name", "name", db.IndexOptions{})
	})
	put(t, conn, "a", "1", `{"id":"1","name":"x"}`, "2", `{"id":"2","name":"y"}`)

	info := conn.Info()
	if info.Name != "info" || info.Version != 2 {
		t.Errorf("Unexpected name/version %s/%d", info.Name, info.Version)
	}
	if info.DbType != engine.Implementation() {
		t.Errorf("Expected type %s, got %s", engine.Implementation(), info.DbType)
	}
	if len(info.ObjectStores) != 2 {
		t.Fatalf("Expected 2 object stores, got %d", len(info.ObjectStores))
	}
	a := info.ObjectStores[0]
	if a.Name != "a" || a.Count != 2 || !equalStrings(a.Indexes, []string{"name"}) {
		t.Errorf("Unexpected info for store a: %+v", a)
	}
	if info.ObjectStores[1].Count != 0 {
		t.Errorf("Expected store b to be empty, got %d", info.ObjectStores[1].Count)
	}
	if info.SizeBytes <= 0 {
		t.Errorf("Expected a positive size estimate, got %d", info.SizeBytes)
	}
}

func testSaveLoad(t *testing.T, factory EngineFactory) {
	engine := factory(t)
	engine2 := factory(t)

	requireFeature(t, engine, db.FeatureSave|db.FeatureLoad)

	source, ok := engine.(db.Snapshotter)
	if !ok {
		t.Fatalf("Engine supports Save and Load but does not implement db.Snapshotter")
	}
	target := engine2.(db.Snapshotter)

	conn := open(t, engine, "snapshot", 4, func(s db.Schema) error {
		if err := s.CreateObjectStore("users", db.ObjectStoreOptions{KeyPath: "uid"}); err != nil {
			return err
		}
		return s.CreateIndex("users", "name", "name", db.IndexOptions{Unique: true})
	})

	numEntries := 500
	kv := make([]string, 0, 2*numEntries)
	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-key-%04d", i)
		kv = append(kv, key, fmt.Sprintf(`{"uid":%q,"name":"user-%d"}`, key, i))
	}
	put(t, conn, "users", kv...)

	var buf bytes.Buffer
	if err := source.Save("snapshot", &buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := target.Load("restored", &buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	restored := open(t, engine2, "restored", 0, nil)
	if restored.Version() != 4 {
		t.Errorf("Expected version 4 after Load, got %d", restored.Version())
	}
	for i := 0; i+1 < len(kv); i += 2 {
		value, loaded := get(t, restored, "users", kv[i])
		if !loaded {
			t.Errorf("Key %s not found after Load", kv[i])
			continue
		}
		if string(value) != kv[i+1] {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", kv[i], kv[i+1], value)
		}
	}
	if got := indexValues(t, restored, "users", "name", db.Only("user-7")); len(got) != 1 {
		t.Errorf("Expected the index to be restored, got %v", got)
	}

	// loading over an open database fails
	if err := target.Load("restored", bytes.NewReader(nil)); err == nil {
		t.Errorf("Expected Load to fail while connections are open")
	}
	if err := source.Save("missing", &buf); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound when saving a missing database, got %v", err)
	}
}

func testConcurrentWrites(t *testing.T, engine db.Engine) {
	conn := open(t, engine, "concurrent", 1, withStores("docs"))

	const (
		workers   = 8
		perWorker = 50
	)
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-%03d", w, i)
				err := conn.Update(func(tx db.Tx) error {
					s, err := tx.ObjectStore("docs")
					if err != nil {
						return err
					}
					return s.Put(key, []byte(fmt.Sprintf(`{"id":%q}`, key)))
				})
				if err != nil {
					errs <- err
					return
				}
				err = conn.View(func(tx db.Tx) error {
					s, err := tx.ObjectStore("docs")
					if err != nil {
						return err
					}
					if _, loaded, err := s.Get(key); err != nil || !loaded {
						return fmt.Errorf("key %s not visible after commit (%v)", key, err)
					}
					return nil
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Unexpected error: %v", err)
	}

	err := conn.View(func(tx db.Tx) error {
		s, err := tx.ObjectStore("docs")
		if err != nil {
			return err
		}
		n, err := s.Count(nil)
		if n != workers*perWorker {
			t.Errorf("Expected %d values, got %d", workers*perWorker, n)
		}
		return err
	})
	if err != nil {
		t.Errorf("Unexpected error during Count: %v", err)
	}
}
