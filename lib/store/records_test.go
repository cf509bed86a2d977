package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/ValentinKolb/docKV/lib/db"
)

// rawRecord reads the stored document without going through the codec
func rawRecord(t *testing.T, c *Conn, collection, key string) map[string]any {
	t.Helper()
	var doc map[string]any
	err := c.DB().View(func(tx db.Tx) error {
		s, err := tx.ObjectStore(collection)
		if err != nil {
			return err
		}
		raw, ok, err := s.Get(key)
		if err != nil || !ok {
			return err
		}
		return json.Unmarshal(raw, &doc)
	})
	if err != nil {
		t.Fatalf("Failed to read raw record %s: %v", key, err)
	}
	return doc
}

// seed stores users with the given ids and ages, named after their id
func seed(t *testing.T, c *Conn, ages map[string]int) {
	t.Helper()
	for id, age := range ages {
		_, err := Upsert(c, "users", user{Record: Record{ID: id}, Name: "user-" + id, Age: age}, UpsertOptions{})
		if err != nil {
			t.Fatalf("Failed to seed %s: %v", id, err)
		}
	}
}

func ids(users []user) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func TestUpsert(t *testing.T) {
	c := newConn(t)

	t.Run("Insert", func(t *testing.T) {
		id, err := Upsert(c, "users", user{Name: "Ada", Age: 36}, UpsertOptions{GenID: fixed("u1"), Now: fixed("T1")})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		if id != "u1" {
			t.Errorf("Expected id u1, got %s", id)
		}

		doc := rawRecord(t, c, "users", "u1")
		expected := map[string]any{
			"id": "u1", "inserted": "T1", "updated": "T1", "deleted": "", "is_delete": false,
			"name": "Ada", "age": float64(36),
		}
		for k, v := range expected {
			if doc[k] != v {
				t.Errorf("Expected %s = %v, got %v", k, v, doc[k])
			}
		}
	})

	t.Run("GeneratedIDs", func(t *testing.T) {
		a, err := Upsert(c, "users", user{Name: "Grace"}, UpsertOptions{})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		b, err := Upsert(c, "users", user{Name: "Grace"}, UpsertOptions{})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		if a == "" || a == b {
			t.Errorf("Expected two distinct non-empty ids, got %q and %q", a, b)
		}

		u, err := Get[user](c, "users", a)
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if u.Inserted == "" || u.Inserted != u.Updated {
			t.Errorf("Expected inserted == updated on insert, got %s and %s", u.Inserted, u.Updated)
		}
	})

	t.Run("MergeKeepsUntouchedFields", func(t *testing.T) {
		_, err := Upsert(c, "users", user{Record: Record{ID: "u1"}, Age: 37}, UpsertOptions{Now: fixed("T2")})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		u, err := Get[user](c, "users", "u1")
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if u.Name != "Ada" || u.Age != 37 {
			t.Errorf("Expected Ada (37), got %s (%d)", u.Name, u.Age)
		}
		if u.Inserted != "T1" || u.Updated != "T2" {
			t.Errorf("Expected inserted T1 and updated T2, got %s and %s", u.Inserted, u.Updated)
		}
	})

	t.Run("CallerUpdated", func(t *testing.T) {
		_, err := Upsert(c, "users", user{Record: Record{ID: "u1", Updated: "custom"}}, UpsertOptions{Now: fixed("T3")})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		u, _ := Get[user](c, "users", "u1")
		if u.Updated != "custom" {
			t.Errorf("Expected updated custom, got %s", u.Updated)
		}
	})

	t.Run("MapRecord", func(t *testing.T) {
		id, err := Upsert(c, "users", map[string]any{"name": "Linus", "tags": []string{"a", "b"}}, UpsertOptions{GenID: fixed("m1")})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		doc, err := Get[map[string]any](c, "users", id)
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if doc["name"] != "Linus" || doc["is_delete"] != false {
			t.Errorf("Expected Linus with is_delete false, got %v", doc)
		}
	})

	t.Run("NotAnObject", func(t *testing.T) {
		for name, record := range map[string]any{"number": 5, "array": []int{1}, "nil": nil} {
			if _, err := Upsert(c, "users", record, UpsertOptions{}); !IsCode(err, RetCWriteError) {
				t.Errorf("%s: expected WriteError, got %v", name, err)
			}
		}
	})

	t.Run("MissingCollection", func(t *testing.T) {
		_, err := Upsert(c, "nope", user{Name: "x"}, UpsertOptions{})
		if !IsCode(err, RetCWriteError) {
			t.Errorf("Expected WriteError, got %v", err)
		}
		if !errors.Is(err, db.ErrNotFound) {
			t.Errorf("Expected error to wrap db.ErrNotFound, got %v", err)
		}
	})
}

func TestGet(t *testing.T) {
	c := newConn(t)
	seed(t, c, map[string]int{"a": 10})

	t.Run("Missing", func(t *testing.T) {
		u, err := Get[user](c, "users", "missing")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if u != (user{}) {
			t.Errorf("Expected empty user, got %+v", u)
		}

		m, err := Get[map[string]any](c, "users", "missing")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if m == nil || len(m) != 0 {
			t.Errorf("Expected empty non-nil map, got %v", m)
		}

		p, err := Get[*user](c, "users", "missing")
		if err != nil || p == nil || p.ID != "" {
			t.Errorf("Expected pointer to empty user, got %v (%v)", p, err)
		}
	})

	t.Run("MissingCollection", func(t *testing.T) {
		_, err := Get[user](c, "nope", "a")
		if !IsCode(err, RetCReadError) || !errors.Is(err, db.ErrNotFound) {
			t.Errorf("Expected ReadError wrapping db.ErrNotFound, got %v", err)
		}
	})

	t.Run("ByIndex", func(t *testing.T) {
		u, err := GetByIndex[user](c, "users", "name", "user-a")
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if u.ID != "a" {
			t.Errorf("Expected a, got %q", u.ID)
		}

		u, err = GetByIndex[user](c, "users", "age", 10)
		if err != nil || u.ID != "a" {
			t.Errorf("Expected a by age, got %q (%v)", u.ID, err)
		}

		u, err = GetByIndex[user](c, "users", "name", "nobody")
		if err != nil || u.ID != "" {
			t.Errorf("Expected empty user, got %q (%v)", u.ID, err)
		}

		_, err = GetByIndex[user](c, "users", "missing", "x")
		if !IsCode(err, RetCReadError) || !errors.Is(err, db.ErrNotFound) {
			t.Errorf("Expected ReadError wrapping db.ErrNotFound, got %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	c := newConn(t)

	t.Run("Logical", func(t *testing.T) {
		if _, err := Upsert(c, "users", user{Name: "Ada"}, UpsertOptions{GenID: fixed("s1"), Now: fixed("T1")}); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		ok, err := Delete(c, "users", "s1", DeleteOptions{Logical: true, Now: fixed("T5")})
		if !ok || err != nil {
			t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
		}

		u, _ := Get[user](c, "users", "s1")
		if !u.IsDelete || u.Deleted != "T5" || u.Updated != "T5" {
			t.Errorf("Expected soft-deleted record at T5, got %+v", u.Record)
		}
		if u.Name != "Ada" || u.Inserted != "T1" {
			t.Errorf("Expected other fields to be kept, got %+v", u)
		}
		if n, _ := Count(c, "users"); n != 1 {
			t.Errorf("Expected soft-deleted record to be counted, got %d", n)
		}
	})

	t.Run("LogicalMissingKey", func(t *testing.T) {
		ok, err := Delete(c, "users", "ghost", DeleteOptions{Logical: true})
		if !ok || err != nil {
			t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
		}
		u, _ := Get[user](c, "users", "ghost")
		if u.ID != "ghost" || !u.IsDelete || u.Deleted == "" {
			t.Errorf("Expected soft-deleted ghost record, got %+v", u.Record)
		}
	})

	t.Run("LogicalMissingCollection", func(t *testing.T) {
		_, err := Delete(c, "nope", "x", DeleteOptions{Logical: true})
		if !IsCode(err, RetCWriteError) {
			t.Errorf("Expected WriteError, got %v", err)
		}
	})

	t.Run("Physical", func(t *testing.T) {
		before, _ := Count(c, "users")
		ok, err := Delete(c, "users", "s1", DeleteOptions{})
		if !ok || err != nil {
			t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
		}
		after, _ := Count(c, "users")
		if after != before-1 {
			t.Errorf("Expected count %d, got %d", before-1, after)
		}
		if u, _ := Get[user](c, "users", "s1"); u.ID != "" {
			t.Errorf("Expected empty record, got %+v", u)
		}

		// missing keys are not an error
		if ok, err := Delete(c, "users", "s1", DeleteOptions{}); !ok || err != nil {
			t.Errorf("Expected (true, nil) for missing key, got (%v, %v)", ok, err)
		}
	})

	t.Run("PhysicalMissingCollection", func(t *testing.T) {
		_, err := Delete(c, "nope", "x", DeleteOptions{})
		if !IsCode(err, RetCDeleteError) {
			t.Errorf("Expected DeleteError, got %v", err)
		}
	})
}

func TestList(t *testing.T) {
	c := newConn(t)
	seed(t, c, map[string]int{"k1": 10, "k2": 20, "k3": 30, "k4": 40})

	tests := []struct {
		name     string
		opts     ListOptions
		expected []string
	}{
		{"All", ListOptions{}, []string{"k1", "k2", "k3", "k4"}},
		{"Single", ListOptions{From: "k1", To: "k1"}, []string{"k1"}},
		{"Inclusive", ListOptions{From: "k1", To: "k3"}, []string{"k1", "k2", "k3"}},
		{"FromOnly", ListOptions{From: "k2"}, []string{"k2", "k3", "k4"}},
		{"ToOnly", ListOptions{To: "k2"}, []string{"k1", "k2"}},
		{"Empty", ListOptions{From: "x"}, []string{}},
		{"IndexRange", ListOptions{Index: "age", From: 20, To: 30}, []string{"k2", "k3"}},
		{"IndexSingle", ListOptions{Index: "age", From: 20, To: 20.0}, []string{"k2"}},
		{"IndexFrom", ListOptions{Index: "age", From: 35}, []string{"k4"}},
		{"IndexStrings", ListOptions{Index: "name", To: "user-k2"}, []string{"k1", "k2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := List[user](c, "users", tt.opts)
			if err != nil {
				t.Fatalf("Failed to list: %v", err)
			}
			if got := ids(result); strings.Join(got, ",") != strings.Join(tt.expected, ",") {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}

	t.Run("IncludesSoftDeleted", func(t *testing.T) {
		if _, err := Delete(c, "users", "k2", DeleteOptions{Logical: true}); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		result, _ := List[user](c, "users", ListOptions{})
		if len(result) != 4 {
			t.Errorf("Expected 4 records, got %d", len(result))
		}
	})

	t.Run("Errors", func(t *testing.T) {
		if _, err := List[user](c, "users", ListOptions{Index: "missing"}); !errors.Is(err, db.ErrNotFound) {
			t.Errorf("Expected db.ErrNotFound for missing index, got %v", err)
		}
		if _, err := List[user](c, "users", ListOptions{From: true}); !IsCode(err, RetCReadError) {
			t.Errorf("Expected ReadError for invalid key, got %v", err)
		}
	})
}

func TestSelect(t *testing.T) {
	c := newConn(t)
	seed(t, c, map[string]int{"a": 10, "b": 20, "c": 30, "d": 40})
	if _, err := Delete(c, "users", "d", DeleteOptions{Logical: true}); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	t.Run("Predicate", func(t *testing.T) {
		result, err := Select(c, "users", func(u user) bool { return u.Age >= 20 }, SelectOptions{})
		if err != nil {
			t.Fatalf("Failed to select: %v", err)
		}
		if got := strings.Join(ids(result), ","); got != "b,c" {
			t.Errorf("Expected b,c, got %s", got)
		}
	})

	t.Run("IncludeDeleted", func(t *testing.T) {
		result, _ := Select(c, "users", func(u user) bool { return u.Age >= 20 }, SelectOptions{IncludeDeleted: true})
		if got := strings.Join(ids(result), ","); got != "b,c,d" {
			t.Errorf("Expected b,c,d, got %s", got)
		}
	})

	t.Run("NilPredicate", func(t *testing.T) {
		result, _ := Select[user](c, "users", nil, SelectOptions{})
		if len(result) != 3 {
			t.Errorf("Expected 3 records, got %d", len(result))
		}
	})

	t.Run("PanickingPredicate", func(t *testing.T) {
		result, err := Select(c, "users", func(u user) bool {
			if u.ID == "b" {
				panic("boom")
			}
			return true
		}, SelectOptions{})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if got := strings.Join(ids(result), ","); got != "a,c" {
			t.Errorf("Expected a,c, got %s", got)
		}
	})

	t.Run("UndecodableRecords", func(t *testing.T) {
		type wrongAge struct {
			Age string `json:"age"`
		}
		result, err := Select[wrongAge](c, "users", nil, SelectOptions{})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if result == nil || len(result) != 0 {
			t.Errorf("Expected empty non-nil result, got %v", result)
		}
	})

	t.Run("MissingCollection", func(t *testing.T) {
		if _, err := Select[user](c, "nope", nil, SelectOptions{}); !IsCode(err, RetCReadError) {
			t.Errorf("Expected ReadError, got %v", err)
		}
	})
}

func TestCountAndClear(t *testing.T) {
	c := newConn(t)
	seed(t, c, map[string]int{"a": 1, "b": 2})

	if n, err := Count(c, "users"); err != nil || n != 2 {
		t.Fatalf("Expected 2 records, got %d (%v)", n, err)
	}

	for i := 0; i < 2; i++ {
		ok, err := Clear(c, "users")
		if !ok || err != nil {
			t.Fatalf("Clear %d: expected (true, nil), got (%v, %v)", i, ok, err)
		}
		if n, _ := Count(c, "users"); n != 0 {
			t.Errorf("Clear %d: expected 0 records, got %d", i, n)
		}
	}

	// indexes are cleared as well
	if u, _ := GetByIndex[user](c, "users", "name", "user-a"); u.ID != "" {
		t.Errorf("Expected no index hit after clear, got %s", u.ID)
	}

	if _, err := Clear(c, "nope"); !IsCode(err, RetCClearError) {
		t.Errorf("Expected ClearError, got %v", err)
	}
	if _, err := Count(c, "nope"); !IsCode(err, RetCReadError) {
		t.Errorf("Expected ReadError, got %v", err)
	}
}

func TestScenario(t *testing.T) {
	c := newConn(t)

	id, err := Upsert(c, "users", user{Name: "Alice", Age: 28}, UpsertOptions{})
	if err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	u, err := Get[user](c, "users", id)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if u.ID != id || u.Name != "Alice" || u.Age != 28 || u.IsDelete {
		t.Errorf("Expected Alice (28), got %+v", u)
	}

	if ok, err := Delete(c, "users", id, DeleteOptions{Logical: true}); !ok || err != nil {
		t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
	}
	if u, _ := Get[user](c, "users", id); !u.IsDelete {
		t.Errorf("Expected record to be soft-deleted")
	}

	result, err := Select(c, "users", func(user) bool { return true }, SelectOptions{})
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("Expected no records, got %d", len(result))
	}
}

func TestMetrics(t *testing.T) {
	c := newConn(t)
	_, _ = Get[user](c, "users", "x")
	_, _ = Get[user](c, "nope", "x")

	var sb strings.Builder
	WritePrometheus(&sb)
	out := sb.String()
	for _, name := range []string{
		`dockv_store_ops_total{op="get"}`,
		`dockv_store_errors_total{op="get"}`,
		`dockv_store_op_duration_seconds_bucket{op="get"`,
	} {
		if !strings.Contains(out, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}
