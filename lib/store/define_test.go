package store

import (
	"fmt"
	"strings"
	"testing"
)

// counter returns a generator producing prefix-1, prefix-2, ...
func counter(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestDefineStore(t *testing.T) {
	c := newConn(t)

	t.Run("Defaults", func(t *testing.T) {
		users := DefineStore[user]("users")
		if users.Name() != "users" {
			t.Errorf("Expected name users, got %s", users.Name())
		}
		if !users.LogicalDelete() {
			t.Errorf("Expected logical deletes by default")
		}
	})

	t.Run("LogicalDelete", func(t *testing.T) {
		users := DefineStore[user]("users", Defaults{GenID: counter("id"), Now: counter("ts")})

		id, err := users.Upsert(c, user{Name: "Ada"})
		if err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		if id != "id-1" {
			t.Errorf("Expected id-1, got %s", id)
		}
		u, _ := users.Get(c, id)
		if u.Inserted != "ts-1" || u.Updated != "ts-1" {
			t.Errorf("Expected ts-1 timestamps, got %s and %s", u.Inserted, u.Updated)
		}

		if ok, err := users.Delete(c, id); !ok || err != nil {
			t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
		}
		u, _ = users.Get(c, id)
		if !u.IsDelete || u.Deleted != "ts-2" {
			t.Errorf("Expected soft delete at ts-2, got %+v", u.Record)
		}
		if n, _ := users.Count(c); n != 1 {
			t.Errorf("Expected 1 record, got %d", n)
		}

		// soft-deleted records are hidden from Select
		result, _ := users.Select(c, nil)
		if len(result) != 0 {
			t.Errorf("Expected no records, got %d", len(result))
		}
		listed, _ := users.List(c, ListOptions{})
		if len(listed) != 1 {
			t.Errorf("Expected 1 listed record, got %d", len(listed))
		}
	})

	t.Run("PhysicalDelete", func(t *testing.T) {
		physical := false
		users := DefineStore[user]("users", Defaults{LogicalDelete: &physical})
		if _, err := users.Clear(c); err != nil {
			t.Fatalf("Failed to clear: %v", err)
		}

		id, _ := users.Upsert(c, user{Name: "Grace"})
		other, _ := users.Upsert(c, user{Name: "Linus"})

		// with physical deletes Select includes soft-deleted records
		if _, err := Delete(c, "users", other, DeleteOptions{Logical: true}); err != nil {
			t.Fatalf("Failed to soft-delete: %v", err)
		}
		result, _ := users.Select(c, nil)
		if len(result) != 2 {
			t.Errorf("Expected 2 records, got %d", len(result))
		}

		if ok, err := users.Delete(c, id); !ok || err != nil {
			t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
		}
		if u, _ := users.Get(c, id); u.ID != "" {
			t.Errorf("Expected record to be removed, got %+v", u)
		}
		if n, _ := users.Count(c); n != 1 {
			t.Errorf("Expected 1 record, got %d", n)
		}
	})

	t.Run("GetByIndex", func(t *testing.T) {
		users := DefineStore[user]("users")
		if _, err := users.Upsert(c, user{Name: "Margaret", Age: 33}); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
		u, err := users.GetByIndex(c, "name", "Margaret")
		if err != nil || u.Age != 33 {
			t.Errorf("Expected Margaret (33), got %+v (%v)", u, err)
		}
	})
}

func TestBindStore(t *testing.T) {
	c := newConn(t)
	users := BindStore[user](c, "users", Defaults{GenID: counter("u")})

	if users.Conn() != c || users.Name() != "users" {
		t.Fatalf("Expected store bound to users on the given connection")
	}

	for _, name := range []string{"Ada", "Grace", "Linus"} {
		if _, err := users.Upsert(user{Name: name}); err != nil {
			t.Fatalf("Failed to upsert %s: %v", name, err)
		}
	}

	listed, err := users.List(ListOptions{From: "u-2"})
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if got := strings.Join(ids(listed), ","); got != "u-2,u-3" {
		t.Errorf("Expected u-2,u-3, got %s", got)
	}

	if ok, err := users.Delete("u-1"); !ok || err != nil {
		t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
	}
	selected, _ := users.Select(func(u user) bool { return strings.HasPrefix(u.Name, "A") || u.Name == "Grace" })
	if got := strings.Join(ids(selected), ","); got != "u-2" {
		t.Errorf("Expected u-2, got %s", got)
	}

	u, _ := users.GetByIndex("name", "Linus")
	if u.ID != "u-3" {
		t.Errorf("Expected u-3, got %s", u.ID)
	}
	if u, _ := users.Get("u-1"); !u.IsDelete {
		t.Errorf("Expected u-1 to be soft-deleted")
	}

	if n, _ := users.Count(); n != 3 {
		t.Errorf("Expected 3 records, got %d", n)
	}
	if ok, err := users.Clear(); !ok || err != nil {
		t.Errorf("Expected (true, nil), got (%v, %v)", ok, err)
	}
	if n, _ := users.Count(); n != 0 {
		t.Errorf("Expected 0 records, got %d", n)
	}
}
