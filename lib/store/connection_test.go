package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/ValentinKolb/docKV/lib/db/engines/maple"
)

// --------------------------------------------------------------------------
// Test Helper
// --------------------------------------------------------------------------

type user struct {
	Record
	Name string `json:"name,omitempty"`
	Age  int    `json:"age,omitempty"`
}

// usersSchema creates the users collection with the indexes name and age
func usersSchema(s db.Schema) error {
	return CreateStore(s, "users", IndexDef{Name: "name"}, IndexDef{Name: "age"})
}

// newConn opens a fresh in-memory database with the users collection
func newConn(t *testing.T) *Conn {
	t.Helper()
	c, err := Connect(context.Background(), maple.NewMapleEngine(), "test", 1, usersSchema)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _, _ = Close(c) })
	return c
}

// fixed returns a generator that always returns v
func fixed(v string) func() string {
	return func() string { return v }
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("Defaults", func(t *testing.T) {
		c, err := Connect(ctx, maple.NewMapleEngine(), "", 0, nil)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer Close(c)

		if c.Name() != DefaultDBName {
			t.Errorf("Expected name %s, got %s", DefaultDBName, c.Name())
		}
		if c.Version() != DefaultDBVersion {
			t.Errorf("Expected version %d, got %d", DefaultDBVersion, c.Version())
		}
	})

	t.Run("UpgradeRunsOncePerVersion", func(t *testing.T) {
		engine := maple.NewMapleEngine()
		calls := 0
		var oldVersions []uint64
		upgrade := func(s db.Schema) error {
			calls++
			oldVersions = append(oldVersions, s.OldVersion())
			return usersSchema(s)
		}

		for _, version := range []uint64{1, 1, 2} {
			c, err := Connect(ctx, engine, "app", version, upgrade)
			if err != nil {
				t.Fatalf("Failed to connect with version %d: %v", version, err)
			}
			if _, err := Close(c); err != nil {
				t.Fatalf("Failed to close: %v", err)
			}
		}

		if calls != 2 {
			t.Errorf("Expected 2 upgrade calls, got %d", calls)
		}
		if len(oldVersions) == 2 && (oldVersions[0] != 0 || oldVersions[1] != 1) {
			t.Errorf("Expected old versions [0 1], got %v", oldVersions)
		}
	})

	t.Run("UpgradeError", func(t *testing.T) {
		engine := maple.NewMapleEngine()
		cause := errors.New("broken schema")
		_, err := Connect(ctx, engine, "app", 1, func(s db.Schema) error {
			if err := usersSchema(s); err != nil {
				return err
			}
			return cause
		})
		if !IsCode(err, RetCConnectionError) {
			t.Fatalf("Expected ConnectionError, got %v", err)
		}
		if !errors.Is(err, cause) {
			t.Errorf("Expected error to wrap the callback error, got %v", err)
		}

		// the failed upgrade left nothing behind
		c, err := ConnectLatest(ctx, engine, "app")
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer Close(c)
		if names := c.DB().ObjectStoreNames(); len(names) != 0 {
			t.Errorf("Expected no collections after failed upgrade, got %v", names)
		}
	})

	t.Run("UpgradePanic", func(t *testing.T) {
		_, err := Connect(ctx, maple.NewMapleEngine(), "app", 1, func(s db.Schema) error {
			panic("boom")
		})
		if !IsCode(err, RetCConnectionError) {
			t.Errorf("Expected ConnectionError, got %v", err)
		}
	})

	t.Run("LowerVersion", func(t *testing.T) {
		engine := maple.NewMapleEngine()
		c, err := Connect(ctx, engine, "app", 3, usersSchema)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		Close(c)

		_, err = Connect(ctx, engine, "app", 2, usersSchema)
		if !IsCode(err, RetCConnectionError) {
			t.Errorf("Expected ConnectionError, got %v", err)
		}
		if !errors.Is(err, db.ErrVersion) {
			t.Errorf("Expected error to wrap db.ErrVersion, got %v", err)
		}
	})

	t.Run("ConnectLatest", func(t *testing.T) {
		engine := maple.NewMapleEngine()
		c, err := Connect(ctx, engine, "app", 5, usersSchema)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer Close(c)

		latest, err := ConnectLatest(ctx, engine, "app")
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer Close(latest)
		if latest.Version() != 5 {
			t.Errorf("Expected version 5, got %d", latest.Version())
		}
	})

	t.Run("BlockedUpgrade", func(t *testing.T) {
		engine := maple.NewMapleEngine()
		c, err := Connect(ctx, engine, "app", 1, usersSchema)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer Close(c)

		timeout, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = Connect(timeout, engine, "app", 2, usersSchema)
		if !IsCode(err, RetCConnectionError) {
			t.Fatalf("Expected ConnectionError, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected error to wrap context.DeadlineExceeded, got %v", err)
		}
	})
}

func TestCreateStore(t *testing.T) {
	ctx := context.Background()
	engine := maple.NewMapleEngine()

	t.Run("Idempotent", func(t *testing.T) {
		c, err := Connect(ctx, engine, "app", 1, func(s db.Schema) error {
			if err := usersSchema(s); err != nil {
				return err
			}
			return usersSchema(s)
		})
		if err != nil {
			t.Fatalf("Expected repeated CreateStore to succeed, got %v", err)
		}
		Close(c)
	})

	t.Run("AddIndexLater", func(t *testing.T) {
		c, err := Connect(ctx, engine, "app", 2, func(s db.Schema) error {
			return CreateStore(s, "users", IndexDef{Name: "name"}, IndexDef{Name: "email", KeyPath: "contact.email", Unique: true})
		})
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer Close(c)

		err = c.DB().View(func(tx db.Tx) error {
			s, err := tx.ObjectStore("users")
			if err != nil {
				return err
			}
			if s.KeyPath() != "id" {
				t.Errorf("Expected key path id, got %s", s.KeyPath())
			}
			idx, err := s.Index("email")
			if err != nil {
				return err
			}
			if idx.KeyPath() != "contact.email" || !idx.Unique() {
				t.Errorf("Expected unique index on contact.email, got %s (unique %v)", idx.KeyPath(), idx.Unique())
			}
			_, err = s.Index("age")
			return err
		})
		if err != nil {
			t.Errorf("Expected indexes of both versions, got %v", err)
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		ok, err := Close(nil)
		if ok || err != nil {
			t.Errorf("Expected (false, nil), got (%v, %v)", ok, err)
		}
	})

	t.Run("Twice", func(t *testing.T) {
		c, err := Connect(context.Background(), maple.NewMapleEngine(), "app", 1, usersSchema)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		if ok, err := Close(c); !ok || err != nil {
			t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
		}
		if _, err := Close(c); !IsCode(err, RetCCloseError) {
			t.Errorf("Expected CloseError, got %v", err)
		}
		if _, err := Count(c, "users"); !errors.Is(err, db.ErrClosed) {
			t.Errorf("Expected db.ErrClosed after close, got %v", err)
		}
	})

	t.Run("OtherConnectionsStayUsable", func(t *testing.T) {
		engine := maple.NewMapleEngine()
		a, err := Connect(context.Background(), engine, "app", 1, usersSchema)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		b, err := Connect(context.Background(), engine, "app", 1, usersSchema)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer Close(b)

		Close(a)
		if _, err := Count(b, "users"); err != nil {
			t.Errorf("Expected second connection to work, got %v", err)
		}
	})
}

func TestDrop(t *testing.T) {
	ctx := context.Background()
	engine := maple.NewMapleEngine()

	c, err := Connect(ctx, engine, "app", 1, usersSchema)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if _, err := Upsert(c, "users", user{Name: "Ada"}, UpsertOptions{}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	t.Run("Blocked", func(t *testing.T) {
		timeout, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		ok, err := Drop(timeout, engine, "app")
		if ok || !IsCode(err, RetCDropError) {
			t.Errorf("Expected (false, DropError), got (%v, %v)", ok, err)
		}
	})

	t.Run("Idle", func(t *testing.T) {
		Close(c)
		ok, err := Drop(ctx, engine, "app")
		if !ok || err != nil {
			t.Fatalf("Expected (true, nil), got (%v, %v)", ok, err)
		}

		// the database starts over at version 0
		oldVersion := uint64(99)
		c, err := Connect(ctx, engine, "app", 1, func(s db.Schema) error {
			oldVersion = s.OldVersion()
			return usersSchema(s)
		})
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer Close(c)
		if oldVersion != 0 {
			t.Errorf("Expected old version 0, got %d", oldVersion)
		}
		if n, _ := Count(c, "users"); n != 0 {
			t.Errorf("Expected 0 records after drop, got %d", n)
		}
	})
}

func TestInfo(t *testing.T) {
	c := newConn(t)
	for _, name := range []string{"Ada", "Grace"} {
		if _, err := Upsert(c, "users", user{Name: name}, UpsertOptions{}); err != nil {
			t.Fatalf("Failed to upsert: %v", err)
		}
	}

	info, err := Info(c)
	if err != nil {
		t.Fatalf("Failed to get info: %v", err)
	}
	if info.Name != "test" || info.Version != 1 {
		t.Errorf("Expected test@1, got %s@%d", info.Name, info.Version)
	}
	if len(info.ObjectStores) != 1 || info.ObjectStores[0].Count != 2 {
		t.Errorf("Expected one collection with 2 records, got %+v", info.ObjectStores)
	}

	if _, err := Info(nil); !IsCode(err, RetCReadError) {
		t.Errorf("Expected ReadError for nil connection, got %v", err)
	}
}
