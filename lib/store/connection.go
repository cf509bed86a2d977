package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Conn is one open handle to a database. Connections are not pooled: every
// Connect returns an independent handle and closing it leaves other handles
// to the same database usable.
//
// Thread-safety: a Conn is safe for concurrent use.
type Conn struct {
	conn db.Conn
}

// Name returns the database name.
func (c *Conn) Name() string { return c.conn.Name() }

// Version returns the version the database was opened with.
func (c *Conn) Version() uint64 { return c.conn.Version() }

// DB returns the underlying engine connection.
func (c *Conn) DB() db.Conn { return c.conn }

// Connect opens the named database, creating it on first use. An empty name
// and a version of 0 fall back to DefaultDBName and DefaultDBVersion.
//
// onUpgrade runs when the database is created or opened with a higher version;
// it declares the collections (see CreateStore). An error or panic of onUpgrade
// rolls the upgrade back and fails with a ConnectionError. While other
// connections delay the upgrade a warning is logged and Connect keeps waiting
// until they close or ctx ends.
func Connect(ctx context.Context, engine db.Engine, name string, version uint64, onUpgrade UpgradeFunc) (c *Conn, err error) {
	if version == 0 {
		version = DefaultDBVersion
	}
	return connect(ctx, engine, name, version, onUpgrade)
}

// ConnectLatest opens the named database with its current version (version 1
// if it does not exist yet) without running an upgrade.
func ConnectLatest(ctx context.Context, engine db.Engine, name string) (*Conn, error) {
	return connect(ctx, engine, name, 0, nil)
}

func connect(ctx context.Context, engine db.Engine, name string, version uint64, onUpgrade UpgradeFunc) (c *Conn, err error) {
	defer observe("connect", time.Now(), &err)

	if name == "" {
		name = DefaultDBName
	}

	hooks := db.OpenHooks{
		Blocked: func() {
			log.Warningf("opening %s (version %d) is blocked by other open connections, waiting", name, version)
		},
	}
	if onUpgrade != nil {
		hooks.Upgrade = func(s db.Schema) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("upgrade callback panicked: %v", r)
				}
			}()
			log.Infof("upgrading %s from version %d to %d", name, s.OldVersion(), s.NewVersion())
			return onUpgrade(s)
		}
	}

	conn, err := engine.Open(ctx, name, version, hooks)
	if err != nil {
		return nil, NewError(RetCConnectionError, "connect "+name, "could not open database", err)
	}
	log.Debugf("opened %s (version %d)", conn.Name(), conn.Version())
	return &Conn{conn: conn}, nil
}

// CreateStore creates the collection `name` keyed by "id" together with the given
// indexes. It is meant to be called from an UpgradeFunc and is idempotent: an
// existing collection or index is left untouched.
func CreateStore(s db.Schema, name string, indexes ...IndexDef) error {
	exists := false
	for _, existing := range s.ObjectStoreNames() {
		if existing == name {
			exists = true
			break
		}
	}
	if !exists {
		if err := s.CreateObjectStore(name, db.ObjectStoreOptions{KeyPath: fieldID}); err != nil {
			return err
		}
	}

	for _, idx := range indexes {
		if s.HasIndex(name, idx.Name) {
			continue
		}
		keyPath := idx.KeyPath
		if keyPath == "" {
			keyPath = idx.Name
		}
		if err := s.CreateIndex(name, idx.Name, keyPath, db.IndexOptions{Unique: idx.Unique}); err != nil {
			return err
		}
	}
	return nil
}

// Drop deletes the named database (DefaultDBName if empty) with all collections.
// While other connections are open a warning is logged and Drop waits until they
// close or ctx ends.
func Drop(ctx context.Context, engine db.Engine, name string) (ok bool, err error) {
	defer observe("drop", time.Now(), &err)

	if name == "" {
		name = DefaultDBName
	}
	err = engine.Drop(ctx, name, func() {
		log.Warningf("dropping %s is blocked by other open connections, waiting", name)
	})
	if err != nil {
		return false, NewError(RetCDropError, "drop "+name, "could not drop database", err)
	}
	log.Infof("dropped database %s", name)
	return true, nil
}

// Close closes the connection. A nil connection is not an error, Close then returns false.
func Close(c *Conn) (ok bool, err error) {
	if c == nil || c.conn == nil {
		return false, nil
	}
	defer observe("close", time.Now(), &err)

	if err := c.conn.Close(); err != nil {
		return false, NewError(RetCCloseError, "close "+c.conn.Name(), "could not close connection", err)
	}
	return true, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

var errNilConn = fmt.Errorf("nil connection: %w", db.ErrClosed)

// view runs fn on the collection inside a readonly transaction
func (c *Conn) view(collection string, fn func(s db.ObjectStore) error) error {
	if c == nil || c.conn == nil {
		return errNilConn
	}
	return c.conn.View(func(tx db.Tx) error {
		s, err := tx.ObjectStore(collection)
		if err != nil {
			return err
		}
		return fn(s)
	})
}

// update runs fn on the collection inside a readwrite transaction
func (c *Conn) update(collection string, fn func(s db.ObjectStore) error) error {
	if c == nil || c.conn == nil {
		return errNilConn
	}
	return c.conn.Update(func(tx db.Tx) error {
		s, err := tx.ObjectStore(collection)
		if err != nil {
			return err
		}
		return fn(s)
	})
}

// isMissing reports whether err says that a collection or index does not exist
func isMissing(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
