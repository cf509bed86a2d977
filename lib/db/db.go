package db

import (
	"context"
	"errors"
	"io"

	"github.com/ValentinKolb/docKV/lib/db/keys"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple Implementation = "maple"
	ImplBolt  Implementation = "bolt"
)

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeaturePersistent  Feature = 1 << iota // Data survives process restarts
	FeatureVersioning                      // Databases carry a version and run upgrade callbacks
	FeatureUniqueIndex                     // Support for unique secondary indexes
	FeatureSave                            // Support for Save operations
	FeatureLoad                            // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeaturePersistent:
		return "Persistent"
	case FeatureVersioning:
		return "Versioning"
	case FeatureUniqueIndex:
		return "UniqueIndex"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

// ObjectStoreInfo describes one object store of a database.
type ObjectStoreInfo struct {
	Name    string   `json:"name"`
	KeyPath string   `json:"key_path"`
	Count   int      `json:"count"`
	Indexes []string `json:"indexes"`
}

type DatabaseInfo struct {
	Name              string            `json:"name"`
	Version           uint64            `json:"version"`
	SizeBytes         int               `json:"size_bytes"`
	DbType            Implementation    `json:"db_type"`
	SupportedFeatures []Feature         `json:"supported_features"`
	ObjectStores      []ObjectStoreInfo `json:"object_stores"`
	Metadata          interface{}       `json:"metadata"`
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrNotFound is returned when an object store or index does not exist.
	ErrNotFound = errors.New("not found")
	// ErrReadOnly is returned when a write is attempted inside a readonly transaction.
	ErrReadOnly = errors.New("transaction is readonly")
	// ErrVersion is returned when a database is opened with a lower version than the stored one.
	ErrVersion = errors.New("requested version is lower than the existing version")
	// ErrConstraint is returned when a put violates a unique index.
	ErrConstraint = errors.New("unique constraint violated")
	// ErrClosed is returned when a closed connection is used.
	ErrClosed = errors.New("connection is closed")
	// ErrInvalidKey is returned for keys that are neither strings nor numbers.
	ErrInvalidKey = keys.ErrInvalidKey
	// ErrExists is returned when an object store or index is created twice.
	ErrExists = errors.New("already exists")
)

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// OpenHooks carries the callbacks of an open request.
type OpenHooks struct {
	// Upgrade is invoked inside the versionchange transaction when the database is
	// created or opened with a higher version. Returning an error (or panicking)
	// aborts the upgrade and the open.
	Upgrade func(s Schema) error
	// Blocked is invoked (at most once) when other open connections delay the upgrade.
	Blocked func()
}

// Engine is the storage engine that owns named, versioned databases.
// Any implementation of this interface must be safe for concurrent use.
type Engine interface {
	// Open opens the named database, creating it on first use. A version of 0 opens the
	// current version (or version 1 for a new database). Opening with a lower version
	// than the stored one fails with ErrVersion.
	Open(ctx context.Context, name string, version uint64, hooks OpenHooks) (conn Conn, err error)

	// Drop deletes the named database with all its object stores. While other connections
	// are open, onBlocked is invoked once and Drop waits for them to close or ctx to end.
	// Dropping a database that does not exist succeeds.
	Drop(ctx context.Context, name string, onBlocked func()) (err error)

	// Implementation returns the identifier of the engine.
	Implementation() Implementation

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)
}

// Conn is one open handle to a database. Closing it does not affect other handles.
type Conn interface {
	// Name returns the database name.
	Name() string

	// Version returns the version the database was opened with.
	Version() uint64

	// ObjectStoreNames returns the sorted names of all object stores.
	ObjectStoreNames() []string

	// View runs fn inside a readonly transaction.
	View(fn func(tx Tx) error) (err error)

	// Update runs fn inside a readwrite transaction. The transaction commits if fn
	// returns nil and rolls back otherwise.
	Update(fn func(tx Tx) error) (err error)

	// Info returns statistics about the database. Sizes may be estimates.
	Info() (info DatabaseInfo)

	// Close releases the handle. Closing twice returns ErrClosed.
	Close() (err error)
}

// Tx is a transaction scoped to one database.
type Tx interface {
	// ObjectStore returns the named object store or ErrNotFound.
	ObjectStore(name string) (store ObjectStore, err error)

	// Writable reports whether the transaction is a readwrite transaction.
	Writable() bool
}

// ObjectStore is a collection of values keyed by a string primary key.
// Values are JSON documents; secondary indexes are maintained on Put and Delete.
type ObjectStore interface {
	Name() string
	KeyPath() string

	// Get returns a copy of the value stored under key.
	Get(key string) (value []byte, loaded bool, err error)

	// Put inserts or overwrites the value stored under key.
	Put(key string, value []byte) (err error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) (err error)

	// Clear removes every value of the object store.
	Clear() (err error)

	// Count returns the number of values in the range (nil = all).
	Count(r *KeyRange) (n int, err error)

	// GetAll returns all values in the range in ascending key order.
	GetAll(r *KeyRange) (values [][]byte, err error)

	// Cursor iterates the range in ascending key order until fn returns false or an error.
	Cursor(r *KeyRange, fn func(key string, value []byte) (bool, error)) (err error)

	// Index returns the named index or ErrNotFound.
	Index(name string) (index Index, err error)
}

// Index is a secondary index over one attribute of the values of an object store.
type Index interface {
	Name() string
	KeyPath() string
	Unique() bool

	// Get returns the first value (in primary key order) whose index key equals key.
	Get(key any) (value []byte, loaded bool, err error)

	// GetAll returns all values whose index key lies in the range, ordered by index key
	// and then primary key.
	GetAll(r *KeyRange) (values [][]byte, err error)
}

// ObjectStoreOptions configures a new object store.
type ObjectStoreOptions struct {
	KeyPath string // attribute holding the primary key (default "id")
}

// IndexOptions configures a new index.
type IndexOptions struct {
	Unique bool
}

// Schema is handed to OpenHooks.Upgrade and allows changing the database layout.
type Schema interface {
	OldVersion() uint64
	NewVersion() uint64
	ObjectStoreNames() []string
	CreateObjectStore(name string, opts ObjectStoreOptions) (err error)
	DeleteObjectStore(name string) (err error)
	CreateIndex(store, name, keyPath string, opts IndexOptions) (err error)
	HasIndex(store, name string) bool
}

// Snapshotter is implemented by engines that support FeatureSave and FeatureLoad.
type Snapshotter interface {
	// Save writes the named database (version, object stores, indexes and records) to w.
	Save(name string, w io.Writer) (err error)

	// Load replaces the named database with the snapshot read from r.
	// It fails while connections to the database are open.
	Load(name string, r io.Reader) (err error)
}
