package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/ValentinKolb/docKV/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.etcd.io/bbolt"
)

var log = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	fileExt     = ".db"
	fileMode    = 0o600
	openTimeout = time.Second
)

var (
	metaBucket = []byte("__meta__") // database version
	versionKey = []byte("version")
)

// --------------------------------------------------------------------------
// Core Bolt engine structure
// --------------------------------------------------------------------------

// boltImpl implements a persistent engine. Every database is one bbolt file in dir.
type boltImpl struct {
	dir       string
	databases *xsync.MapOf[string, *database]
}

// database is one named database of the engine. All connections of a database
// share one bbolt handle; it is opened with the first connection and closed with
// the last one, so the file is not locked while the database is unused.
type database struct {
	name    string
	path    string
	tracker *util.ConnTracker
	handle  *bbolt.DB // guarded by the tracker lock
}

// NewBoltEngine creates a persistent engine storing its databases in dir.
func NewBoltEngine(dir string) (db.Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return &boltImpl{
		dir:       dir,
		databases: xsync.NewMapOf[string, *database](),
	}, nil
}

// lookup returns the registry entry of a database, creating it if needed.
func (b *boltImpl) lookup(name string) (*database, error) {
	if err := db.ValidateName("database", name); err != nil {
		return nil, err
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("database name %q must not contain path separators", name)
	}
	d, _ := b.databases.LoadOrCompute(name, func() *database {
		return &database{
			name:    name,
			path:    filepath.Join(b.dir, name+fileExt),
			tracker: util.NewConnTracker(),
		}
	})
	return d, nil
}

// --------------------------------------------------------------------------
// Engine Interface Methods (docu see db/db.go)
// --------------------------------------------------------------------------

func (b *boltImpl) Open(ctx context.Context, name string, version uint64, hooks db.OpenHooks) (db.Conn, error) {
	for {
		d, err := b.lookup(name)
		if err != nil {
			return nil, err
		}

		d.tracker.Lock()
		if d.tracker.DroppedLocked() {
			d.tracker.Unlock()
			continue
		}

		conn, err := d.open(ctx, version, hooks)
		if err != nil {
			d.closeIfIdleLocked()
		}
		d.tracker.Unlock()
		return conn, err
	}
}

func (b *boltImpl) Drop(ctx context.Context, name string, onBlocked func()) error {
	d, err := b.lookup(name)
	if err != nil {
		return err
	}

	d.tracker.Lock()
	defer d.tracker.Unlock()

	if err := d.tracker.WaitIdleLocked(ctx, 0, onBlocked); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}

	d.closeIfIdleLocked()
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("drop %s: %w", name, err)
	}

	d.tracker.MarkDroppedLocked()
	b.databases.Delete(name)
	log.Debugf("dropped database %s (%s)", name, d.path)
	return nil
}

func (b *boltImpl) Implementation() db.Implementation {
	return db.ImplBolt
}

// SupportsFeature checks if this implementation supports a specific engine feature
func (b *boltImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeaturePersistent |
		db.FeatureVersioning |
		db.FeatureUniqueIndex |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a consistent copy of the database file to w.
func (b *boltImpl) Save(name string, w io.Writer) error {
	d, err := b.lookup(name)
	if err != nil {
		return err
	}

	d.tracker.Lock()
	defer d.tracker.Unlock()
	defer d.closeIfIdleLocked()

	if d.handle == nil {
		if _, err := os.Stat(d.path); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("save %s: %w", name, db.ErrNotFound)
		}
	}
	handle, err := d.handleLocked()
	if err != nil {
		return err
	}
	return handle.View(func(tx *bbolt.Tx) error {
		_, err := tx.WriteTo(w)
		return err
	})
}

// Load replaces the database file with a copy written by Save.
func (b *boltImpl) Load(name string, r io.Reader) error {
	d, err := b.lookup(name)
	if err != nil {
		return err
	}

	d.tracker.Lock()
	defer d.tracker.Unlock()

	if open := d.tracker.OpenLocked(); open > 0 {
		return fmt.Errorf("load %s: %d connections are open", name, open)
	}
	d.closeIfIdleLocked()

	tmp, err := os.CreateTemp(filepath.Dir(d.path), filepath.Base(d.path)+".load-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("load %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// verify the copy before it replaces the database
	check, err := bbolt.Open(tmp.Name(), fileMode, &bbolt.Options{Timeout: openTimeout, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("load %s: invalid snapshot: %w", name, err)
	}
	version, err := readVersion(check)
	check.Close()
	if err != nil {
		return fmt.Errorf("load %s: invalid snapshot: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return err
	}
	log.Infof("loaded database %s (version %d)", name, version)
	return nil
}

// --------------------------------------------------------------------------
// Database
// --------------------------------------------------------------------------

// handleLocked returns the shared bbolt handle, opening the file if needed.
// The tracker must be locked.
func (d *database) handleLocked() (*bbolt.DB, error) {
	if d.handle != nil {
		return d.handle, nil
	}
	handle, err := bbolt.Open(d.path, fileMode, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.path, err)
	}
	err = handle.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		handle.Close()
		return nil, err
	}
	d.handle = handle
	return handle, nil
}

// closeIfIdleLocked closes the bbolt handle if no connection uses it.
// The tracker must be locked.
func (d *database) closeIfIdleLocked() {
	if d.handle == nil || d.tracker.OpenLocked() > 0 {
		return
	}
	if err := d.handle.Close(); err != nil {
		log.Warningf("closing %s failed: %v", d.path, err)
	}
	d.handle = nil
}

// open runs the versioning logic. The tracker must be locked.
func (d *database) open(ctx context.Context, version uint64, hooks db.OpenHooks) (db.Conn, error) {
	handle, err := d.handleLocked()
	if err != nil {
		return nil, err
	}
	current, err := readVersion(handle)
	if err != nil {
		return nil, err
	}

	if version == 0 {
		version = current
		if version == 0 {
			version = 1
		}
	}

	if version < current {
		return nil, fmt.Errorf("open %s (version %d, stored %d): %w", d.name, version, current, db.ErrVersion)
	}

	if version > current {
		if err := d.tracker.WaitIdleLocked(ctx, 0, hooks.Blocked); err != nil {
			return nil, fmt.Errorf("open %s: %w", d.name, err)
		}
		// the last connection may have closed the handle while we waited
		if handle, err = d.handleLocked(); err != nil {
			return nil, err
		}
		if err := upgrade(handle, d.name, current, version, hooks.Upgrade); err != nil {
			return nil, err
		}
	}

	d.tracker.AcquireLocked()
	return &connImpl{database: d, handle: handle, version: version}, nil
}

// upgrade runs the upgrade callback and stores the new version in one bbolt transaction.
func upgrade(handle *bbolt.DB, name string, oldVersion, newVersion uint64, fn func(db.Schema) error) error {
	err := handle.Update(func(tx *bbolt.Tx) error {
		if fn != nil {
			if err := runUpgrade(fn, &schemaImpl{tx: tx, oldVersion: oldVersion, newVersion: newVersion}); err != nil {
				return err
			}
		}
		v := make([]byte, 8)
		binary.BigEndian.PutUint64(v, newVersion)
		return tx.Bucket(metaBucket).Put(versionKey, v)
	})
	if err != nil {
		return fmt.Errorf("upgrade %s from version %d to %d: %w", name, oldVersion, newVersion, err)
	}
	log.Infof("upgraded database %s from version %d to %d", name, oldVersion, newVersion)
	return nil
}

// runUpgrade calls fn and converts a panic into an error.
func runUpgrade(fn func(db.Schema) error, s db.Schema) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("upgrade callback panicked: %v", r)
		}
	}()
	return fn(s)
}

func readVersion(handle *bbolt.DB) (version uint64, err error) {
	err = handle.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil {
			return errors.New("missing meta bucket")
		}
		if v := meta.Get(versionKey); len(v) == 8 {
			version = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return version, err
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type connImpl struct {
	*database
	handle  *bbolt.DB
	version uint64
	closed  atomic.Bool
}

func (c *connImpl) Name() string {
	return c.name
}

func (c *connImpl) Version() uint64 {
	return c.version
}

func (c *connImpl) ObjectStoreNames() []string {
	var names []string
	if c.closed.Load() {
		return names
	}
	_ = c.handle.View(func(tx *bbolt.Tx) error {
		names = storeNames(tx)
		return nil
	})
	return names
}

func (c *connImpl) View(fn func(tx db.Tx) error) error {
	if c.closed.Load() {
		return db.ErrClosed
	}
	return c.handle.View(func(tx *bbolt.Tx) error {
		return fn(&txImpl{tx: tx})
	})
}

func (c *connImpl) Update(fn func(tx db.Tx) error) error {
	if c.closed.Load() {
		return db.ErrClosed
	}
	return c.handle.Update(func(tx *bbolt.Tx) error {
		return fn(&txImpl{tx: tx})
	})
}

func (c *connImpl) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return db.ErrClosed
	}
	c.tracker.Lock()
	defer c.tracker.Unlock()
	c.tracker.ReleaseLocked()
	c.closeIfIdleLocked()
	return nil
}

// Info returns statistics about the database
func (c *connImpl) Info() db.DatabaseInfo {
	info := db.DatabaseInfo{
		Name:    c.name,
		Version: c.version,
		DbType:  db.ImplBolt,
		SupportedFeatures: []db.Feature{
			db.FeaturePersistent, db.FeatureVersioning, db.FeatureUniqueIndex, db.FeatureSave, db.FeatureLoad,
		},
	}
	if c.closed.Load() {
		return info
	}

	meta := &struct {
		Path              string                 `json:"path"`
		FreePages         int                    `json:"free_pages"`
		StoreDistribution util.DistributionStats `json:"store_distribution"`
		Info              string                 `json:"info"`
	}{
		Path:      c.path,
		FreePages: c.handle.Stats().FreePageN,
		Info:      "SizeBytes is the size of the database file.",
	}

	_ = c.handle.View(func(tx *bbolt.Tx) error {
		info.SizeBytes = int(tx.Size())
		sizes := make([]float64, 0)
		for _, name := range storeNames(tx) {
			s, err := openStore(tx, name)
			if err != nil {
				log.Warningf("reading object store %s of %s failed: %v", name, c.name, err)
				continue
			}
			n := s.records.Stats().KeyN
			sizes = append(sizes, float64(n))
			info.ObjectStores = append(info.ObjectStores, db.ObjectStoreInfo{
				Name:    name,
				KeyPath: s.meta.KeyPath,
				Count:   n,
				Indexes: s.meta.indexNames(),
			})
		}
		meta.StoreDistribution = util.NewDistributionStats(sizes)
		return nil
	})

	info.Metadata = meta
	return info
}
