package maple

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/ValentinKolb/docKV/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/docKV/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Core Maple engine structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory engine. Each database keeps its object stores
// in btrees; readwrite transactions work on copy-on-write clones that replace the
// committed state on success.
type mapleImpl struct {
	databases *xsync.MapOf[string, *database]
}

// database is one named database of the engine
type database struct {
	name    string
	tracker *util.ConnTracker

	mu      sync.RWMutex // guards version and state
	version uint64
	state   internal.State
}

// NewMapleEngine creates a new in-memory engine. All databases live as long as the
// engine (or until dropped) and are lost when the process exits unless saved.
func NewMapleEngine() db.Engine {
	return &mapleImpl{
		databases: xsync.NewMapOf[string, *database](),
	}
}

// lookup returns the database with the given name, creating an empty one if needed.
func (maple *mapleImpl) lookup(name string) *database {
	d, _ := maple.databases.LoadOrCompute(name, func() *database {
		return &database{
			name:    name,
			tracker: util.NewConnTracker(),
			state:   internal.State{},
		}
	})
	return d
}

// --------------------------------------------------------------------------
// Engine Interface Methods (docu see db/db.go)
// --------------------------------------------------------------------------

func (maple *mapleImpl) Open(ctx context.Context, name string, version uint64, hooks db.OpenHooks) (db.Conn, error) {
	for {
		d := maple.lookup(name)

		d.tracker.Lock()
		if d.tracker.DroppedLocked() {
			// a concurrent drop removed this instance, retry with a fresh one
			d.tracker.Unlock()
			continue
		}

		conn, err := d.open(ctx, version, hooks)
		d.tracker.Unlock()
		return conn, err
	}
}

func (maple *mapleImpl) Drop(ctx context.Context, name string, onBlocked func()) error {
	d, ok := maple.databases.Load(name)
	if !ok {
		return nil
	}

	d.tracker.Lock()
	defer d.tracker.Unlock()

	if err := d.tracker.WaitIdleLocked(ctx, 0, onBlocked); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}

	d.tracker.MarkDroppedLocked()
	maple.databases.Delete(name)
	log.Debugf("dropped database %s", name)
	return nil
}

func (maple *mapleImpl) Implementation() db.Implementation {
	return db.ImplMaple
}

// SupportsFeature checks if this implementation supports a specific engine feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureVersioning |
		db.FeatureUniqueIndex |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// open runs the versioning logic. The tracker must be locked.
func (d *database) open(ctx context.Context, version uint64, hooks db.OpenHooks) (db.Conn, error) {
	d.mu.RLock()
	current := d.version
	d.mu.RUnlock()

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
		if err := d.upgrade(current, version, hooks.Upgrade); err != nil {
			return nil, err
		}
	}

	d.tracker.AcquireLocked()
	return &connImpl{database: d, version: version}, nil
}

// upgrade applies the upgrade callback on a clone of the state and commits it together with the new version.
func (d *database) upgrade(oldVersion, newVersion uint64, fn func(db.Schema) error) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	working := d.state.Clone()
	if fn != nil {
		s := &schemaImpl{state: working, oldVersion: oldVersion, newVersion: newVersion}
		if err = runUpgrade(fn, s); err != nil {
			return fmt.Errorf("upgrade %s from version %d to %d: %w", d.name, oldVersion, newVersion, err)
		}
	}

	d.state = working
	d.version = newVersion
	log.Infof("upgraded database %s from version %d to %d", d.name, oldVersion, newVersion)
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

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

type connImpl struct {
	*database
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
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Names()
}

func (c *connImpl) View(fn func(tx db.Tx) error) error {
	if c.closed.Load() {
		return db.ErrClosed
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return fn(&txImpl{state: c.state, writable: false})
}

func (c *connImpl) Update(fn func(tx db.Tx) error) error {
	if c.closed.Load() {
		return db.ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	working := c.state.Clone()
	if err := fn(&txImpl{state: working, writable: true}); err != nil {
		return err
	}
	c.state = working
	return nil
}

func (c *connImpl) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return db.ErrClosed
	}
	c.tracker.Release()
	return nil
}

// Info returns statistics about the database
func (c *connImpl) Info() db.DatabaseInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	histogram := util.NewSizeHistogram()
	stores := make([]db.ObjectStoreInfo, 0, len(c.state))
	storeSizes := make([]float64, 0, len(c.state))
	total := 0

	for _, name := range c.state.Names() {
		s := c.state[name]
		s.Records.Ascend(func(r internal.Record) bool {
			histogram.AddSample(len(r.Key) + len(r.Value))
			return true
		})
		n := s.Records.Len()
		total += n
		storeSizes = append(storeSizes, float64(n))
		stores = append(stores, db.ObjectStoreInfo{
			Name:    s.Name,
			KeyPath: s.KeyPath,
			Count:   n,
			Indexes: s.IndexNames(),
		})
	}

	meta := &struct {
		StoreDistribution util.DistributionStats `json:"store_distribution"`
		Info              string                 `json:"info"`
	}{
		StoreDistribution: util.NewDistributionStats(storeSizes),
		Info:              "SizeBytes is an estimate based on a size histogram of all records.",
	}

	return db.DatabaseInfo{
		Name:      c.name,
		Version:   c.version,
		SizeBytes: histogram.EstimateTotal(total, 16),
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureVersioning, db.FeatureUniqueIndex, db.FeatureSave, db.FeatureLoad,
		},
		ObjectStores: stores,
		Metadata:     meta,
	}
}
