package bolt

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ValentinKolb/docKV/lib/db"
	jsoniter "github.com/json-iterator/go"
	"go.etcd.io/bbolt"
)

// Bucket layout of one object store:
//
//	store/<name>            store bucket
//	  meta                  storeMeta as JSON
//	  records/              primary key -> document
//	  indexes/<index>/      db.IndexEntry -> primary key
var (
	storePrefix   = []byte("store/")
	storeMetaKey  = []byte("meta")
	recordsBucket = []byte("records")
	indexesBucket = []byte("indexes")
	json          = jsoniter.ConfigCompatibleWithStandardLibrary
)

type indexMeta struct {
	Name    string `json:"name"`
	KeyPath string `json:"key_path"`
	Unique  bool   `json:"unique"`
}

type storeMeta struct {
	KeyPath string      `json:"key_path"`
	Indexes []indexMeta `json:"indexes"`
}

func (m storeMeta) index(name string) (indexMeta, bool) {
	for _, idx := range m.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return indexMeta{}, false
}

func (m storeMeta) indexNames() []string {
	names := make([]string, 0, len(m.Indexes))
	for _, idx := range m.Indexes {
		names = append(names, idx.Name)
	}
	sort.Strings(names)
	return names
}

func storeBucketName(name string) []byte {
	return append(append([]byte{}, storePrefix...), name...)
}

// storeNames returns the sorted object store names.
func storeNames(tx *bbolt.Tx) []string {
	var names []string
	c := tx.Cursor()
	for k, _ := c.Seek(storePrefix); k != nil && bytes.HasPrefix(k, storePrefix); k, _ = c.Next() {
		names = append(names, string(k[len(storePrefix):]))
	}
	return names
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type txImpl struct {
	tx *bbolt.Tx
}

func (t *txImpl) ObjectStore(name string) (db.ObjectStore, error) {
	return openStore(t.tx, name)
}

func (t *txImpl) Writable() bool {
	return t.tx.Writable()
}

// --------------------------------------------------------------------------
// Object Store
// --------------------------------------------------------------------------

type objectStoreImpl struct {
	tx      *bbolt.Tx
	name    string
	bucket  *bbolt.Bucket
	records *bbolt.Bucket
	indexes *bbolt.Bucket
	meta    storeMeta
}

func openStore(tx *bbolt.Tx, name string) (*objectStoreImpl, error) {
	bucket := tx.Bucket(storeBucketName(name))
	if bucket == nil {
		return nil, fmt.Errorf("object store %s: %w", name, db.ErrNotFound)
	}
	s := &objectStoreImpl{
		tx:      tx,
		name:    name,
		bucket:  bucket,
		records: bucket.Bucket(recordsBucket),
		indexes: bucket.Bucket(indexesBucket),
	}
	if s.records == nil || s.indexes == nil {
		return nil, fmt.Errorf("object store %s is corrupt: missing buckets", name)
	}
	if err := json.Unmarshal(bucket.Get(storeMetaKey), &s.meta); err != nil {
		return nil, fmt.Errorf("object store %s is corrupt: %w", name, err)
	}
	return s, nil
}

func (o *objectStoreImpl) saveMeta() error {
	raw, err := json.Marshal(o.meta)
	if err != nil {
		return err
	}
	return o.bucket.Put(storeMetaKey, raw)
}

func (o *objectStoreImpl) Name() string    { return o.name }
func (o *objectStoreImpl) KeyPath() string { return o.meta.KeyPath }

func (o *objectStoreImpl) Get(key string) ([]byte, bool, error) {
	v := o.records.Get([]byte(key))
	if v == nil {
		return nil, false, nil
	}
	return copyValue(v), true, nil
}

func (o *objectStoreImpl) Put(key string, value []byte) error {
	if !o.tx.Writable() {
		return db.ErrReadOnly
	}

	// compute new index keys and check unique constraints before touching anything
	newKeys := make(map[string][]byte, len(o.meta.Indexes))
	for _, def := range o.meta.Indexes {
		indexKey, ok := db.ExtractKey(value, def.KeyPath)
		if !ok {
			continue
		}
		if def.Unique {
			if pk, found := o.firstWithKey(def.Name, indexKey); found && pk != key {
				return fmt.Errorf("%w: index %s already contains the key of record %s", db.ErrConstraint, def.Name, pk)
			}
		}
		newKeys[def.Name] = indexKey
	}

	if err := o.unindex(key); err != nil {
		return err
	}
	if err := o.records.Put([]byte(key), copyValue(value)); err != nil {
		return err
	}
	for name, indexKey := range newKeys {
		if err := o.indexes.Bucket([]byte(name)).Put(db.IndexEntry(indexKey, key), []byte(key)); err != nil {
			return err
		}
	}
	return nil
}

func (o *objectStoreImpl) Delete(key string) error {
	if !o.tx.Writable() {
		return db.ErrReadOnly
	}
	if err := o.unindex(key); err != nil {
		return err
	}
	return o.records.Delete([]byte(key))
}

func (o *objectStoreImpl) Clear() error {
	if !o.tx.Writable() {
		return db.ErrReadOnly
	}
	if err := o.bucket.DeleteBucket(recordsBucket); err != nil {
		return err
	}
	records, err := o.bucket.CreateBucket(recordsBucket)
	if err != nil {
		return err
	}
	o.records = records

	for _, def := range o.meta.Indexes {
		if err := o.indexes.DeleteBucket([]byte(def.Name)); err != nil {
			return err
		}
		if _, err := o.indexes.CreateBucket([]byte(def.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (o *objectStoreImpl) Count(r *db.KeyRange) (int, error) {
	n := 0
	err := o.Cursor(r, func(string, []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

func (o *objectStoreImpl) GetAll(r *db.KeyRange) ([][]byte, error) {
	var values [][]byte
	err := o.Cursor(r, func(_ string, value []byte) (bool, error) {
		values = append(values, value)
		return true, nil
	})
	return values, err
}

func (o *objectStoreImpl) Cursor(r *db.KeyRange, fn func(key string, value []byte) (bool, error)) error {
	bounds, err := r.PrimaryBounds()
	if err != nil {
		return err
	}

	c := o.records.Cursor()
	var k, v []byte
	if bounds.Lower != nil {
		k, v = c.Seek(bounds.Lower)
	} else {
		k, v = c.First()
	}
	for ; k != nil; k, v = c.Next() {
		if !bounds.AboveLower(k) {
			continue
		}
		if !bounds.BelowUpper(k) {
			break
		}
		next, err := fn(string(k), copyValue(v))
		if err != nil {
			return err
		}
		if !next {
			break
		}
	}
	return nil
}

func (o *objectStoreImpl) Index(name string) (db.Index, error) {
	def, ok := o.meta.index(name)
	if !ok {
		return nil, fmt.Errorf("index %s on %s: %w", name, o.name, db.ErrNotFound)
	}
	bucket := o.indexes.Bucket([]byte(name))
	if bucket == nil {
		return nil, fmt.Errorf("index %s on %s is corrupt: missing bucket", name, o.name)
	}
	return &indexImpl{store: o, def: def, bucket: bucket}, nil
}

// firstWithKey returns the primary key of the first entry of the index with the given index key.
func (o *objectStoreImpl) firstWithKey(index string, indexKey []byte) (string, bool) {
	k, v := o.indexes.Bucket([]byte(index)).Cursor().Seek(indexKey)
	if k == nil || !bytes.HasPrefix(k, indexKey) {
		return "", false
	}
	return string(v), true
}

// unindex removes the index entries of the record currently stored under key.
func (o *objectStoreImpl) unindex(key string) error {
	old := o.records.Get([]byte(key))
	if old == nil {
		return nil
	}
	old = copyValue(old)
	for _, def := range o.meta.Indexes {
		if indexKey, ok := db.ExtractKey(old, def.KeyPath); ok {
			if err := o.indexes.Bucket([]byte(def.Name)).Delete(db.IndexEntry(indexKey, key)); err != nil {
				return err
			}
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Index
// --------------------------------------------------------------------------

type indexImpl struct {
	store  *objectStoreImpl
	def    indexMeta
	bucket *bbolt.Bucket
}

func (i *indexImpl) Name() string    { return i.def.Name }
func (i *indexImpl) KeyPath() string { return i.def.KeyPath }
func (i *indexImpl) Unique() bool    { return i.def.Unique }

func (i *indexImpl) Get(key any) ([]byte, bool, error) {
	bounds, err := db.Only(key).IndexBounds()
	if err != nil {
		return nil, false, err
	}
	pk, ok := i.store.firstWithKey(i.def.Name, bounds.Lower)
	if !ok {
		return nil, false, nil
	}
	return i.record(pk)
}

func (i *indexImpl) GetAll(r *db.KeyRange) ([][]byte, error) {
	bounds, err := r.IndexBounds()
	if err != nil {
		return nil, err
	}

	var values [][]byte
	c := i.bucket.Cursor()
	var k, v []byte
	if bounds.Lower != nil {
		k, v = c.Seek(bounds.Lower)
	} else {
		k, v = c.First()
	}
	for ; k != nil; k, v = c.Next() {
		indexKey, _, err := db.SplitIndexEntry(k)
		if err != nil {
			return nil, err
		}
		if !bounds.AboveLower(indexKey) {
			continue
		}
		if !bounds.BelowUpper(indexKey) {
			break
		}
		value, _, err := i.record(string(v))
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

func (i *indexImpl) record(pk string) ([]byte, bool, error) {
	value, ok, err := i.store.Get(pk)
	if err == nil && !ok {
		err = fmt.Errorf("index %s points to missing record %s", i.def.Name, pk)
	}
	return value, ok, err
}

func copyValue(v []byte) []byte {
	c := make([]byte, len(v))
	copy(c, v)
	return c
}
