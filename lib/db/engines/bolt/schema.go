package bolt

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ValentinKolb/docKV/lib/db"
	"go.etcd.io/bbolt"
)

// schemaImpl changes the bucket layout inside the version change transaction.
type schemaImpl struct {
	tx         *bbolt.Tx
	oldVersion uint64
	newVersion uint64
}

func (s *schemaImpl) OldVersion() uint64 { return s.oldVersion }
func (s *schemaImpl) NewVersion() uint64 { return s.newVersion }

func (s *schemaImpl) ObjectStoreNames() []string {
	return storeNames(s.tx)
}

func (s *schemaImpl) CreateObjectStore(name string, opts db.ObjectStoreOptions) error {
	if err := db.ValidateName("object store", name); err != nil {
		return err
	}
	bucket, err := s.tx.CreateBucket(storeBucketName(name))
	if errors.Is(err, bbolt.ErrBucketExists) {
		return fmt.Errorf("object store %s: %w", name, db.ErrExists)
	}
	if err != nil {
		return err
	}
	if _, err := bucket.CreateBucket(recordsBucket); err != nil {
		return err
	}
	if _, err := bucket.CreateBucket(indexesBucket); err != nil {
		return err
	}

	keyPath := opts.KeyPath
	if keyPath == "" {
		keyPath = db.DefaultKeyPath
	}
	o := &objectStoreImpl{tx: s.tx, name: name, bucket: bucket, meta: storeMeta{KeyPath: keyPath}}
	return o.saveMeta()
}

func (s *schemaImpl) DeleteObjectStore(name string) error {
	err := s.tx.DeleteBucket(storeBucketName(name))
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return fmt.Errorf("object store %s: %w", name, db.ErrNotFound)
	}
	return err
}

func (s *schemaImpl) CreateIndex(store, name, keyPath string, opts db.IndexOptions) error {
	if err := db.ValidateName("index", name); err != nil {
		return err
	}
	o, err := openStore(s.tx, store)
	if err != nil {
		return err
	}
	if _, ok := o.meta.index(name); ok {
		return fmt.Errorf("index %s on %s: %w", name, store, db.ErrExists)
	}
	if keyPath == "" {
		keyPath = name
	}

	bucket, err := o.indexes.CreateBucket([]byte(name))
	if err != nil {
		return err
	}

	// backfill from the existing records
	err = o.records.ForEach(func(k, v []byte) error {
		indexKey, ok := db.ExtractKey(v, keyPath)
		if !ok {
			return nil
		}
		if opts.Unique {
			if c, _ := bucket.Cursor().Seek(indexKey); c != nil && bytes.HasPrefix(c, indexKey) {
				return fmt.Errorf("%w: existing records share a key of index %s", db.ErrConstraint, name)
			}
		}
		return bucket.Put(db.IndexEntry(indexKey, string(k)), copyValue(k))
	})
	if err != nil {
		return err
	}

	o.meta.Indexes = append(o.meta.Indexes, indexMeta{Name: name, KeyPath: keyPath, Unique: opts.Unique})
	return o.saveMeta()
}

func (s *schemaImpl) HasIndex(store, name string) bool {
	o, err := openStore(s.tx, store)
	if err != nil {
		return false
	}
	_, ok := o.meta.index(name)
	return ok
}
