package maple

import (
	"fmt"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/ValentinKolb/docKV/lib/db/engines/maple/internal"
)

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type txImpl struct {
	state    internal.State
	writable bool
}

func (tx *txImpl) ObjectStore(name string) (db.ObjectStore, error) {
	s, ok := tx.state[name]
	if !ok {
		return nil, fmt.Errorf("object store %s: %w", name, db.ErrNotFound)
	}
	return &objectStoreImpl{store: s, writable: tx.writable}, nil
}

func (tx *txImpl) Writable() bool {
	return tx.writable
}

// --------------------------------------------------------------------------
// Object Store
// --------------------------------------------------------------------------

type objectStoreImpl struct {
	store    *internal.Store
	writable bool
}

func (o *objectStoreImpl) Name() string    { return o.store.Name }
func (o *objectStoreImpl) KeyPath() string { return o.store.KeyPath }

func (o *objectStoreImpl) Get(key string) ([]byte, bool, error) {
	r, ok := o.store.Records.Get(internal.Record{Key: key})
	if !ok {
		return nil, false, nil
	}
	return copyValue(r.Value), true, nil
}

func (o *objectStoreImpl) Put(key string, value []byte) error {
	if !o.writable {
		return db.ErrReadOnly
	}
	return o.store.Put(key, value)
}

func (o *objectStoreImpl) Delete(key string) error {
	if !o.writable {
		return db.ErrReadOnly
	}
	o.store.Delete(key)
	return nil
}

func (o *objectStoreImpl) Clear() error {
	if !o.writable {
		return db.ErrReadOnly
	}
	o.store.Clear()
	return nil
}

func (o *objectStoreImpl) Count(r *db.KeyRange) (int, error) {
	if r == nil {
		return o.store.Records.Len(), nil
	}
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

	var fnErr error
	iter := func(rec internal.Record) bool {
		k := []byte(rec.Key)
		if !bounds.AboveLower(k) {
			return true
		}
		if !bounds.BelowUpper(k) {
			return false
		}
		var next bool
		next, fnErr = fn(rec.Key, copyValue(rec.Value))
		return next && fnErr == nil
	}

	if bounds.Lower != nil {
		o.store.Records.AscendGreaterOrEqual(internal.Record{Key: string(bounds.Lower)}, iter)
	} else {
		o.store.Records.Ascend(iter)
	}
	return fnErr
}

func (o *objectStoreImpl) Index(name string) (db.Index, error) {
	idx, ok := o.store.Indexes[name]
	if !ok {
		return nil, fmt.Errorf("index %s on %s: %w", name, o.store.Name, db.ErrNotFound)
	}
	return &indexImpl{store: o.store, index: idx}, nil
}

// --------------------------------------------------------------------------
// Index
// --------------------------------------------------------------------------

type indexImpl struct {
	store *internal.Store
	index *internal.Index
}

func (i *indexImpl) Name() string    { return i.index.Name }
func (i *indexImpl) KeyPath() string { return i.index.KeyPath }
func (i *indexImpl) Unique() bool    { return i.index.Unique }

func (i *indexImpl) Get(key any) ([]byte, bool, error) {
	r, err := db.Only(key).IndexBounds()
	if err != nil {
		return nil, false, err
	}
	entry, ok := i.index.FirstWithKey(r.Lower)
	if !ok {
		return nil, false, nil
	}
	_, pk, err := db.SplitIndexEntry(entry)
	if err != nil {
		return nil, false, err
	}
	rec, ok := i.store.Records.Get(internal.Record{Key: pk})
	if !ok {
		return nil, false, fmt.Errorf("index %s points to missing record %s", i.index.Name, pk)
	}
	return copyValue(rec.Value), true, nil
}

func (i *indexImpl) GetAll(r *db.KeyRange) ([][]byte, error) {
	bounds, err := r.IndexBounds()
	if err != nil {
		return nil, err
	}

	var (
		values  [][]byte
		iterErr error
	)
	iter := func(entry []byte) bool {
		indexKey, pk, err := db.SplitIndexEntry(entry)
		if err != nil {
			iterErr = err
			return false
		}
		if !bounds.AboveLower(indexKey) {
			return true
		}
		if !bounds.BelowUpper(indexKey) {
			return false
		}
		rec, ok := i.store.Records.Get(internal.Record{Key: pk})
		if !ok {
			iterErr = fmt.Errorf("index %s points to missing record %s", i.index.Name, pk)
			return false
		}
		values = append(values, copyValue(rec.Value))
		return true
	}

	if bounds.Lower != nil {
		i.index.Entries.AscendGreaterOrEqual(bounds.Lower, iter)
	} else {
		i.index.Entries.Ascend(iter)
	}
	return values, iterErr
}

func copyValue(v []byte) []byte {
	c := make([]byte, len(v))
	copy(c, v)
	return c
}
