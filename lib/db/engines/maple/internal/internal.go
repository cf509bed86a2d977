package internal

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/google/btree"
)

// Degree of all btrees
const Degree = 32

// --------------------------------------------------------------------------
// Record Type (primary key and JSON document)
// --------------------------------------------------------------------------

type Record struct {
	Key   string
	Value []byte
}

func lessRecord(a, b Record) bool { return a.Key < b.Key }

func lessEntry(a, b []byte) bool { return bytes.Compare(a, b) < 0 }

// --------------------------------------------------------------------------
// Index Type (sorted set of index entries, see db.IndexEntry)
// --------------------------------------------------------------------------

type Index struct {
	Name    string
	KeyPath string
	Unique  bool
	Entries *btree.BTreeG[[]byte]
}

func NewIndex(name, keyPath string, unique bool) *Index {
	return &Index{
		Name:    name,
		KeyPath: keyPath,
		Unique:  unique,
		Entries: btree.NewG[[]byte](Degree, lessEntry),
	}
}

// FirstWithKey returns the first entry whose index key equals indexKey.
func (i *Index) FirstWithKey(indexKey []byte) (entry []byte, ok bool) {
	i.Entries.AscendGreaterOrEqual(indexKey, func(e []byte) bool {
		if bytes.HasPrefix(e, indexKey) {
			entry, ok = e, true
		}
		return false
	})
	return entry, ok
}

// --------------------------------------------------------------------------
// Store Type (object store with its indexes)
// --------------------------------------------------------------------------

type Store struct {
	Name    string
	KeyPath string
	Records *btree.BTreeG[Record]
	Indexes map[string]*Index
}

func NewStore(name, keyPath string) *Store {
	return &Store{
		Name:    name,
		KeyPath: keyPath,
		Records: btree.NewG[Record](Degree, lessRecord),
		Indexes: map[string]*Index{},
	}
}

// Clone returns a copy-on-write copy of the store. Writes to the copy are not
// visible in the original.
func (s *Store) Clone() *Store {
	clone := &Store{
		Name:    s.Name,
		KeyPath: s.KeyPath,
		Records: s.Records.Clone(),
		Indexes: make(map[string]*Index, len(s.Indexes)),
	}
	for name, idx := range s.Indexes {
		clone.Indexes[name] = &Index{
			Name:    idx.Name,
			KeyPath: idx.KeyPath,
			Unique:  idx.Unique,
			Entries: idx.Entries.Clone(),
		}
	}
	return clone
}

// IndexNames returns the sorted index names.
func (s *Store) IndexNames() []string {
	names := make([]string, 0, len(s.Indexes))
	for name := range s.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Put writes a record and maintains all indexes. Unique violations leave the store unchanged.
func (s *Store) Put(key string, value []byte) error {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	// compute new index keys and check unique constraints before touching anything
	newKeys := make(map[string][]byte, len(s.Indexes))
	for name, idx := range s.Indexes {
		indexKey, ok := db.ExtractKey(valueCopy, idx.KeyPath)
		if !ok {
			continue
		}
		if idx.Unique {
			if entry, found := idx.FirstWithKey(indexKey); found {
				if _, pk, _ := db.SplitIndexEntry(entry); pk != key {
					return fmt.Errorf("%w: index %s already contains the key of record %s", db.ErrConstraint, name, pk)
				}
			}
		}
		newKeys[name] = indexKey
	}

	if old, ok := s.Records.Get(Record{Key: key}); ok {
		s.unindex(old)
	}
	s.Records.ReplaceOrInsert(Record{Key: key, Value: valueCopy})
	for name, indexKey := range newKeys {
		s.Indexes[name].Entries.ReplaceOrInsert(db.IndexEntry(indexKey, key))
	}
	return nil
}

// Delete removes a record and its index entries.
func (s *Store) Delete(key string) {
	if old, ok := s.Records.Delete(Record{Key: key}); ok {
		s.unindex(old)
	}
}

// Clear removes all records and index entries.
func (s *Store) Clear() {
	s.Records.Clear(false)
	for _, idx := range s.Indexes {
		idx.Entries.Clear(false)
	}
}

// AddIndex creates an index and fills it from the existing records.
func (s *Store) AddIndex(idx *Index) error {
	var err error
	s.Records.Ascend(func(r Record) bool {
		indexKey, ok := db.ExtractKey(r.Value, idx.KeyPath)
		if !ok {
			return true
		}
		if idx.Unique {
			if _, found := idx.FirstWithKey(indexKey); found {
				err = fmt.Errorf("%w: existing records share a key of index %s", db.ErrConstraint, idx.Name)
				return false
			}
		}
		idx.Entries.ReplaceOrInsert(db.IndexEntry(indexKey, r.Key))
		return true
	})
	if err != nil {
		return err
	}
	s.Indexes[idx.Name] = idx
	return nil
}

func (s *Store) unindex(old Record) {
	for _, idx := range s.Indexes {
		if indexKey, ok := db.ExtractKey(old.Value, idx.KeyPath); ok {
			idx.Entries.Delete(db.IndexEntry(indexKey, old.Key))
		}
	}
}

// --------------------------------------------------------------------------
// State Type (all object stores of a database at one point in time)
// --------------------------------------------------------------------------

type State map[string]*Store

// Clone returns a copy-on-write copy of all stores.
func (st State) Clone() State {
	clone := make(State, len(st))
	for name, s := range st {
		clone[name] = s.Clone()
	}
	return clone
}

// Names returns the sorted store names.
func (st State) Names() []string {
	names := make([]string, 0, len(st))
	for name := range st {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
