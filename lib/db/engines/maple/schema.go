package maple

import (
	"fmt"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/ValentinKolb/docKV/lib/db/engines/maple/internal"
)

// schemaImpl applies layout changes to the working state of an upgrade.
type schemaImpl struct {
	state      internal.State
	oldVersion uint64
	newVersion uint64
}

func (s *schemaImpl) OldVersion() uint64 { return s.oldVersion }
func (s *schemaImpl) NewVersion() uint64 { return s.newVersion }

func (s *schemaImpl) ObjectStoreNames() []string {
	return s.state.Names()
}

func (s *schemaImpl) CreateObjectStore(name string, opts db.ObjectStoreOptions) error {
	if err := db.ValidateName("object store", name); err != nil {
		return err
	}
	if _, ok := s.state[name]; ok {
		return fmt.Errorf("object store %s: %w", name, db.ErrExists)
	}
	keyPath := opts.KeyPath
	if keyPath == "" {
		keyPath = db.DefaultKeyPath
	}
	s.state[name] = internal.NewStore(name, keyPath)
	return nil
}

func (s *schemaImpl) DeleteObjectStore(name string) error {
	if _, ok := s.state[name]; !ok {
		return fmt.Errorf("object store %s: %w", name, db.ErrNotFound)
	}
	delete(s.state, name)
	return nil
}

func (s *schemaImpl) CreateIndex(store, name, keyPath string, opts db.IndexOptions) error {
	if err := db.ValidateName("index", name); err != nil {
		return err
	}
	st, ok := s.state[store]
	if !ok {
		return fmt.Errorf("object store %s: %w", store, db.ErrNotFound)
	}
	if _, ok := st.Indexes[name]; ok {
		return fmt.Errorf("index %s on %s: %w", name, store, db.ErrExists)
	}
	if keyPath == "" {
		keyPath = name
	}
	return st.AddIndex(internal.NewIndex(name, keyPath, opts.Unique))
}

func (s *schemaImpl) HasIndex(store, name string) bool {
	st, ok := s.state[store]
	if !ok {
		return false
	}
	_, ok = st.Indexes[name]
	return ok
}
