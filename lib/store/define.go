package store

// --------------------------------------------------------------------------
// Store Factory
// --------------------------------------------------------------------------

// Store groups the record primitives of one collection with fixed defaults.
// The connection is passed to every call, see BindStore for a variant that
// keeps it.
//
// Thread-safety: a Store holds no mutable state and is safe for concurrent use.
type Store[T any] struct {
	collection string
	defaults   Defaults
}

// DefineStore returns a Store for the collection. Only the first Defaults value
// is used; unset fields fall back to DefaultGenID, DefaultNow and logical deletes.
func DefineStore[T any](collection string, defaults ...Defaults) *Store[T] {
	var d Defaults
	if len(defaults) > 0 {
		d = defaults[0]
	}
	return &Store[T]{
		collection: collection,
		defaults:   d.withFallbacks(),
	}
}

// Name returns the collection name.
func (s *Store[T]) Name() string { return s.collection }

// LogicalDelete reports whether Delete soft-deletes records.
func (s *Store[T]) LogicalDelete() bool { return *s.defaults.LogicalDelete }

func (s *Store[T]) List(c *Conn, opts ListOptions) ([]T, error) {
	return List[T](c, s.collection, opts)
}

// Select returns the records matching where. Soft-deleted records are skipped
// when the store deletes logically and included otherwise.
func (s *Store[T]) Select(c *Conn, where func(T) bool) ([]T, error) {
	return Select(c, s.collection, where, SelectOptions{IncludeDeleted: !s.LogicalDelete()})
}

func (s *Store[T]) Get(c *Conn, key string) (T, error) {
	return Get[T](c, s.collection, key)
}

func (s *Store[T]) GetByIndex(c *Conn, index string, key any) (T, error) {
	return GetByIndex[T](c, s.collection, index, key)
}

func (s *Store[T]) Count(c *Conn) (int, error) {
	return Count(c, s.collection)
}

func (s *Store[T]) Upsert(c *Conn, record T) (string, error) {
	return Upsert(c, s.collection, record, UpsertOptions{
		GenID: s.defaults.GenID,
		Now:   s.defaults.Now,
	})
}

// Delete soft-deletes or removes the record depending on the store defaults.
func (s *Store[T]) Delete(c *Conn, key string) (bool, error) {
	return Delete(c, s.collection, key, DeleteOptions{
		Logical: s.LogicalDelete(),
		Now:     s.defaults.Now,
		GenID:   s.defaults.GenID,
	})
}

func (s *Store[T]) Clear(c *Conn) (bool, error) {
	return Clear(c, s.collection)
}
