package store

// BoundStore is a Store bound to one connection.
//
// Thread-safety: safe for concurrent use, like the Conn it wraps.
type BoundStore[T any] struct {
	store *Store[T]
	conn  *Conn
}

// BindStore returns a Store for the collection that always uses c.
func BindStore[T any](c *Conn, collection string, defaults ...Defaults) *BoundStore[T] {
	return &BoundStore[T]{
		store: DefineStore[T](collection, defaults...),
		conn:  c,
	}
}

func (b *BoundStore[T]) Name() string        { return b.store.Name() }
func (b *BoundStore[T]) Conn() *Conn         { return b.conn }
func (b *BoundStore[T]) LogicalDelete() bool { return b.store.LogicalDelete() }

func (b *BoundStore[T]) List(opts ListOptions) ([]T, error) { return b.store.List(b.conn, opts) }
func (b *BoundStore[T]) Select(where func(T) bool) ([]T, error) {
	return b.store.Select(b.conn, where)
}
func (b *BoundStore[T]) Get(key string) (T, error) { return b.store.Get(b.conn, key) }
func (b *BoundStore[T]) GetByIndex(index string, key any) (T, error) {
	return b.store.GetByIndex(b.conn, index, key)
}
func (b *BoundStore[T]) Count() (int, error)             { return b.store.Count(b.conn) }
func (b *BoundStore[T]) Upsert(record T) (string, error) { return b.store.Upsert(b.conn, record) }
func (b *BoundStore[T]) Delete(key string) (bool, error) { return b.store.Delete(b.conn, key) }
func (b *BoundStore[T]) Clear() (bool, error)            { return b.store.Clear(b.conn) }
