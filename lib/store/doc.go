// Package store provides a typed document store on top of a db.Engine. Records
// are JSON objects grouped into named collections inside a versioned database.
//
// Key Components:
//
//   - Connection Manager: Connect opens (and creates or upgrades) a database,
//     CreateStore declares a collection with its indexes inside the upgrade
//     callback, Drop deletes a database and Close releases a connection.
//
//   - Record Access Primitives: Get, GetByIndex, Count, List, Select, Upsert,
//     Delete and Clear. Each call runs in its own transaction. Upsert merges
//     partial records into the stored one and maintains the reserved fields of
//     Record (id, inserted, updated, deleted, is_delete). Delete either removes a
//     record or soft-deletes it.
//
//   - Store Factories: DefineStore fixes the collection and the defaults (id
//     generator, clock, logical deletes), BindStore additionally fixes the
//     connection.
//
//   - Error System: every failure is an *Error carrying a RetCode (ConnectionError,
//     ReadError, WriteError, ...). Engine errors are wrapped, so errors.Is works
//     with the sentinels of the db package.
//
// Example:
//
//	type User struct {
//		store.Record
//		Name string `json:"name,omitempty"`
//	}
//
//	conn, err := store.Connect(ctx, engine, "app", 1, func(s db.Schema) error {
//		return store.CreateStore(s, "users", store.IndexDef{Name: "name"})
//	})
//	users := store.BindStore[User](conn, "users")
//	id, err := users.Upsert(User{Name: "Ada"})
//	u, err := users.Get(id)
//
// Operation counts, errors and durations are recorded with VictoriaMetrics, see
// WritePrometheus.
package store
