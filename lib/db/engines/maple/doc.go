// Package maple implements an in-memory engine for the db.Engine interface.
//
// Every database of the engine holds a set of object stores. An object store keeps
// its records in a btree ordered by primary key and one btree per secondary index.
//
// Key Components:
//
//   - mapleImpl: The engine. It keeps a registry of named databases (xsync.MapOf)
//     and implements Open, Drop and the optional db.Snapshotter interface.
//
//   - database: One named database. It stores the committed version and the
//     committed state (internal.State) and counts the open connections with a
//     util.ConnTracker so that version changes and drops can wait for them.
//
//   - internal.Store / internal.Index: The btrees of one object store. Index
//     entries are the encoded index key followed by the primary key (see
//     db.IndexEntry), so entries for equal index keys sort by primary key.
//
// Transactions:
//
//   - readonly transactions (View) read the committed state under a read lock.
//
//   - readwrite transactions (Update) are serialized per database. They work on a
//     copy-on-write clone of the committed state (btree.Clone) which replaces the
//     committed state only if the callback returns nil. A failed transaction
//     leaves no trace.
//
//   - version change transactions run the upgrade callback on a clone as well and
//     commit the new state and version together. The callback may panic, a panic
//     is reported as an error.
//
// Persistence Format: Save writes a compact binary snapshot of one database:
//  1. Magic number "MAPLEDB\x00" to identify the file format
//  2. Format version (currently 4)
//  3. Database version
//  4. Number of object stores
//  5. For each store: name, key path, index definitions (name, key path, unique),
//     number of records and each record as key and value
//
// Index entries are not written. Load rebuilds them from the records.
//
// Thread-safety: the engine and its connections are safe for concurrent use.
package maple
