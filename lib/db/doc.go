// Package db provides a standardized interface for document storage engines.
// It models the object store contract of IndexedDB: named, versioned databases
// holding object stores of JSON documents keyed by a string primary key, with
// secondary indexes and transactions.
//
// The package focuses on:
//   - A unified engine interface (Engine, Conn, Tx, ObjectStore, Index, Schema)
//   - Version management with upgrade callbacks that run in one transaction
//   - Feature discovery through capability flags
//   - Key ranges over primary keys and index keys
//
// Key Components:
//
//   - Engine Interface: Opens and drops databases. Opening a database with a
//     higher version (or for the first time) runs OpenHooks.Upgrade; the schema
//     changes and the new version commit together or not at all. Version changes
//     and drops wait until the other connections of the database are closed and
//     report this once through the Blocked callback.
//
//   - Transactions: Conn.View runs a readonly transaction, Conn.Update a readwrite
//     transaction that commits when the callback returns nil.
//
//   - Key Ranges: KeyRange describes an interval (Only, Bound, LowerBound,
//     UpperBound). Primary key ranges compare raw strings, index ranges compare
//     keys encoded with package keys, so numbers sort before strings and numbers
//     sort numerically.
//
//   - Documents: ExtractKey reads index keys from JSON documents. Documents whose
//     attribute is missing or not a string or number are not indexed.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. Engines that support
//     FeatureSave and FeatureLoad implement Snapshotter.
//
//   - Implementation Identifiers: "maple" (in-memory, see engines/maple) and
//     "bolt" (persistent, see engines/bolt).
//
//   - Database Information: The DatabaseInfo structure reports version, object
//     stores with their record counts, a size estimate and implementation-specific
//     metadata.
//
// Thread-safety: every implementation must be safe for concurrent use.
package db
