// Package bolt implements a persistent engine for the db.Engine interface on top of
// bbolt (go.etcd.io/bbolt).
//
// Every database is one file "<name>.db" in the data directory of the engine. The
// file holds a meta bucket with the database version and one bucket per object
// store:
//
//	store/<name>            store bucket
//	  meta                  key path and index definitions (JSON)
//	  records/              primary key -> document
//	  indexes/<index>/      encoded index key + primary key -> primary key
//
// Transactions map directly to bbolt transactions: View to a read transaction,
// Update and version changes to a read-write transaction. bbolt allows one writer
// at a time, so readwrite transactions of one database are serialized.
//
// bbolt locks its file per handle, so all connections of a database share one
// handle. It is opened with the first connection and closed with the last one.
//
// Save writes a consistent copy of the database file (bbolt.Tx.WriteTo); Load
// replaces the file with such a copy after checking it.
//
// Thread-safety: the engine and its connections are safe for concurrent use.
package bolt
