// Package cmd implements the command-line interface for the docKV document
// store. Every command opens the configured database, runs one operation and
// closes it again.
//
// The package is organized into several subpackages:
//
//   - schema: Commands for collections (store create, store delete, store list)
//   - rec: Commands for record operations (get, put, del, list, select, count, clear, perf)
//   - database: Commands for the database itself (db info, db drop, db metrics)
//   - demo: A walkthrough of the record life cycle on an in-memory database
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dockv -help for a list of all commands.
package cmd
