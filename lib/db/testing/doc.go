// Package testing provides standardised tests and benchmarks for
// engine implementations that satisfy the db.Engine interface.
//
// The package contains:
//   - testing: A conformance suite covering versioning, upgrades, blocking, transactions,
//     key ranges, secondary indexes, drop and (if supported) save/load
//   - benchmark: Performance tests for puts, point reads, range scans and mixed workloads
//
// Every test gets a fresh engine from the factory. Tests for optional features
// (see db.Feature) are skipped if the engine does not support them.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t testing.TB) db.Engine {
//		return NewMyEngine(t.TempDir())
//	}
//
//	// Running the standard test suite
//	dbtesting.RunEngineTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunEngineBenchmarks(b, "MyEngine", factory)
package testing
