// Package util provides utility components for
// engine implementations that satisfy the db.Engine interface.
//
// The package contains:
//   - statistics: Utility tools for analyzing database characteristics and a SizeHistogram for tracking data size distribution
//   - tracker: ConnTracker, which counts the open connections of a database and lets
//     version changes and drops wait until they are closed
//
// This package is particularly useful for:
//   - Engine developers implementing the db.Engine interface
//   - Monitoring systems that need to track database size and distribution metrics
package util
