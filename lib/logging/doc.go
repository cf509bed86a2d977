// Package logging configures the loggers of docKV.
//
// All packages obtain their logger through dragonboats logger package
// (logger.GetLogger("store"), logger.GetLogger("engine"), ...). InitLoggers
// installs a factory that writes lines of the form
//
//	2025/01/02 15:04:05 INFO  | store    | message
//
// and sets the level of every logger listed in Loggers.
package logging
