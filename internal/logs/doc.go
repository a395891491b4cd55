// Package logs reads the daemon log file for `tideway logs`.
//
// Tail returns the last N lines or the lines written after a byte offset, and
// in follow mode waits for new output. A Filter narrows lines to a track,
// component, or minimum level; it understands both the console and JSON
// formats produced by internal/logging.
package logs
