// Package apiclient talks to a running tidewayd over its HTTP API.
//
// The CLI uses it for every command that needs live daemon state. Connection
// failures are reported with ErrUnavailable so callers can print a hint about
// starting the daemon instead of a raw dial error.
package apiclient
