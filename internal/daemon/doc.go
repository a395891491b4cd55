// Package daemon coordinates the long-running Tideway process.
//
// It wires the queue manager, the mirror client, the download ledger, and the
// state file into a single lifecycle with flock-based locking to prevent
// multiple instances. Start restores the persisted queue and learned endpoint
// preferences before dispatch begins; Stop requeues interrupted transfers and
// writes the final snapshot.
//
// The HTTP API in api_server.go is a thin adapter over the queue and client
// operations. Keep download logic in internal/download and queue semantics in
// internal/queue; the daemon focuses on startup, shutdown, and routing.
package daemon
