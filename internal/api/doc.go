// Package api defines the wire types shared by the daemon's HTTP server and
// the CLI client, plus converters from internal models.
//
// # Key Types
//
// QueueState: the four queue collections with active transfers in admission
// order.
//
// DaemonStatus: runtime information including collection counts.
//
// TrackRequest/AddRequest: enqueue payloads. DecodeTrackRequests accepts a
// single object, a bare array, or an {"items": [...]} envelope.
//
// # Design Notes
//
// JSON keys are snake_case to match the persisted queue state and the
// upstream track fields, so items round-trip between the state file, the API,
// and search results without renaming.
package api
