// Package history persists a per-track download ledger in SQLite.
//
// The queue state file only keeps what the queue currently holds; clearing the
// completed list forgets where a file went. The ledger keeps the last outcome
// for every track id (completed with its final path, or failed with the
// reason) so the API can answer "what happened to track N" and serve finished
// files long after the queue has been cleared.
package history
