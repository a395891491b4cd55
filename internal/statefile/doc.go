// Package statefile persists the download queue and learned endpoint
// preferences to a single JSON document.
//
// Store implements queue.Persister: every queue mutation rewrites the file via
// a temp file and rename, so a crash leaves either the previous or the new
// snapshot on disk. Active transfers are written at the head of the queue
// list; on the next start they are downloaded again from the beginning.
//
// Load never fails. A missing file is a first run and a corrupt one is logged,
// both yielding an empty State.
package statefile
