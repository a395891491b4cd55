// Package queue is the single authority over download requests.
//
// A Manager owns four disjoint collections keyed by track id: queued (FIFO),
// active (bounded by the concurrency cap), completed, and failed. One mutex
// guards all four; it is never held across network or disk I/O. The dispatch
// step admits queued items into active whenever a slot is free and hands each
// to a Downloader running in its own goroutine.
//
// After every mutation the manager passes a versioned Snapshot to its
// Persister. Saves run outside the collection lock, are serialized, and skip
// versions older than the last one written. Save errors are logged; in-memory
// state stays authoritative.
//
// Progress pollers read percent and status from atomics on the active entry,
// so they take the mutex only long enough to find the entry.
//
// Expected conditions (duplicate add, unknown id) are reported as bool or count
// results. ErrNotActive is the only error the transition methods return.
package queue
