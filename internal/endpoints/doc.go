// Package endpoints owns the set of upstream API mirrors and the per-operation
// ordering used to try them.
//
// The registry side loads mirrors from the endpoints JSON file, falling back to
// a built-in list when the file is missing or unreadable. The Router side orders
// candidates for an operation: the mirror that most recently answered that
// operation goes first, the rest follow by ascending (priority, name). Learned
// preference lives in memory and is persisted by the daemon through the state
// file, never written back into the base priorities.
package endpoints
