// Package notifications pushes download events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Per-event toggles in config.toml suppress
// completion or failure messages without disabling the test notification.
package notifications
