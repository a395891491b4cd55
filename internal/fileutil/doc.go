// Package fileutil holds small filesystem helpers shared by the state store,
// endpoint registry, and download worker: crash-safe file replacement,
// download filename sanitization, and path containment checks.
package fileutil
