// Package preflight provides readiness checks for the filesystem paths and
// remote services Tideway depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to start when the
//     download or state directory is unusable.
//   - The CLI "tideway status" and "tideway endpoints --probe" commands use
//     individual checks to display health.
package preflight
