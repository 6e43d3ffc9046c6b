// Package errs defines the error taxonomy of spec.md §7 as sentinel values.
// Every component wraps these with golang.org/x/xerrors instead of minting
// ad-hoc error strings, so callers can classify a failure with errors.Is
// regardless of which component produced it.
package errs

import "golang.org/x/xerrors"

// Sentinel errors identifying the six categories of spec.md §7. Wrap them
// with xerrors.Errorf("...: %w", Sentinel) to attach context.
var (
	// NotFound: missing recipe, tarball, sidecar, cache entry.
	NotFound = xerrors.New("not found")

	// Integrity: SHA-256 mismatch, malformed archive, unreadable cache entry.
	Integrity = xerrors.New("integrity violation")

	// Invalid: unknown build system, unknown hash algorithm, malformed recipe.
	Invalid = xerrors.New("invalid argument")

	// Conflict: dependency cycle, unmet reverse dependencies, already installed.
	Conflict = xerrors.New("conflict")

	// External: subprocess non-zero exit or timeout, network HEAD failure.
	External = xerrors.New("external failure")

	// Permission: chown/permission denied; logged and non-fatal where noted.
	Permission = xerrors.New("permission denied")
)

// Is reports whether err ultimately wraps sentinel. It's a thin alias over
// xerrors.Is kept here so call sites only need to import this package.
func Is(err, sentinel error) bool {
	return xerrors.Is(err, sentinel)
}
