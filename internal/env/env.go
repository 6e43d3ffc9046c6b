// Package env resolves the on-disk locations the rest of the package manager
// reads and writes, each overridable by an SRCPM_* environment variable
// (spec.md §6) read once at process start.
package env

import "os"

var (
	// CacheRoot is the default content-addressed source-artifact cache root.
	CacheRoot = getenv("SRCPM_CACHE_ROOT", "/var/cache/srcpm/distfiles")

	// BinpkgRoot is where built binary packages and their .pkginfo sidecars
	// are published.
	BinpkgRoot = getenv("SRCPM_BINPKG_ROOT", "/var/cache/srcpm/binpkg")

	// SandboxRoot is the parent directory under which disjoint per-package
	// staging sandboxes are created.
	SandboxRoot = getenv("SRCPM_SANDBOX_ROOT", "/var/lib/srcpm/sandbox")

	// RecipeRoot is where package recipe directories are scaffolded and read
	// from by default.
	RecipeRoot = getenv("SRCPM_RECIPE_ROOT", "/var/lib/srcpm/recipes")

	// HistoryFile is the append-only audit journal (spec.md §6).
	HistoryFile = getenv("SRCPM_HISTORY_FILE", "/var/log/source_history.json")

	// UseConfigFile is the persisted USE-flag store (spec.md §6).
	UseConfigFile = getenv("SRCPM_USE_CONFIG", "/etc/srcpm/use.conf")

	// InstallDBFile is the JSON-backed installed-package database.
	InstallDBFile = getenv("SRCPM_INSTALLDB", "/var/lib/srcpm/installed.json")

	// QueryCacheDir holds the USE-flag query service's per-key sidecar cache.
	QueryCacheDir = getenv("SRCPM_QUERY_CACHE", "/var/cache/srcpm/query")

	// LogFile is the size-rotated log sink every invocation appends to,
	// alongside the stderr output logx.Std always writes.
	LogFile = getenv("SRCPM_LOG_FILE", "/var/log/srcpm/srcpm.log")
)

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
