// Package srcpm provides the cross-cutting types shared by every component
// of the from-source package manager: repository locations, a process-wide
// cleanup registry, an interruptible root context, and binary-package
// version parsing.
package srcpm

// Repo is a recipe/binary-package repository location: a file system path
// (e.g. /var/lib/srcpm/repo) or an HTTP URL (e.g. https://pkg.example.org/).
type Repo struct {
	// Path is the repository root.
	Path string

	// RecipePath is Path/recipes, where package recipe directories live.
	RecipePath string

	// BinpkgPath is Path/binpkg, where built binary packages are published.
	BinpkgPath string
}
