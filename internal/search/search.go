// Package search implements the read-side projections of spec.md §4.12:
// listing packages across repository roots, locating a single recipe,
// walking a package's recipe directory, and parsing a recipe's declared
// dependencies. Every call emits a history entry and runs pre/post hooks
// the way the rest of the repo's mutating operations do, even though
// search itself never mutates anything.
package search

import (
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/hooks"
	"github.com/srcforge/srcpm/internal/history"
	"github.com/srcforge/srcpm/internal/installdb"
	"github.com/srcforge/srcpm/internal/recipe"
	"github.com/srcforge/srcpm/internal/sandbox"
)

// Search projects package listings, lookups, and dependency queries
// across a set of repository roots plus the installed-files database.
type Search struct {
	RepoRoots []string
	DB        *installdb.DB
	Sandbox   *sandbox.Sandbox // optional; rewrites find_package hits when set
	Hooks     *hooks.Dispatcher
	History   *history.Log
}

func (s *Search) runHooks(stage, pkg string) error {
	if s.Hooks == nil {
		return nil
	}
	root := ""
	if s.Sandbox != nil {
		root = s.Sandbox.Root
	}
	return s.Hooks.RunHooks(stage, pkg, root)
}

func (s *Search) record(action, pkg, details, status string) {
	if s.History == nil {
		return
	}
	s.History.Record(action, pkg, details, status)
}

// ListAllPackages unions directory entries (recipe subdirectories) across
// every repository root, sorted and deduplicated.
func (s *Search) ListAllPackages() ([]string, error) {
	if err := s.runHooks("pre_search", ""); err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, root := range s.RepoRoots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				set[e.Name()] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	s.record("list_all_packages", "", "", "ok")
	if err := s.runHooks("post_search", ""); err != nil {
		return out, err
	}
	return out, nil
}

// FindPackage returns the first-hit absolute path to pkg's recipe
// directory across repo roots, in root order, rewritten through the
// sandbox when one is configured (spec.md §4.12).
func (s *Search) FindPackage(pkg string) (string, error) {
	if err := s.runHooks("pre_search", pkg); err != nil {
		return "", err
	}
	for _, root := range s.RepoRoots {
		candidate := filepath.Join(root, pkg)
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			if s.Sandbox != nil {
				candidate = filepath.Join(s.Sandbox.Root, pkg)
			}
			s.record("find_package", pkg, candidate, "ok")
			if err := s.runHooks("post_search", pkg); err != nil {
				return candidate, err
			}
			return candidate, nil
		}
	}
	s.record("find_package", pkg, "", "not_found")
	return "", xerrors.Errorf("find package %s: %w", pkg, errs.NotFound)
}

// ListFiles walks pkg's recipe directory recursively and returns every
// file path found, relative to the directory itself.
func (s *Search) ListFiles(pkg string) ([]string, error) {
	if err := s.runHooks("pre_search", pkg); err != nil {
		return nil, err
	}
	dir, err := s.FindPackage(pkg)
	if err != nil {
		return nil, err
	}
	var files []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		s.record("list_files", pkg, "", "error")
		return nil, err
	}
	sort.Strings(files)
	s.record("list_files", pkg, "", "ok")
	if err := s.runHooks("post_search", pkg); err != nil {
		return files, err
	}
	return files, nil
}

// ListDependencies parses pkg's recipe.yaml and returns its declared
// build, runtime, and optional dependencies combined.
func (s *Search) ListDependencies(pkg string) ([]string, error) {
	if err := s.runHooks("pre_search", pkg); err != nil {
		return nil, err
	}
	dir, err := s.FindPackage(pkg)
	if err != nil {
		return nil, err
	}
	r, err := recipe.Load(filepath.Join(dir, "recipe.yaml"))
	if err != nil {
		s.record("list_dependencies", pkg, "", "error")
		return nil, err
	}
	allOn := make(map[string]bool, len(r.UseFlags))
	for _, flag := range r.UseFlags {
		allOn[flag] = true
	}
	deps := r.AllDeps(allOn)
	s.record("list_dependencies", pkg, "", "ok")
	if err := s.runHooks("post_search", pkg); err != nil {
		return deps, err
	}
	return deps, nil
}
