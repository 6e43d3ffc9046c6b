// Package installdb implements the Installed Database external interface
// named in spec.md §3/§4.2/§4.8/§4.12: a record, per package, of its
// recipe and the files it placed on the system. It isn't itemized as a
// numbered component in spec.md §2's budget, but every consumer (resolver,
// remover, search/info) depends on it, so it gets its own package rather
// than being folded into one of theirs. Persisted as JSON on disk, matching
// the rest of the repo's on-disk-JSON style (history, USE-flag config,
// binpkg sidecars) and written atomically via renameio like they are.
package installdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio"
	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/recipe"
)

// Record is one installed package's entry.
type Record struct {
	Recipe recipe.Recipe `json:"recipe"`
	Files  []string      `json:"files"`
}

// DB is the JSON-file-backed Installed Database.
type DB struct {
	path string

	mu       sync.RWMutex
	Packages map[string]Record `json:"packages"`
}

// Open loads db at path, or returns an empty DB if it doesn't exist yet.
func Open(path string) (*DB, error) {
	db := &DB{path: path, Packages: make(map[string]Record)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return db, nil
	}
	if err := json.Unmarshal(data, db); err != nil {
		return nil, xerrors.Errorf("parsing installed db %s: %w: %v", path, errs.Invalid, err)
	}
	if db.Packages == nil {
		db.Packages = make(map[string]Record)
	}
	return db, nil
}

func (db *DB) save() error {
	if err := os.MkdirAll(filepath.Dir(db.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(db.path, data, 0644)
}

// GetRecipe returns the recipe an installed package was built from.
func (db *DB) GetRecipe(name string) (*recipe.Recipe, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rec, ok := db.Packages[name]
	if !ok {
		return nil, xerrors.Errorf("package %s: %w", name, errs.NotFound)
	}
	r := rec.Recipe
	return &r, nil
}

// IsInstalled reports whether name is currently installed.
func (db *DB) IsInstalled(name string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.Packages[name]
	return ok
}

// GetInstalledPackages returns all installed package names, sorted.
func (db *DB) GetInstalledPackages() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]string, 0, len(db.Packages))
	for n := range db.Packages {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// GetFiles returns the relative file paths a package installed.
func (db *DB) GetFiles(name string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rec, ok := db.Packages[name]
	if !ok {
		return nil, xerrors.Errorf("package %s: %w", name, errs.NotFound)
	}
	return rec.Files, nil
}

// Put registers (or updates) an installed package's recipe and file list,
// persisting the change.
func (db *DB) Put(name string, r recipe.Recipe, files []string) error {
	db.mu.Lock()
	db.Packages[name] = Record{Recipe: r, Files: files}
	db.mu.Unlock()
	return db.save()
}

// RemovePackage deletes name from the database, persisting the change.
func (db *DB) RemovePackage(name string) error {
	db.mu.Lock()
	delete(db.Packages, name)
	db.mu.Unlock()
	return db.save()
}

// HasDependents reports whether any other installed package declares name
// as a build, runtime, or optional dependency.
func (db *DB) HasDependents(name string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for pkg, rec := range db.Packages {
		if pkg == name {
			continue
		}
		for _, deps := range []map[string]string{rec.Recipe.BuildDeps, rec.Recipe.RuntimeDeps, rec.Recipe.OptionalDeps} {
			if _, ok := deps[name]; ok {
				return true
			}
		}
	}
	return false
}

// Dependents returns the names of installed packages that depend on name.
func (db *DB) Dependents(name string) []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []string
	for pkg, rec := range db.Packages {
		if pkg == name {
			continue
		}
		for _, deps := range []map[string]string{rec.Recipe.BuildDeps, rec.Recipe.RuntimeDeps, rec.Recipe.OptionalDeps} {
			if _, ok := deps[name]; ok {
				out = append(out, pkg)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
