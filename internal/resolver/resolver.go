// Package resolver implements spec.md §4.2: turning a recipe plus an
// active USE-flag set into an ordered build/install list by walking
// recipes from a RecipeProvider and building an internal/graph dependency
// graph.
package resolver

import (
	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/graph"
	"github.com/srcforge/srcpm/internal/recipe"
)

// RecipeProvider is the subset of the Installed Database (spec.md §3) the
// resolver consumes: recipe lookup and installed-state queries. Satisfied
// directly by *installdb.DB.
type RecipeProvider interface {
	GetRecipe(name string) (*recipe.Recipe, error)
	IsInstalled(name string) bool
	GetInstalledPackages() []string
}

// Resolver walks recipe dependency graphs against a RecipeProvider.
type Resolver struct {
	DB RecipeProvider
}

// New constructs a Resolver backed by db.
func New(db RecipeProvider) *Resolver {
	return &Resolver{DB: db}
}

// Resolve builds the dependency graph for r under the given active USE
// flags and returns packages in dependency-first build/install order,
// including r itself last. Cycle detection fails the operation
// (spec.md §4.2).
func (res *Resolver) Resolve(r *recipe.Recipe, useFlags map[string]bool) ([]string, error) {
	g := graph.New()
	visited := make(map[string]bool)

	var walk func(name string, rec *recipe.Recipe) error
	walk = func(name string, rec *recipe.Recipe) error {
		if visited[name] {
			return nil
		}
		visited[name] = true
		g.AddNode(name)
		for _, dep := range rec.AllDeps(useFlags) {
			g.AddEdge(name, dep, 1)
			depRecipe, err := res.DB.GetRecipe(dep)
			if err != nil {
				if errs.Is(err, errs.NotFound) {
					// Dependency recipe unavailable: keep it as a leaf node
					// so resolution can still report it as missing, rather
					// than failing the whole resolve.
					continue
				}
				return err
			}
			if err := walk(dep, depRecipe); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(r.Name, r); err != nil {
		return nil, err
	}
	if g.DetectCycles() {
		return nil, xerrors.Errorf("resolve %s: %w: dependency cycle", r.Name, errs.Conflict)
	}
	order, err := g.TopoSort()
	if err != nil {
		return nil, xerrors.Errorf("resolve %s: %w", r.Name, err)
	}
	return order, nil
}

// FindMissing returns Resolve's order filtered to packages not already
// installed.
func (res *Resolver) FindMissing(r *recipe.Recipe, useFlags map[string]bool) ([]string, error) {
	order, err := res.Resolve(r, useFlags)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, pkg := range order {
		if !res.DB.IsInstalled(pkg) {
			missing = append(missing, pkg)
		}
	}
	return missing, nil
}

// FindReverseDependencies scans installed packages for those whose parsed
// dependencies contain pkg.
func (res *Resolver) FindReverseDependencies(pkg string) ([]string, error) {
	var out []string
	for _, name := range res.DB.GetInstalledPackages() {
		rec, err := res.DB.GetRecipe(name)
		if err != nil {
			continue
		}
		for _, dep := range rec.AllDeps(allFlagsOn(rec)) {
			if dep == pkg {
				out = append(out, name)
				break
			}
		}
	}
	return out, nil
}

// allFlagsOn treats every use_flags entry the recipe declares as active,
// so reverse-dependency scanning sees the full declared dependency set
// regardless of what flags were active when each package was originally
// installed.
func allFlagsOn(rec *recipe.Recipe) map[string]bool {
	m := make(map[string]bool, len(rec.UseFlags))
	for _, f := range rec.UseFlags {
		m[f] = true
	}
	return m
}

// AuditResult reports unmet dependencies and orphaned installs.
type AuditResult struct {
	Missing []string
	Orphans []string
}

// Audit reports, for r, which dependencies are missing and which
// installed packages have no dependents (spec.md §4.2).
func (res *Resolver) Audit(r *recipe.Recipe, useFlags map[string]bool) (AuditResult, error) {
	missing, err := res.FindMissing(r, useFlags)
	if err != nil {
		return AuditResult{}, err
	}
	var orphans []string
	for _, name := range res.DB.GetInstalledPackages() {
		revs, err := res.FindReverseDependencies(name)
		if err != nil {
			return AuditResult{}, err
		}
		if len(revs) == 0 {
			orphans = append(orphans, name)
		}
	}
	return AuditResult{Missing: missing, Orphans: orphans}, nil
}
