// Package recipe defines the Recipe document (spec.md §3) and the
// authoring operations of spec.md §4.11: scaffolding a new package
// directory and validating an existing recipe file. Recipes are YAML via
// gopkg.in/yaml.v3, matching the teacher's own yaml require (the teacher's
// vendored panux-builder sibling uses yaml.v2 for the same recipe-shaped
// config; this repo standardizes on v3 as the pack's newer example,
// overthinkos-overthink, does).
package recipe

import (
	"fmt"
	"os"
	"regexp"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/srcforge/srcpm/internal/errs"
)

// BuildSystems enumerates the recognized build_system values (spec.md §3).
var BuildSystems = map[string]bool{
	"autotools": true,
	"cmake":     true,
	"meson":     true,
	"ninja":     true,
	"rust":      true,
	"python":    true,
}

// Source identifies where a package's upstream tarball comes from and how
// to verify it.
type Source struct {
	URL    string `yaml:"url" json:"url"`
	SHA256 string `yaml:"sha256,omitempty" json:"sha256,omitempty"`
}

// Recipe is the structured document identifying one package (spec.md §3).
// Each dependency map keys a dependency name to an optional USE-flag gate:
// an empty string means "always required".
type Recipe struct {
	Name         string              `yaml:"name" json:"name"`
	Version      string              `yaml:"version" json:"version"`
	Source       Source              `yaml:"source" json:"source"`
	BuildSystem  string              `yaml:"build_system" json:"build_system"`
	BuildDeps    map[string]string   `yaml:"build_deps,omitempty" json:"build_deps,omitempty"`
	RuntimeDeps  map[string]string   `yaml:"runtime_deps,omitempty" json:"runtime_deps,omitempty"`
	OptionalDeps map[string]string   `yaml:"optional_deps,omitempty" json:"optional_deps,omitempty"`
	UseFlags     []string            `yaml:"use_flags,omitempty" json:"use_flags,omitempty"`
	Hooks        map[string][]string `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	Hashes       map[string]string   `yaml:"hashes,omitempty" json:"hashes,omitempty"`
}

var sha256Pattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Validate checks the invariants of spec.md §3: non-empty name/version, a
// recognized build_system, and a well-formed sha256 if present.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return xerrors.Errorf("recipe: %w: name is empty", errs.Invalid)
	}
	if r.Version == "" {
		return xerrors.Errorf("recipe: %w: version is empty", errs.Invalid)
	}
	if !BuildSystems[r.BuildSystem] {
		return xerrors.Errorf("recipe %s: %w: unrecognized build_system %q", r.Name, errs.Invalid, r.BuildSystem)
	}
	if r.Source.SHA256 != "" && !sha256Pattern.MatchString(r.Source.SHA256) {
		return xerrors.Errorf("recipe %s: %w: source.sha256 must be 64 hex chars, got %q", r.Name, errs.Invalid, r.Source.SHA256)
	}
	return nil
}

// AllDeps returns the union of build, runtime, and optional dependency
// names gated by the given active USE flags: a dependency is included iff
// its gate is empty or present in useFlags (spec.md §4.2).
func (r *Recipe) AllDeps(useFlags map[string]bool) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(m map[string]string) {
		for dep, gate := range m {
			if gate != "" && !useFlags[gate] {
				continue
			}
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
			}
		}
	}
	add(r.BuildDeps)
	add(r.RuntimeDeps)
	add(r.OptionalDeps)
	return out
}

// Load reads and parses a recipe.yaml file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Errorf("loading recipe %s: %w", path, errs.NotFound)
		}
		return nil, xerrors.Errorf("loading recipe %s: %v", path, err)
	}
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, xerrors.Errorf("parsing recipe %s: %w: %v", path, errs.Invalid, err)
	}
	return &r, nil
}

// Save writes the recipe back to path as YAML, atomically (spec.md §4.4's
// InjectIntoRecipe calls this as its write path).
func (r *Recipe) Save(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling recipe %s: %w", r.Name, err)
	}
	return renameio.WriteFile(path, data, 0644)
}
