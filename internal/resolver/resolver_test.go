package resolver

import (
	"testing"

	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/recipe"
)

type fakeDB struct {
	recipes   map[string]*recipe.Recipe
	installed map[string]bool
}

func (f *fakeDB) GetRecipe(name string) (*recipe.Recipe, error) {
	r, ok := f.recipes[name]
	if !ok {
		return nil, notFound(name)
	}
	return r, nil
}
func (f *fakeDB) IsInstalled(name string) bool { return f.installed[name] }
func (f *fakeDB) GetInstalledPackages() []string {
	var out []string
	for n := range f.installed {
		out = append(out, n)
	}
	return out
}

func notFound(name string) error {
	return xerrors.Errorf("package %s: %w", name, errs.NotFound)
}

func TestResolveOrdersDependenciesFirst(t *testing.T) {
	db := &fakeDB{
		recipes: map[string]*recipe.Recipe{
			"a": {Name: "a", Version: "1", BuildSystem: "autotools", RuntimeDeps: map[string]string{"b": ""}},
			"b": {Name: "b", Version: "1", BuildSystem: "autotools", RuntimeDeps: map[string]string{"c": ""}},
			"c": {Name: "c", Version: "1", BuildSystem: "autotools"},
		},
		installed: map[string]bool{},
	}
	r := New(db)
	order, err := r.Resolve(db.recipes["a"], nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "b", "a"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestFindMissing(t *testing.T) {
	db := &fakeDB{
		recipes: map[string]*recipe.Recipe{
			"a": {Name: "a", Version: "1", BuildSystem: "autotools", RuntimeDeps: map[string]string{"b": ""}},
			"b": {Name: "b", Version: "1", BuildSystem: "autotools"},
		},
		installed: map[string]bool{"b": true},
	}
	r := New(db)
	missing, err := r.FindMissing(db.recipes["a"], nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0] != "a" {
		t.Fatalf("FindMissing = %v, want [a]", missing)
	}
}

func TestResolveGatedDependency(t *testing.T) {
	db := &fakeDB{
		recipes: map[string]*recipe.Recipe{
			"a": {
				Name: "a", Version: "1", BuildSystem: "autotools",
				RuntimeDeps: map[string]string{"b": "", "opt": "x11"},
			},
			"b":   {Name: "b", Version: "1", BuildSystem: "autotools"},
			"opt": {Name: "opt", Version: "1", BuildSystem: "autotools"},
		},
		installed: map[string]bool{},
	}
	r := New(db)
	order, err := r.Resolve(db.recipes["a"], nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, pkg := range order {
		if pkg == "opt" {
			t.Fatalf("opt included without its gate flag active: %v", order)
		}
	}
	order, err = r.Resolve(db.recipes["a"], map[string]bool{"x11": true})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, pkg := range order {
		if pkg == "opt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("opt missing with its gate flag active: %v", order)
	}
}
