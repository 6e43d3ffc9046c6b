package installdb

import (
	"path/filepath"
	"testing"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/recipe"
)

func TestPutGetRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatal(err)
	}
	r := recipe.Recipe{Name: "foo", Version: "1.0", BuildSystem: "autotools"}
	if err := db.Put("foo", r, []string{"/usr/bin/foo"}); err != nil {
		t.Fatal(err)
	}
	if !db.IsInstalled("foo") {
		t.Fatal("expected foo to be installed")
	}
	got, err := db.GetRecipe("foo")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "1.0" {
		t.Fatalf("GetRecipe() = %+v", got)
	}
	files, err := db.GetFiles("foo")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "/usr/bin/foo" {
		t.Fatalf("GetFiles() = %v", files)
	}
}

func TestGetRecipeNotFound(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetRecipe("missing"); !errs.Is(err, errs.NotFound) {
		t.Fatalf("GetRecipe() error = %v, want NotFound", err)
	}
}

func TestHasDependentsAndDependents(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatal(err)
	}
	db.Put("a", recipe.Recipe{Name: "a", Version: "1", BuildSystem: "autotools"}, nil)
	db.Put("b", recipe.Recipe{Name: "b", Version: "1", BuildSystem: "autotools", RuntimeDeps: map[string]string{"a": ""}}, nil)

	if !db.HasDependents("a") {
		t.Fatal("expected a to have dependents")
	}
	if db.HasDependents("b") {
		t.Fatal("expected b to have no dependents")
	}
	if deps := db.Dependents("a"); len(deps) != 1 || deps[0] != "b" {
		t.Fatalf("Dependents(a) = %v", deps)
	}
}

func TestRemovePackage(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatal(err)
	}
	db.Put("foo", recipe.Recipe{Name: "foo", Version: "1", BuildSystem: "autotools"}, nil)
	if err := db.RemovePackage("foo"); err != nil {
		t.Fatal(err)
	}
	if db.IsInstalled("foo") {
		t.Fatal("expected foo to be removed")
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	db.Put("foo", recipe.Recipe{Name: "foo", Version: "1", BuildSystem: "autotools"}, []string{"/a"})

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.IsInstalled("foo") {
		t.Fatal("expected persisted install to survive reopen")
	}
}
