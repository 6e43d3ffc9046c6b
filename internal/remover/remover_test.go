package remover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/srcforge/srcpm/internal/installdb"
	"github.com/srcforge/srcpm/internal/recipe"
	"github.com/srcforge/srcpm/internal/sandbox"
)

func TestRemoveWithReverseDependencies(t *testing.T) {
	db, err := installdb.Open(filepath.Join(t.TempDir(), "db.json"))
	if err != nil {
		t.Fatal(err)
	}
	aRec := recipe.Recipe{Name: "a", Version: "1", BuildSystem: "autotools"}
	bRec := recipe.Recipe{Name: "b", Version: "1", BuildSystem: "autotools", RuntimeDeps: map[string]string{"a": ""}}
	if err := db.Put("a", aRec, []string{"bin/a"}); err != nil {
		t.Fatal(err)
	}
	if err := db.Put("b", bRec, []string{"bin/b"}); err != nil {
		t.Fatal(err)
	}

	sb, err := sandbox.New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	os.MkdirAll(filepath.Join(sb.Root, "bin"), 0755)
	os.WriteFile(filepath.Join(sb.Root, "bin", "a"), []byte("x"), 0644)

	rm := &Remover{DB: db, Sandbox: sb}

	ok, err := rm.RemovePackage("a", false)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("RemovePackage(force=false) with dependents = true, want false")
	}
	if !db.IsInstalled("a") {
		t.Error("a was removed despite dependents blocking without force")
	}

	ok, err = rm.RemovePackage("a", true)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("RemovePackage(force=true) = false, want true")
	}
	if db.IsInstalled("a") {
		t.Error("a still installed after forced removal")
	}
	if !db.IsInstalled("b") {
		t.Error("b's recipe should remain installed after removing a")
	}
}
