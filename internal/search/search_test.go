package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/srcforge/srcpm/internal/errs"
)

func writeRecipe(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "recipe.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestListAllPackagesUnionsRoots(t *testing.T) {
	r1, r2 := t.TempDir(), t.TempDir()
	writeRecipe(t, r1, "foo", "name: foo\nversion: \"1\"\nbuild_system: autotools\n")
	writeRecipe(t, r2, "bar", "name: bar\nversion: \"1\"\nbuild_system: autotools\n")

	s := &Search{RepoRoots: []string{r1, r2}}
	got, err := s.ListAllPackages()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "bar" || got[1] != "foo" {
		t.Fatalf("ListAllPackages() = %v", got)
	}
}

func TestFindPackageFirstHitWins(t *testing.T) {
	r1, r2 := t.TempDir(), t.TempDir()
	writeRecipe(t, r1, "foo", "name: foo\nversion: \"1\"\nbuild_system: autotools\n")
	writeRecipe(t, r2, "foo", "name: foo\nversion: \"2\"\nbuild_system: autotools\n")

	s := &Search{RepoRoots: []string{r1, r2}}
	got, err := s.FindPackage("foo")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(r1, "foo") {
		t.Fatalf("FindPackage() = %s, want root1 hit", got)
	}
}

func TestFindPackageNotFound(t *testing.T) {
	s := &Search{RepoRoots: []string{t.TempDir()}}
	_, err := s.FindPackage("missing")
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("FindPackage() error = %v, want NotFound", err)
	}
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	writeRecipe(t, root, "foo", "name: foo\nversion: \"1\"\nbuild_system: autotools\n")
	os.WriteFile(filepath.Join(root, "foo", "patch.diff"), []byte("x"), 0644)

	s := &Search{RepoRoots: []string{root}}
	files, err := s.ListFiles("foo")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("ListFiles() = %v, want 2 entries", files)
	}
}

func TestListDependencies(t *testing.T) {
	root := t.TempDir()
	writeRecipe(t, root, "foo", "name: foo\nversion: \"1\"\nbuild_system: autotools\nbuild_deps:\n  bar: \"\"\nruntime_deps:\n  baz: \"\"\n")

	s := &Search{RepoRoots: []string{root}}
	deps, err := s.ListDependencies("foo")
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 2 {
		t.Fatalf("ListDependencies() = %v, want 2 entries", deps)
	}
}
