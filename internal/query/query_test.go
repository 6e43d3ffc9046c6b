package query

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/logx"
	"github.com/srcforge/srcpm/internal/sandbox"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestListAllFlagsUnionsAndCaches(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "profiles", "use.desc"), "ssl enabled\ndebug disabled\n# comment\n")

	q := &UseQuery{RepoRoots: []string{root}, CacheDir: t.TempDir()}
	got, err := q.ListAllFlags()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"debug", "ssl"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("ListAllFlags() = %v, want %v", got, want)
	}

	if _, err := os.Stat(filepath.Join(q.CacheDir, "all_flags.json")); err != nil {
		t.Fatalf("expected sidecar cache file to be written: %v", err)
	}
}

func TestPackageFlagsParsesOverrides(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "profiles", "package.use", "foo"), "ssl=enabled\ndebug=disabled\n")

	q := &UseQuery{RepoRoots: []string{root}}
	got, err := q.PackageFlags("foo")
	if err != nil {
		t.Fatal(err)
	}
	if got["ssl"] != "enabled" || got["debug"] != "disabled" {
		t.Fatalf("PackageFlags() = %v", got)
	}
}

func TestSetPackageFlagRequiresSandbox(t *testing.T) {
	q := &UseQuery{}
	err := q.SetPackageFlag("foo", "ssl", "enabled")
	if !errs.Is(err, errs.Invalid) {
		t.Fatalf("SetPackageFlag() error = %v, want Invalid", err)
	}
}

func TestSetPackageFlagWritesOnlyIntoSandbox(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "profiles", "package.use", "foo"), "ssl=disabled\n")

	sbRoot := t.TempDir()
	sb, err := sandbox.New(sbRoot, logx.Nop{})
	if err != nil {
		t.Fatal(err)
	}
	q := &UseQuery{RepoRoots: []string{root}, Sandbox: sb}

	if err := q.SetPackageFlag("foo", "debug", "enabled"); err != nil {
		t.Fatal(err)
	}

	// Real repository root must be untouched.
	data, err := os.ReadFile(filepath.Join(root, "profiles", "package.use", "foo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ssl=disabled\n" {
		t.Fatalf("repository package.use file was modified: %q", data)
	}

	// Sandbox copy must hold the new flag.
	sandboxed, err := os.ReadFile(filepath.Join(sbRoot, "package.use", "foo"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "debug=enabled\n"; string(sandboxed) != want {
		t.Fatalf("sandbox package.use = %q, want %q", sandboxed, want)
	}
}

func TestSuggestFlagsExcludesAlreadySet(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "profiles", "use.desc"), "ssl enabled\ndebug disabled\nstatic disabled\n")
	writeFile(t, filepath.Join(root, "profiles", "package.use", "foo"), "ssl=enabled\n")

	q := &UseQuery{RepoRoots: []string{root}}
	got, err := q.SuggestFlags("foo")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range got {
		if f == "ssl" {
			t.Fatalf("SuggestFlags() should not include already-set flag, got %v", got)
		}
	}
	if len(got) != 2 {
		t.Fatalf("SuggestFlags() = %v, want 2 entries", got)
	}
}
