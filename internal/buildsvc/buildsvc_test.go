package buildsvc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/recipe"
)

func TestBuildUnknownBuildSystem(t *testing.T) {
	b := &Builder{SandboxRoot: t.TempDir()}
	r := &recipe.Recipe{Name: "foo", Version: "1", BuildSystem: "bogus"}
	_, err := b.Build(context.Background(), r, t.TempDir(), t.TempDir())
	if !errs.Is(err, errs.Invalid) {
		t.Fatalf("Build() error = %v, want Invalid", err)
	}
}

func TestPythonBackendPrefersSetupPy(t *testing.T) {
	srcDir := t.TempDir()
	os.WriteFile(filepath.Join(srcDir, "setup.py"), []byte("#"), 0644)

	steps := pythonBackend{}.ConfigureAndCompile(srcDir, "/usr", 4)
	if len(steps) != 1 || steps[0][1] != "setup.py" {
		t.Fatalf("ConfigureAndCompile() = %v, want a setup.py build step", steps)
	}

	install := pythonBackend{}.Install(srcDir, "/usr", "/dest", 4)
	found := false
	for _, arg := range install[0] {
		if arg == "setup.py" {
			found = true
		}
	}
	if !found {
		t.Errorf("Install() = %v, want setup.py invocation when setup.py is present", install)
	}
}

func TestPythonBackendFallsBackToPip(t *testing.T) {
	srcDir := t.TempDir() // no setup.py
	install := pythonBackend{}.Install(srcDir, "/usr", "/dest", 4)
	if install[0][0] != "pip" {
		t.Fatalf("Install() = %v, want pip fallback when setup.py is absent", install)
	}
}

func TestDryRunDoesNotSpawn(t *testing.T) {
	b := &Builder{SandboxRoot: t.TempDir(), DryRun: true}
	srcDir := t.TempDir()
	os.WriteFile(filepath.Join(srcDir, "configure"), []byte("#"), 0755)

	r := &recipe.Recipe{Name: "foo", Version: "1", BuildSystem: "autotools"}
	res, err := b.Build(context.Background(), r, srcDir, filepath.Join(t.TempDir(), "dest"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Sandbox == nil {
		t.Fatal("Build() returned nil sandbox in dry-run mode")
	}
}
