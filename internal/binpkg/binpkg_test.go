package binpkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/srcforge/srcpm/internal/errs"
)

func TestCreateAndInstallRoundTrip(t *testing.T) {
	stageDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(stageDir, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stageDir, "bin", "foo"), make([]byte, 100), 0755); err != nil {
		t.Fatal(err)
	}

	st := &Store{Root: t.TempDir()}
	tarPath, err := st.CreateBinpkg("foo", "1.0", stageDir, "x86_64", "gz")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(tarPath); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := st.InstallBinpkg("foo", "1.0", dest, "x86_64", false); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "bin", "foo"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Errorf("installed bin/foo has length %d, want 100", len(got))
	}
}

func TestInstallBinpkgTruncatedTarballFailsIntegrity(t *testing.T) {
	stageDir := t.TempDir()
	os.MkdirAll(filepath.Join(stageDir, "bin"), 0755)
	os.WriteFile(filepath.Join(stageDir, "bin", "foo"), make([]byte, 100), 0644)

	st := &Store{Root: t.TempDir()}
	tarPath, err := st.CreateBinpkg("foo", "1.0", stageDir, "x86_64", "gz")
	if err != nil {
		t.Fatal(err)
	}

	fi, err := os.Stat(tarPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(tarPath, fi.Size()-1); err != nil {
		t.Fatal(err)
	}

	err = st.InstallBinpkg("foo", "1.0", t.TempDir(), "x86_64", false)
	if !errs.Is(err, errs.Integrity) {
		t.Fatalf("InstallBinpkg() error = %v, want Integrity", err)
	}
}

func TestInstallBinpkgMissingTarball(t *testing.T) {
	st := &Store{Root: t.TempDir()}
	err := st.InstallBinpkg("nope", "1.0", t.TempDir(), "x86_64", false)
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("InstallBinpkg() error = %v, want NotFound", err)
	}
}
