package buildsvc

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/srcforge/srcpm/internal/cache"
	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/recipe"
)

func writeTestTarGz(t *testing.T, path, topDir string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	content := []byte("hello")
	hdr := &tar.Header{Name: topDir + "/configure", Mode: 0755, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	zw.Close()
}

func TestPrepareSourceNoURLUsesDirectly(t *testing.T) {
	r := &recipe.Recipe{Name: "foo"}
	dir := t.TempDir()
	got, err := PrepareSource(nil, r, dir, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Fatalf("PrepareSource() = %q, want %q", got, dir)
	}
}

func TestPrepareSourceExtractsAndStripsTopDir(t *testing.T) {
	cacheRoot := t.TempDir()
	tarPath := filepath.Join(cacheRoot, "foo-1.0.tar.gz")
	writeTestTarGz(t, tarPath, "foo-1.0")

	c := cache.New([]string{cacheRoot}, 0, 0, nil)
	r := &recipe.Recipe{Name: "foo", Source: recipe.Source{URL: "https://example.invalid/foo-1.0.tar.gz"}}

	got, err := PrepareSource(c, r, "", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "foo-1.0" {
		t.Fatalf("PrepareSource() = %q, want a path ending in foo-1.0", got)
	}
	if _, err := os.Stat(filepath.Join(got, "configure")); err != nil {
		t.Fatalf("extracted configure script missing: %v", err)
	}
}

func TestPrepareSourceSHA256Mismatch(t *testing.T) {
	cacheRoot := t.TempDir()
	tarPath := filepath.Join(cacheRoot, "foo-1.0.tar.gz")
	writeTestTarGz(t, tarPath, "foo-1.0")

	c := cache.New([]string{cacheRoot}, 0, 0, nil)
	r := &recipe.Recipe{
		Name: "foo",
		Source: recipe.Source{
			URL:    "https://example.invalid/foo-1.0.tar.gz",
			SHA256: "0000000000000000000000000000000000000000000000000000000000000000"[:64],
		},
	}

	_, err := PrepareSource(c, r, "", t.TempDir())
	if !errs.Is(err, errs.Integrity) {
		t.Fatalf("PrepareSource() error = %v, want Integrity", err)
	}
}
