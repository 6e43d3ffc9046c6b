package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreAndGetFile(t *testing.T) {
	srcDir := t.TempDir()
	root := t.TempDir()
	src := filepath.Join(srcDir, "foo.tar.gz")
	if err := os.WriteFile(src, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}
	c := New([]string{root}, 0, 0, nil)
	entry, err := c.StoreFile(src, false)
	if err != nil {
		t.Fatal(err)
	}
	if entry.SHA256 == "" {
		t.Error("StoreFile did not record a SHA-256")
	}
	got, err := c.GetFile("foo.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	if got.Root != root {
		t.Errorf("GetFile root = %s, want %s", got.Root, root)
	}
}

func TestGetFileFirstRootWins(t *testing.T) {
	root1, root2 := t.TempDir(), t.TempDir()
	os.WriteFile(filepath.Join(root1, "foo"), []byte("r1"), 0644)
	os.WriteFile(filepath.Join(root2, "foo"), []byte("r2"), 0644)

	c := New([]string{root1, root2}, 0, 0, nil)
	got, err := c.GetFile("foo")
	if err != nil {
		t.Fatal(err)
	}
	if got.Root != root1 {
		t.Errorf("GetFile resolved to %s, want first root %s", got.Root, root1)
	}
}

func TestCleanCacheRemovesInvalid(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "stale")
	os.WriteFile(stale, []byte("x"), 0644)
	old := time.Now().Add(-48 * time.Hour)
	os.Chtimes(stale, old, old)

	fresh := filepath.Join(root, "fresh")
	os.WriteFile(fresh, []byte("y"), 0644)

	c := New([]string{root}, 24*time.Hour, 0, nil)
	removed, err := c.CleanCache(false)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("CleanCache removed %d, want 1", removed)
	}

	entries, err := c.ListCache()
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		fi, err := os.Stat(e.Path)
		if err != nil {
			t.Fatal(err)
		}
		if !c.isValid(fi) {
			t.Errorf("remaining entry %s is not valid after CleanCache", e.Name)
		}
	}
}
