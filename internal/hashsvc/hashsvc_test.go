package hashsvc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashDeterminismAndSensitivity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	var s Service
	h1, err := s.GenerateHash(path, "sha256")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.GenerateHash(path, "sha256")
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("two successive hashes differ: %s != %s", h1, h2)
	}

	if err := os.WriteFile(path, []byte("hellp"), 0644); err != nil {
		t.Fatal(err)
	}
	h3, err := s.GenerateHash(path, "sha256")
	if err != nil {
		t.Fatal(err)
	}
	if h3 == h1 {
		t.Error("single-byte flip did not change the digest")
	}
}

func TestGenerateHashUnknownAlgorithm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	os.WriteFile(path, []byte("x"), 0644)
	var s Service
	if _, err := s.GenerateHash(path, "sha1"); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestVerifyIntegrity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	os.WriteFile(path, []byte("content"), 0644)
	var s Service
	digest, err := s.GenerateHash(path, "sha256")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := s.VerifyIntegrity(path, digest, "sha256")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("VerifyIntegrity() = false for matching digest")
	}
	ok, err = s.VerifyIntegrity(path, "deadbeef", "sha256")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("VerifyIntegrity() = true for mismatched digest")
	}
}
