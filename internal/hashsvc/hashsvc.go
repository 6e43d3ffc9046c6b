// Package hashsvc implements the Hash Service of spec.md §4.4:
// multi-algorithm file hashing with recipe-embedding and verification.
// sha256/sha512/md5 come from the standard library; blake2b from
// golang.org/x/crypto/blake2b, promoting the teacher's indirect
// golang.org/x/crypto require to direct use.
package hashsvc

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/cache"
	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/history"
	"github.com/srcforge/srcpm/internal/recipe"
	"github.com/srcforge/srcpm/internal/sandbox"
)

// chunkSize is the streaming read size (spec.md §4.4: "8 KiB chunks").
const chunkSize = 8 * 1024

// Algorithms maps recognized algorithm names to hash.Hash constructors.
var Algorithms = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha512": sha512.New,
	"md5":    md5.New,
	"blake2b": func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
}

// Service is the Hash Service. Sandbox/Anchor/Cache/History are all
// optional collaborators (spec.md §9: explicit, not ambient).
type Service struct {
	Sandbox *sandbox.Sandbox
	Anchor  string // the root paths are relative to, for sandbox rewriting
	Cache   *cache.Cache
	History *history.Log
}

// GenerateHash streams path (rewritten per the sandbox/cache override
// rules below) through alg in 8 KiB chunks and returns its hex digest.
//
// Overrides (spec.md §4.4): if a sandbox is configured, path is rewritten
// to sandbox_root/relative(path, Anchor) before hashing; if a cache is
// also configured and a hit exists for path's basename, that cache hit is
// hashed instead (the cache override takes precedence, since a cached
// artifact is the thing whose integrity actually matters once fetched).
func (s *Service) GenerateHash(path, alg string) (string, error) {
	ctor, ok := Algorithms[alg]
	if !ok {
		return "", xerrors.Errorf("generate_hash %s: %w: unknown algorithm %q", path, errs.Invalid, alg)
	}

	resolved := path
	if s.Sandbox != nil {
		if rel, err := filepath.Rel(s.Anchor, path); err == nil {
			resolved = filepath.Join(s.Sandbox.Root, rel)
		}
	}
	if s.Cache != nil {
		if entry, err := s.Cache.GetFile(filepath.Base(path)); err == nil {
			resolved = entry.Path
		}
	}

	f, err := os.Open(resolved)
	if err != nil {
		return "", xerrors.Errorf("generate_hash %s: %w: %v", resolved, errs.NotFound, err)
	}
	defer f.Close()

	h := ctor()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", xerrors.Errorf("generate_hash %s: %v", resolved, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// InjectIntoRecipe parses recipeFile, sets its hashes map, and rewrites it
// atomically (spec.md §4.4).
func (s *Service) InjectIntoRecipe(recipeFile string, hashes map[string]string) error {
	r, err := recipe.Load(recipeFile)
	if err != nil {
		return err
	}
	r.Hashes = hashes
	return r.Save(recipeFile)
}

// VerifyIntegrity computes path's hash under alg and compares it to
// expected, recording the outcome to History (if configured) regardless of
// the result.
func (s *Service) VerifyIntegrity(path, expected, alg string) (bool, error) {
	got, err := s.GenerateHash(path, alg)
	ok := err == nil && got == expected
	if s.History != nil {
		status := "ok"
		if err != nil {
			status = "error: " + err.Error()
		} else if !ok {
			status = "error: hash mismatch"
		}
		s.History.Record("verify_integrity", filepath.Base(path), alg+":"+expected, status)
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}
