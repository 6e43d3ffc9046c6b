// Package cache implements the content-addressed source-artifact cache of
// spec.md §4.3: multiple roots, flat files by basename, SHA-256 recorded
// per file, TTL- and size-bounded, first-hit lookup with no merging across
// roots. Concurrent root scans use golang.org/x/sync/errgroup and
// identical-key fetches collapse through golang.org/x/sync/singleflight,
// matching the teacher's own errgroup use in internal/build.
package cache

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/logx"
)

// Entry describes one cached file's metadata (spec.md §3's Cache Entry).
type Entry struct {
	Name    string
	Root    string
	Path    string
	Size    int64
	ModTime time.Time
	SHA256  string
}

// Cache is a multi-root, content-addressed store. Roots[0] is primary:
// StoreFile writes there; GetFile/ListCache scan all roots in order and
// resolve a name to the first root containing it.
type Cache struct {
	Roots      []string
	MaxAge     time.Duration
	MaxBytes   int64 // 0 = unbounded
	Log        logx.Logger

	sf singleflight.Group
}

// New constructs a Cache. log may be nil (defaults to a no-op logger).
func New(roots []string, maxAge time.Duration, maxBytes int64, log logx.Logger) *Cache {
	if log == nil {
		log = logx.Nop{}
	}
	return &Cache{Roots: roots, MaxAge: maxAge, MaxBytes: maxBytes, Log: log}
}

// StoreFile copies src into the primary root under its basename (gzipped
// if compress is true) and returns the stored Entry, including its
// SHA-256.
func (c *Cache) StoreFile(src string, compress bool) (Entry, error) {
	if len(c.Roots) == 0 {
		return Entry{}, xerrors.Errorf("store %s: %w: no cache roots configured", src, errs.Invalid)
	}
	if err := os.MkdirAll(c.Roots[0], 0755); err != nil {
		return Entry{}, err
	}
	name := filepath.Base(src)
	destName := name
	if compress {
		destName += ".gz"
	}
	dest := filepath.Join(c.Roots[0], destName)

	in, err := os.Open(src)
	if err != nil {
		return Entry{}, xerrors.Errorf("store %s: %w: %v", src, errs.NotFound, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return Entry{}, err
	}
	defer out.Close()

	h := sha256.New()
	var w io.Writer = io.MultiWriter(out, h)
	if compress {
		gw := gzip.NewWriter(out)
		w = io.MultiWriter(gw, h)
		defer gw.Close()
	}
	if _, err := io.Copy(w, in); err != nil {
		return Entry{}, err
	}
	fi, err := os.Stat(dest)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Name:    name,
		Root:    c.Roots[0],
		Path:    dest,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		SHA256:  hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// GetFile returns the first cache root where name (or name+".gz") exists
// and passes isValid; concurrent callers asking for the same name
// collapse onto one lookup via singleflight.
func (c *Cache) GetFile(name string) (Entry, error) {
	v, err, _ := c.sf.Do(name, func() (interface{}, error) {
		for _, root := range c.Roots {
			for _, candidate := range []string{name, name + ".gz"} {
				path := filepath.Join(root, candidate)
				fi, err := os.Stat(path)
				if err != nil {
					continue
				}
				if !c.isValid(fi) {
					continue
				}
				return Entry{Name: name, Root: root, Path: path, Size: fi.Size(), ModTime: fi.ModTime()}, nil
			}
		}
		return Entry{}, xerrors.Errorf("cache file %s: %w", name, errs.NotFound)
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// isValid reports (now - mtime) <= MaxAge (when MaxAge > 0) and the file's
// size is within MaxBytes (when MaxBytes > 0); the file being openable is
// implied by the caller having just Stat'd it successfully.
func (c *Cache) isValid(fi os.FileInfo) bool {
	if c.MaxAge > 0 && time.Since(fi.ModTime()) > c.MaxAge {
		return false
	}
	if c.MaxBytes > 0 && fi.Size() > c.MaxBytes {
		return false
	}
	return true
}

// ListCache projects metadata for every file across every root,
// concurrently, via errgroup.
func (c *Cache) ListCache() ([]Entry, error) {
	var mu sync.Mutex
	var entries []Entry
	var g errgroup.Group
	for _, root := range c.Roots {
		root := root
		g.Go(func() error {
			dirEntries, err := os.ReadDir(root)
			if os.IsNotExist(err) {
				return nil
			}
			if err != nil {
				return err
			}
			var local []Entry
			for _, de := range dirEntries {
				if de.IsDir() {
					continue
				}
				fi, err := de.Info()
				if err != nil {
					continue
				}
				local = append(local, Entry{
					Name:    de.Name(),
					Root:    root,
					Path:    filepath.Join(root, de.Name()),
					Size:    fi.Size(),
					ModTime: fi.ModTime(),
				})
			}
			mu.Lock()
			entries = append(entries, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CleanCache removes every invalid cache file; when force is true, every
// file is removed regardless of validity. A failure to remove one file is
// logged but does not abort cleanup of the rest.
func (c *Cache) CleanCache(force bool) (removed int, err error) {
	for _, root := range c.Roots {
		entries, err := os.ReadDir(root)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return removed, err
		}
		for _, de := range entries {
			if de.IsDir() {
				continue
			}
			path := filepath.Join(root, de.Name())
			fi, statErr := de.Info()
			if statErr != nil {
				continue
			}
			if !force && c.isValid(fi) {
				continue
			}
			if rmErr := os.Remove(path); rmErr != nil {
				c.Log.Warnf("clean_cache: remove %s: %v", path, rmErr)
				continue
			}
			removed++
		}
	}
	return removed, nil
}
