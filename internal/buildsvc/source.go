package buildsvc

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/cache"
	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/hashsvc"
	"github.com/srcforge/srcpm/internal/recipe"
)

// PrepareSource resolves r's upstream source into a plain directory Build
// can deep-copy from: the data flow of spec.md §2 names "Cache fetch ->
// Builder" as the step before the pipeline this package drives, so the
// cached tarball (already fetched by the out-of-scope network fetcher of
// spec.md §1) still needs extracting before Build's prepare_sandbox step
// can deep-copy recipe.source_dir.
//
// If r.Source.URL is empty, sourceDir is used directly (a locally authored
// recipe with no fetched upstream, e.g. one scaffolded but not yet
// published). Otherwise the cache is consulted for r.Source.URL's
// basename; r.Source.SHA256, when set, is verified against that cache hit
// before anything is extracted, mirroring spec.md §4.4's
// VerifyIntegrity/Integrity-error contract.
func PrepareSource(c *cache.Cache, r *recipe.Recipe, sourceDir, scratchRoot string) (string, error) {
	if r.Source.URL == "" {
		return sourceDir, nil
	}
	if c == nil {
		return "", xerrors.Errorf("prepare source %s: %w: no cache configured for fetched sources", r.Name, errs.Invalid)
	}
	entry, err := c.GetFile(filepath.Base(r.Source.URL))
	if err != nil {
		return "", xerrors.Errorf("prepare source %s: %w", r.Name, err)
	}
	if r.Source.SHA256 != "" {
		hs := &hashsvc.Service{}
		ok, err := hs.VerifyIntegrity(entry.Path, r.Source.SHA256, "sha256")
		if err != nil {
			return "", xerrors.Errorf("prepare source %s: %w: %v", r.Name, errs.Integrity, err)
		}
		if !ok {
			return "", xerrors.Errorf("prepare source %s: %w: sha256 mismatch for %s", r.Name, errs.Integrity, entry.Path)
		}
	}

	dest, err := os.MkdirTemp(scratchRoot, r.Name+"-src-*")
	if err != nil {
		return "", err
	}
	if err := extractSourceTar(entry.Path, dest); err != nil {
		return "", xerrors.Errorf("prepare source %s: %w", r.Name, err)
	}
	return stripSingleTopLevelDir(dest)
}

// extractSourceTar mirrors internal/binpkg's tar-extraction idiom: gzip via
// the standard library, xz by shelling out to the xz binary (no
// xz-capable Go package appears anywhere in the retrieval pack).
func extractSourceTar(tarPath, dest string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	switch filepath.Ext(tarPath) {
	case ".gz", ".tgz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			return xerrors.Errorf("%w: malformed gzip: %v", errs.Integrity, err)
		}
		defer zr.Close()
		r = zr
	case ".xz":
		cmd := exec.Command("xz", "-dc", tarPath)
		pr, err := cmd.StdoutPipe()
		if err != nil {
			return err
		}
		if err := cmd.Start(); err != nil {
			return err
		}
		defer cmd.Wait()
		r = pr
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("%w: %v", errs.Integrity, err)
		}
		target := filepath.Join(dest, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			os.Remove(target)
			os.MkdirAll(filepath.Dir(target), 0755)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			_, err = io.Copy(out, tr)
			out.Close()
			if err != nil {
				return err
			}
		}
	}
}

// stripSingleTopLevelDir descends into dest's single child directory when
// it has exactly one, the common "name-version/" tarball convention, so
// Build's deep-copy lands the package's own files at sandbox/src instead
// of sandbox/src/name-version.
func stripSingleTopLevelDir(dest string) (string, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dest, entries[0].Name()), nil
	}
	return dest, nil
}
