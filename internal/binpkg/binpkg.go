// Package binpkg implements the Binary-Package Store of spec.md §4.9: a
// tar-based producer/consumer of previously staged install prefixes, with
// a sidecar metadata file and SHA-256 integrity verification on install.
// .tar.gz uses github.com/klauspost/compress/gzip (github.com/klauspost/
// pgzip for archives above PgzipThreshold, matching the teacher's own
// choice to reach for pgzip on large payloads); .tar.xz shells out to the
// xz binary, since no xz-capable Go package appears anywhere in the
// retrieval pack (the teacher's own idiom throughout internal/build and
// internal/install is to spawn external tools rather than reimplement
// codecs).
package binpkg

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/google/renameio"
	"github.com/klauspost/pgzip"
	"golang.org/x/xerrors"

	srcpm "github.com/srcforge/srcpm"
	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/hooks"
	"github.com/srcforge/srcpm/internal/history"
	"github.com/srcforge/srcpm/internal/logx"
)

// PgzipThreshold is the total size of the staged files (before
// compression) above which the parallel pgzip encoder is used instead of
// klauspost/compress/gzip's single-stream one.
const PgzipThreshold = 64 * 1024 * 1024 // 64 MiB

// Sidecar is the exact seven-key .pkginfo JSON document (spec.md §6).
type Sidecar struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Arch        string `json:"arch"`
	CreatedAt   string `json:"created_at"`
	InstallPath string `json:"install_path"`
	SHA256      string `json:"sha256"`
	Compress    string `json:"compress"`
}

// Store produces and consumes binary packages under Root.
type Store struct {
	Root    string
	Hooks   *hooks.Dispatcher
	History *history.Log
	Log     logx.Logger
}

func (st *Store) log() logx.Logger {
	if st.Log != nil {
		return st.Log
	}
	return logx.Nop{}
}

func archiveExt(compress string) (string, error) {
	switch compress {
	case "gz":
		return ".tar.gz", nil
	case "xz":
		return ".tar.xz", nil
	default:
		return "", xerrors.Errorf("%w: unknown compression %q", errs.Invalid, compress)
	}
}

// CreateBinpkg tars installPath into <name>-<version>-<arch>.tar.{gz|xz}
// under Root, computes its SHA-256, and writes the .pkginfo sidecar.
func (st *Store) CreateBinpkg(name, version, installPath, arch, compress string) (tarPath string, err error) {
	ext, err := archiveExt(compress)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(st.Root, 0755); err != nil {
		return "", err
	}
	s := srcpm.PackageVersion{Name: name, Version: version, Arch: arch}.String()
	tarPath = filepath.Join(st.Root, s+ext)

	if err := writeTarArchive(tarPath, installPath, compress); err != nil {
		return "", err
	}

	sum, err := sha256File(tarPath)
	if err != nil {
		return "", err
	}

	sidecar := Sidecar{
		Name:        name,
		Version:     version,
		Arch:        arch,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		InstallPath: installPath,
		SHA256:      sum,
		Compress:    compress,
	}
	sidecarPath := filepath.Join(st.Root, s+".pkginfo")
	data, err := json.MarshalIndent(sidecar, "", "    ")
	if err != nil {
		return "", err
	}
	if err := renameio.WriteFile(sidecarPath, data, 0644); err != nil {
		return "", err
	}

	if st.History != nil {
		st.History.Record("create_binpkg", name, tarPath, "ok")
	}
	return tarPath, nil
}

func writeTarArchive(tarPath, dir, compress string) error {
	out, err := os.Create(tarPath)
	if err != nil {
		return err
	}
	defer out.Close()

	switch compress {
	case "gz":
		fi, err := dirSize(dir)
		if err != nil {
			return err
		}
		if fi > PgzipThreshold {
			zw := pgzip.NewWriter(out)
			defer zw.Close()
			return tarDir(zw, dir)
		}
		zw := kgzip.NewWriter(out)
		defer zw.Close()
		return tarDir(zw, dir)
	case "xz":
		tmp := tarPath + ".tmp"
		tf, err := os.Create(tmp)
		if err != nil {
			return err
		}
		if err := tarDir(tf, dir); err != nil {
			tf.Close()
			os.Remove(tmp)
			return err
		}
		tf.Close()
		defer os.Remove(tmp)
		cmd := exec.Command("xz", "-c", tmp)
		cmd.Stdout = out
		var stderr stderrBuf
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return xerrors.Errorf("xz %s: %w: %v: %s", tmp, errs.External, err, stderr.String())
		}
		return nil
	default:
		return xerrors.Errorf("%w: unknown compression %q", errs.Invalid, compress)
	}
}

type stderrBuf struct{ b []byte }

func (s *stderrBuf) Write(p []byte) (int, error) { s.b = append(s.b, p...); return len(p), nil }
func (s *stderrBuf) String() string              { return string(s.b) }

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func tarDir(w io.Writer, dir string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// locate finds the tarball and (optionally) its sidecar for a binary
// package.
func (st *Store) locate(name, version, arch string) (tarPath, sidecarPath string, sidecar *Sidecar, err error) {
	s := srcpm.PackageVersion{Name: name, Version: version, Arch: arch}.String()
	for _, ext := range []string{".tar.gz", ".tar.xz"} {
		candidate := filepath.Join(st.Root, s+ext)
		if _, statErr := os.Stat(candidate); statErr == nil {
			tarPath = candidate
			break
		}
	}
	if tarPath == "" {
		return "", "", nil, xerrors.Errorf("binpkg %s: %w: tarball not found", s, errs.NotFound)
	}
	sidecarPath = filepath.Join(st.Root, s+".pkginfo")
	if data, readErr := os.ReadFile(sidecarPath); readErr == nil {
		var sc Sidecar
		if jsonErr := json.Unmarshal(data, &sc); jsonErr != nil {
			return "", "", nil, xerrors.Errorf("binpkg %s: %w: malformed sidecar: %v", s, errs.Invalid, jsonErr)
		}
		sidecar = &sc
	}
	return tarPath, sidecarPath, sidecar, nil
}

// verify compares tarPath's current SHA-256 against the sidecar's (if
// present); the sidecar is optional for install, so a missing sidecar is
// not an error here.
func (st *Store) verify(tarPath string, sidecar *Sidecar) error {
	if sidecar == nil {
		return nil
	}
	sum, err := sha256File(tarPath)
	if err != nil {
		return err
	}
	if sum != sidecar.SHA256 {
		return xerrors.Errorf("binpkg %s: %w: sha256 mismatch: sidecar says %s, tarball is %s", tarPath, errs.Integrity, sidecar.SHA256, sum)
	}
	return nil
}

// InstallBinpkg locates, integrity-checks, and extracts the binary package
// identified by name/version/arch into dest (spec.md §4.9). dest defaults
// to "/" when empty.
func (st *Store) InstallBinpkg(name, version, dest, arch string, force bool) error {
	if dest == "" {
		dest = "/"
	}
	tarPath, _, sidecar, err := st.locate(name, version, arch)
	if err != nil {
		return err
	}
	if err := st.verify(tarPath, sidecar); err != nil {
		if !force {
			if st.History != nil {
				st.History.Record("install_binpkg", name, tarPath, "error: "+err.Error())
			}
			return err
		}
		st.log().Warnf("binpkg %s failed integrity check, forcing install: %v", name, err)
	}

	if st.Hooks != nil {
		if err := st.Hooks.RunHooks("pre_install", name, dest); err != nil {
			return err
		}
	}

	if err := extractTar(tarPath, dest); err != nil {
		if st.History != nil {
			st.History.Record("install_binpkg", name, tarPath, "error: "+err.Error())
		}
		return err
	}

	if st.Hooks != nil {
		if err := st.Hooks.RunHooks("post_install", name, dest); err != nil {
			return err
		}
	}

	if st.History != nil {
		st.History.Record("install_binpkg", name, dest, "ok")
	}
	return nil
}

// ValidateBinpkg is a non-installing superset of the integrity check: it
// also performs a structural tar self-check by reading every entry.
func (st *Store) ValidateBinpkg(name, version, arch string) error {
	tarPath, _, sidecar, err := st.locate(name, version, arch)
	if err != nil {
		return err
	}
	if err := st.verify(tarPath, sidecar); err != nil {
		return err
	}
	return tarSelfCheck(tarPath)
}

// openTarReader returns a Closer covering every resource opened (the
// backing file, the decompressor, and/or the spawned xz process) and a
// *tar.Reader reading the decompressed archive.
func openTarReader(tarPath string) (io.Closer, *tar.Reader, error) {
	f, err := os.Open(tarPath)
	if err != nil {
		return nil, nil, err
	}
	switch filepath.Ext(tarPath) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, xerrors.Errorf("%w: malformed gzip: %v", errs.Integrity, err)
		}
		return multiCloser{f, zr}, tar.NewReader(zr), nil
	case ".xz":
		cmd := exec.Command("xz", "-dc", tarPath)
		pr, err := cmd.StdoutPipe()
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		if err := cmd.Start(); err != nil {
			f.Close()
			return nil, nil, err
		}
		f.Close()
		return pr, tar.NewReader(pr), nil
	default:
		return f, tar.NewReader(f), nil
	}
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func tarSelfCheck(tarPath string) error {
	closer, tr, err := openTarReader(tarPath)
	if err != nil {
		return err
	}
	defer closer.Close()
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("binpkg %s: %w: %v", tarPath, errs.Integrity, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return xerrors.Errorf("binpkg %s: %w: %v", tarPath, errs.Integrity, err)
			}
		}
	}
}

func extractTar(tarPath, dest string) error {
	closer, tr, err := openTarReader(tarPath)
	if err != nil {
		return err
	}
	defer closer.Close()
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("extract %s: %w: %v", tarPath, errs.Integrity, err)
		}
		target := filepath.Join(dest, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			os.Remove(target)
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}
