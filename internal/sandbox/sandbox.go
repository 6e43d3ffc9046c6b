// Package sandbox implements the Staging Sandbox of spec.md §4.5: a
// DESTDIR-style destination-prefixed directory tree that receives every
// file installation, with an installed-file manifest, snapshot/rollback,
// and best-effort permission/ownership preservation via
// golang.org/x/sys/unix, matching the teacher's pervasive use of
// golang.org/x/sys/unix in internal/build.
package sandbox

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/logx"
)

// FileMeta is one installed-files manifest entry (spec.md §3's Sandbox
// State): either regular-file metadata, or SymlinkTarget set for a symlink.
type FileMeta struct {
	Size          int64
	ModTime       time.Time
	Mode          os.FileMode
	SymlinkTarget string
}

// IsSymlink reports whether this entry records a symlink.
func (m FileMeta) IsSymlink() bool { return m.SymlinkTarget != "" }

// HookRunner is the narrow surface the sandbox needs from a hook
// dispatcher to run pre/post per-file hooks around each copy (spec.md
// §4.5), kept as a local interface so this package doesn't import
// internal/hooks (internal/hooks depends on sandbox roots, not the other
// way around).
type HookRunner interface {
	RunHooks(stage, pkg, sandboxRoot string) error
}

// Sandbox is a single staging directory tree plus its installed-files
// manifest and snapshot history (spec.md §3's Sandbox State).
type Sandbox struct {
	Root string
	Log  logx.Logger

	mu        sync.Mutex
	files     map[string]FileMeta
	snapshots []map[string]FileMeta
}

// New creates (or reuses) a sandbox rooted at root.
func New(root string, log logx.Logger) (*Sandbox, error) {
	if log == nil {
		log = logx.Nop{}
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &Sandbox{Root: root, Log: log, files: make(map[string]FileMeta)}, nil
}

// relTo computes path relative to anchor, the root the source tree was
// rooted at (spec.md §4.5: "compute its path relative to its root anchor").
func relTo(anchor, path string) (string, error) {
	rel, err := filepath.Rel(anchor, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", xerrors.Errorf("install %s: %w: escapes anchor %s", path, errs.Invalid, anchor)
	}
	return rel, nil
}

// InstallFiles copies each of paths (each anchored at anchor) into the
// sandbox, reproducing its relative path, creating parent directories,
// preserving mode, and attempting chown (silently downgraded to a debug
// log on permission failure). overwrite controls whether an existing
// destination file is replaced. If hooks is non-nil, pre_install_file and
// post_install_file hooks are dispatched around each copy.
func (s *Sandbox) InstallFiles(paths []string, anchor string, overwrite bool, pkg string, hooks HookRunner) error {
	for _, src := range paths {
		if err := s.installOne(src, anchor, overwrite, pkg, hooks); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sandbox) installOne(src, anchor string, overwrite bool, pkg string, hooks HookRunner) error {
	rel, err := relTo(anchor, src)
	if err != nil {
		return err
	}
	dest := filepath.Join(s.Root, rel)

	if hooks != nil {
		if err := hooks.RunHooks("pre_install_file", pkg, s.Root); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Lstat(dest); err == nil {
			return xerrors.Errorf("install %s: %w: already exists", dest, errs.Conflict)
		}
	}

	fi, err := os.Lstat(src)
	if err != nil {
		return xerrors.Errorf("install %s: %w: %v", src, errs.NotFound, err)
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := s.createSymlinkAt(dest, rel, target); err != nil {
			return err
		}
	} else {
		if err := copyFile(src, dest, fi.Mode()); err != nil {
			return err
		}
		s.chown(dest, fi)
		meta := FileMeta{Size: fi.Size(), ModTime: fi.ModTime(), Mode: fi.Mode()}
		s.mu.Lock()
		s.files[rel] = meta
		s.mu.Unlock()
	}

	if hooks != nil {
		if err := hooks.RunHooks("post_install_file", pkg, s.Root); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Chmod(mode.Perm())
}

// chown attempts to preserve the source file's owning uid/gid, downgrading
// a permission failure to a debug log rather than failing the install
// (spec.md §4.5, §7 Permission category).
func (s *Sandbox) chown(dest string, fi os.FileInfo) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	if err := unix.Chown(dest, int(st.Uid), int(st.Gid)); err != nil {
		s.Log.Debugf("chown %s: %v (%w, continuing)", dest, err, errs.Permission)
	}
}

// CreateSymlink records a symlink at linkname (relative to the sandbox
// root) pointing at target, replacing any existing file or symlink there.
func (s *Sandbox) CreateSymlink(target, linkname string) error {
	dest := filepath.Join(s.Root, linkname)
	return s.createSymlinkAt(dest, linkname, target)
}

func (s *Sandbox) createSymlinkAt(dest, rel, target string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if _, err := os.Lstat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return err
		}
	}
	if err := os.Symlink(target, dest); err != nil {
		return err
	}
	s.mu.Lock()
	s.files[rel] = FileMeta{SymlinkTarget: target}
	s.mu.Unlock()
	return nil
}

// RegisterTree walks every regular file and symlink already present under
// root (which must be inside the sandbox) and adds manifest entries for
// them, without copying anything. It exists for installs that land files
// in the sandbox by some means other than InstallFiles/CreateSymlink -
// chiefly the Builder's subprocess-driven "make install DESTDIR=..." step,
// which writes directly under the sandbox root rather than going through
// this package's per-file API.
func (s *Sandbox) RegisterTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			s.files[rel] = FileMeta{SymlinkTarget: target}
			return nil
		}
		s.files[rel] = FileMeta{Size: info.Size(), ModTime: info.ModTime(), Mode: info.Mode()}
		return nil
	})
}

// ListInstalledFiles returns the sandbox-relative paths currently tracked
// in the manifest.
func (s *Sandbox) ListInstalledFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	return out
}

// AuditResult reports which manifest entries are present, missing from
// disk, or symlinks.
type AuditResult struct {
	Installed []string
	Missing   []string
	Symlinks  []string
}

// Audit cross-checks the manifest against what's actually on disk.
func (s *Sandbox) Audit() AuditResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res AuditResult
	for rel, meta := range s.files {
		path := filepath.Join(s.Root, rel)
		if meta.IsSymlink() {
			res.Symlinks = append(res.Symlinks, rel)
		}
		if _, err := os.Lstat(path); err != nil {
			res.Missing = append(res.Missing, rel)
		} else {
			res.Installed = append(res.Installed, rel)
		}
	}
	return res
}

// Snapshot records a cheap copy of the current installed-files manifest
// (not the files themselves) onto the snapshot stack.
func (s *Sandbox) Snapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]FileMeta, len(s.files))
	for k, v := range s.files {
		cp[k] = v
	}
	s.snapshots = append(s.snapshots, cp)
}

// Rollback pops the most recent snapshot and deletes, from disk and from
// the manifest, every entry present now but absent from that snapshot. A
// rollback with no prior snapshot is a no-op. Entries present in the
// snapshot are never touched.
func (s *Sandbox) Rollback() error {
	s.mu.Lock()
	if len(s.snapshots) == 0 {
		s.mu.Unlock()
		return nil
	}
	snap := s.snapshots[len(s.snapshots)-1]
	s.snapshots = s.snapshots[:len(s.snapshots)-1]

	var toRemove []string
	for rel := range s.files {
		if _, ok := snap[rel]; !ok {
			toRemove = append(toRemove, rel)
		}
	}
	s.mu.Unlock()

	for _, rel := range toRemove {
		path := filepath.Join(s.Root, rel)
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			return xerrors.Errorf("rollback: remove %s: %v", path, err)
		}
		s.mu.Lock()
		delete(s.files, rel)
		s.mu.Unlock()
	}
	return nil
}

// Cleanup recursively removes the sandbox root and empties the manifest
// and snapshot stack.
func (s *Sandbox) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.Root); err != nil {
		return err
	}
	s.files = make(map[string]FileMeta)
	s.snapshots = nil
	return nil
}
