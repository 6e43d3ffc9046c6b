// Package buildsvc implements the Builder of spec.md §4.7: a state machine
// over a single recipe that selects a build backend by recipe metadata,
// runs configure/compile/install redirected into a staging sandbox, and
// finally promotes the staged prefix to the real destination.
package buildsvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/hooks"
	"github.com/srcforge/srcpm/internal/logx"
	"github.com/srcforge/srcpm/internal/recipe"
	"github.com/srcforge/srcpm/internal/sandbox"
)

// Builder drives one recipe through prepare -> pre_configure -> configure/
// compile -> post_build -> pre_install -> staged install -> post_install ->
// promote (spec.md §4.7).
type Builder struct {
	Jobs        int
	Timeout     time.Duration // per-subprocess; 0 = no timeout
	DryRun      bool
	Log         logx.Logger
	Hooks       *hooks.Dispatcher
	SandboxRoot string // parent dir disjoint per-package sandboxes are created under
}

func (b *Builder) log() logx.Logger {
	if b.Log != nil {
		return b.Log
	}
	return logx.Nop{}
}

// Result describes where a completed build's staged files ended up before
// promotion, for the caller to hand to the hash/binpkg/sandbox stages.
type Result struct {
	Sandbox       *sandbox.Sandbox
	InstallPrefix string // absolute path within the sandbox that received the install
	BuildRoot     string // absolute path within the sandbox holding the copied sources
}

// Build runs the full pipeline for r: sources at sourceDir are copied into
// a fresh disjoint sandbox, built via the backend named by
// r.BuildSystem, staged, and finally promoted to destPath.
func (b *Builder) Build(ctx context.Context, r *recipe.Recipe, sourceDir, destPath string) (*Result, error) {
	backend, err := lookupBackend(r.BuildSystem)
	if err != nil {
		return nil, xerrors.Errorf("build %s: %w", r.Name, err)
	}

	sb, buildRoot, installPrefix, err := b.prepareSandbox(r, sourceDir)
	if err != nil {
		return nil, err
	}

	if b.Hooks != nil {
		if err := b.Hooks.RunHooks("pre_configure", r.Name, sb.Root); err != nil {
			return nil, err
		}
	}

	configureSteps := backend.ConfigureAndCompile(buildRoot, installPrefix, b.Jobs)
	if err := b.runSteps(ctx, configureSteps, buildRoot, nil); err != nil {
		return nil, xerrors.Errorf("build %s: configure/compile: %w", r.Name, err)
	}

	if b.Hooks != nil {
		if err := b.Hooks.RunHooks("post_build", r.Name, sb.Root); err != nil {
			return nil, err
		}
		if err := b.Hooks.RunHooks("pre_install", r.Name, sb.Root); err != nil {
			return nil, err
		}
	}

	installSteps := backend.Install(buildRoot, installPrefix, sb.Root, b.Jobs)
	if err := b.runSteps(ctx, installSteps, buildRoot, nil); err != nil {
		return nil, xerrors.Errorf("build %s: install: %w", r.Name, err)
	}

	// The install step above writes through a subprocess (e.g. "make
	// install DESTDIR=..."), bypassing Sandbox.InstallFiles, so the
	// installed-files manifest needs populating from what actually landed
	// on disk before anything downstream (hash, binpkg, rollback) can see it.
	if !b.DryRun {
		if err := sb.RegisterTree(filepath.Join(sb.Root, installPrefix)); err != nil {
			return nil, xerrors.Errorf("build %s: register staged files: %w", r.Name, err)
		}
	}

	if b.Hooks != nil {
		if err := b.Hooks.RunHooks("post_install", r.Name, sb.Root); err != nil {
			return nil, err
		}
	}

	stagedPrefix := filepath.Join(sb.Root, installPrefix)
	if err := b.promote(stagedPrefix, destPath); err != nil {
		return nil, xerrors.Errorf("build %s: promote: %w", r.Name, err)
	}

	return &Result{Sandbox: sb, InstallPrefix: installPrefix, BuildRoot: buildRoot}, nil
}

// prepareSandbox creates the sandbox root, build root, and install prefix,
// deep-copying sourceDir into sandbox/src, wiping any prior copy (spec.md
// §4.7's prepare_sandbox). Disjoint per-package sandbox directories are
// derived from a unique os.MkdirTemp suffix (spec.md §9's open question,
// resolved in SPEC_FULL.md in favor of disjoint roots).
func (b *Builder) prepareSandbox(r *recipe.Recipe, sourceDir string) (sb *sandbox.Sandbox, buildRoot, installPrefix string, err error) {
	if err := os.MkdirAll(b.SandboxRoot, 0755); err != nil {
		return nil, "", "", err
	}
	root, err := os.MkdirTemp(b.SandboxRoot, r.Name+"-*")
	if err != nil {
		return nil, "", "", err
	}
	sb, err = sandbox.New(root, b.log())
	if err != nil {
		return nil, "", "", err
	}

	buildRoot = filepath.Join(sb.Root, "src")
	if err := os.RemoveAll(buildRoot); err != nil {
		return nil, "", "", err
	}
	if err := copyTree(sourceDir, buildRoot); err != nil {
		return nil, "", "", err
	}

	installPrefix = "/usr"
	if err := os.MkdirAll(filepath.Join(sb.Root, installPrefix), 0755); err != nil {
		return nil, "", "", err
	}
	return sb, buildRoot, installPrefix, nil
}

// promote replaces destPath with the staged prefix: the sandbox's
// separation guarantees a failed build never reaches destPath, so this
// only runs once everything above succeeded (spec.md §4.7).
func (b *Builder) promote(stagedPrefix, destPath string) error {
	if b.DryRun {
		b.log().Infof("dry-run: promote %s -> %s", stagedPrefix, destPath)
		return nil
	}
	if _, err := os.Stat(destPath); err == nil {
		if err := os.RemoveAll(destPath); err != nil {
			return err
		}
	}
	return copyTree(stagedPrefix, destPath)
}

// copyTree recursively copies src to dst, preserving file modes and
// symlinks, adapted from the teacher's cpscan/cpFileInfo copy-tree walker
// in internal/build/build.go into a plain-filesystem (non-squashfs) copy.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(link, target)
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		default:
			return copyFileMode(path, target, info.Mode())
		}
	})
}

func copyFileMode(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
