// Package remover implements the Remover of spec.md §4.8: a
// reverse-dependency-guarded uninstall against the staging sandbox, with
// snapshot/rollback on failure.
package remover

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/hooks"
	"github.com/srcforge/srcpm/internal/history"
	"github.com/srcforge/srcpm/internal/installdb"
	"github.com/srcforge/srcpm/internal/logx"
	"github.com/srcforge/srcpm/internal/sandbox"
)

// Remover uninstalls packages from the Installed Database against a
// staging sandbox, guarded by reverse dependencies.
type Remover struct {
	DB      *installdb.DB
	Sandbox *sandbox.Sandbox
	Hooks   *hooks.Dispatcher
	History *history.Log
	Log     logx.Logger
}

func (r *Remover) log() logx.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logx.Nop{}
}

// RemovePackage removes pkg (spec.md §4.8). It returns false without
// error when reverse dependencies block the removal and force is not set
// (spec.md's Conflict category, non-fatal to the caller's control flow:
// the scenario in spec.md §8 #5 expects a plain false, not a panic-worthy
// error). Any failure between the reverse-dependency check and the
// installed-db update triggers a sandbox rollback and a failure history
// entry.
func (r *Remover) RemovePackage(pkg string, force bool) (bool, error) {
	r.Sandbox.Snapshot()

	dependents := r.DB.Dependents(pkg)
	if len(dependents) > 0 && !force {
		if r.History != nil {
			r.History.Record("remove", pkg, "blocked by dependents: "+strings.Join(dependents, ","), "error: "+errs.Conflict.Error())
		}
		return false, nil
	}

	removed, err := r.removeLocked(pkg)
	if err != nil {
		if rbErr := r.Sandbox.Rollback(); rbErr != nil {
			r.log().Errorf("remove %s: rollback failed: %v", pkg, rbErr)
		}
		if r.History != nil {
			r.History.Record("remove", pkg, strings.Join(removed, ","), "error: "+err.Error())
		}
		return false, nil
	}

	if r.History != nil {
		r.History.Record("remove", pkg, strings.Join(removed, ","), "ok")
	}
	return true, nil
}

func (r *Remover) removeLocked(pkg string) (removed []string, err error) {
	if r.Hooks != nil {
		if err := r.Hooks.RunHooks("pre_remove", pkg, r.Sandbox.Root); err != nil {
			return nil, err
		}
	}

	files, err := r.DB.GetFiles(pkg)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		path := filepath.Join(r.Sandbox.Root, f)
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			r.log().Warnf("remove %s: %s: %v (continuing)", pkg, f, err)
			continue
		}
		removed = append(removed, f)
	}

	if r.Hooks != nil {
		if err := r.Hooks.RunHooks("post_remove", pkg, r.Sandbox.Root); err != nil {
			return removed, err
		}
	}

	if err := r.DB.RemovePackage(pkg); err != nil {
		return removed, xerrors.Errorf("remove %s: updating installed db: %v", pkg, err)
	}
	return removed, nil
}

// RemovePackages removes each of pkgs, never short-circuiting on an
// individual failure, and returns a map of package -> success.
func (r *Remover) RemovePackages(pkgs []string, force bool) map[string]bool {
	results := make(map[string]bool, len(pkgs))
	for _, pkg := range pkgs {
		ok, err := r.RemovePackage(pkg, force)
		if err != nil {
			r.log().Errorf("remove %s: %v", pkg, err)
		}
		results[pkg] = ok
	}
	return results
}
