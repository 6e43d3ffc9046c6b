package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/srcforge/srcpm/internal/buildsvc"
	"github.com/srcforge/srcpm/internal/env"
	"github.com/srcforge/srcpm/internal/recipe"
)

// loadRecipeFile reads <RecipeRoot>/<name>/recipe.yaml, the on-disk layout
// internal/recipe.Authoring scaffolds (spec.md §6). Unlike a.db.GetRecipe,
// this works for a package that has never been installed.
func loadRecipeFile(name string) (*recipe.Recipe, error) {
	return recipe.Load(filepath.Join(env.RecipeRoot, name, "recipe.yaml"))
}

// installPackage drives one package through the full pipeline named in
// spec.md §2's data-flow diagram, in this order: cache fetch and source
// hash verification (PrepareSource) -> Builder, which runs hook dispatch,
// sandbox staging and real filesystem promotion -> installed-db update ->
// binary-package store -> history append. It
// is the CLI-level glue between the resolver's output order and every
// other component; spec.md §1 keeps the CLI a "thin adapter", so this is
// orchestration, not new domain logic.
func installPackage(a *app, pkg, destRoot, arch string) error {
	r, err := loadRecipeFile(pkg)
	if err != nil {
		a.hist.Record("install", pkg, err.Error(), "error: "+err.Error())
		return err
	}
	if err := r.Validate(); err != nil {
		a.hist.Record("install", pkg, err.Error(), "error: "+err.Error())
		return err
	}

	scratch, err := os.MkdirTemp(env.SandboxRoot, pkg+"-fetch-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	srcDir, err := buildsvc.PrepareSource(a.cache, r, filepath.Join(env.RecipeRoot, pkg, "src"), scratch)
	if err != nil {
		a.hist.Record("install", pkg, err.Error(), "error: "+err.Error())
		return err
	}

	destPath := filepath.Join(destRoot, "usr")
	result, err := a.builder.Build(a.ctx, r, srcDir, destPath)
	if err != nil {
		a.hist.Record("install", pkg, err.Error(), "error: "+err.Error())
		return err
	}

	files := result.Sandbox.ListInstalledFiles()
	if err := a.db.Put(pkg, *r, files); err != nil {
		return err
	}

	if arch != "" {
		stagedPrefix := filepath.Join(result.Sandbox.Root, result.InstallPrefix)
		if _, err := a.binpkg.CreateBinpkg(pkg, r.Version, stagedPrefix, arch, "gz"); err != nil {
			// Producing a replayable binpkg is a convenience, not a
			// requirement for the install itself to have succeeded.
			a.log.Warnf("create_binpkg %s: %v", pkg, err)
		}
	}

	a.hist.Record("install", pkg, fmt.Sprintf("staged %d files to %s", len(files), destPath), "ok")
	return result.Sandbox.Cleanup()
}

// installOrder builds every package in order that isn't already installed
// (or every package, when force is set), stopping at the first failure -
// a later package's build commonly depends on an earlier one actually
// having landed on destRoot.
func installOrder(a *app, order []string, destRoot, arch string, force bool) error {
	for _, pkg := range order {
		if a.db.IsInstalled(pkg) && !force {
			continue
		}
		if err := installPackage(a, pkg, destRoot, arch); err != nil {
			return fmt.Errorf("installing %s: %w", pkg, err)
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// destRootFrom resolves the --prefix flag to the root that staged install
// prefixes are promoted under, defaulting to "/" (the real filesystem),
// matching spec.md §4.7's promotion step.
func destRootFrom(prefix string) string {
	if prefix == "" {
		return "/"
	}
	return prefix
}
