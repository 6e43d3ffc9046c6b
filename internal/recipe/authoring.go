package recipe

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/history"
)

// Stages lists the recognized hook stages every scaffolded recipe gets a
// stub script for.
var Stages = []string{
	"pre_configure", "post_build", "pre_install", "post_install",
	"pre_remove", "post_remove", "pre_build",
}

const recipeTemplate = `name: {{ .Name }}
version: {{ .Version }}
source:
  url: ""
  sha256: ""
build_system: {{ .BuildSystem }}
build_deps: {}
runtime_deps: {}
optional_deps: {}
use_flags: []
hooks:
{{- range .Stages }}
  {{ . }}: []
{{- end }}
`

const hookStubTemplate = `#!/bin/sh
# {{ .Stage }} hook for {{ .Name }} {{ .Version }}.
set -e
`

const readmeTemplate = `# {{ .Name }}

Version: {{ .Version }}
Build system: {{ .BuildSystem | upper }}

Recipe scaffolded by srcpm create.
`

// Authoring scaffolds and validates recipe directories. History and Client
// are explicit collaborators (spec.md §9: no ambient singleton).
type Authoring struct {
	History *history.Log
	Client  *http.Client // used for ValidateRecipe's HEAD probe; defaults if nil
}

// CreateBaseRecipe scaffolds <base>/<name>/ with a skeletal recipe.yaml,
// one hooks/<stage>.sh stub per recognized stage, a README, and a freshly
// initialized git repository with an initial commit (spec.md §4.11).
func (a *Authoring) CreateBaseRecipe(base, name, version, buildSystem string) (string, error) {
	if !BuildSystems[buildSystem] {
		return "", xerrors.Errorf("create recipe %s: %w: unrecognized build_system %q", name, errs.Invalid, buildSystem)
	}
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(filepath.Join(dir, "hooks"), 0755); err != nil {
		return "", err
	}

	funcs := sprig.TxtFuncMap()
	data := struct {
		Name, Version, BuildSystem string
		Stages                     []string
	}{name, version, buildSystem, Stages}

	if err := renderFile(filepath.Join(dir, "recipe.yaml"), recipeTemplate, funcs, data, 0644); err != nil {
		return "", err
	}
	if err := renderFile(filepath.Join(dir, "README.md"), readmeTemplate, funcs, data, 0644); err != nil {
		return "", err
	}
	for _, stage := range Stages {
		hookData := struct{ Stage, Name, Version string }{stage, name, version}
		path := filepath.Join(dir, "hooks", stage+".sh")
		if err := renderFile(path, hookStubTemplate, funcs, hookData, 0755); err != nil {
			return "", err
		}
	}

	if err := initVCS(dir, name, version); err != nil {
		return "", err
	}

	if a.History != nil {
		a.History.Record("create_recipe", name, dir, "ok")
	}
	return dir, nil
}

func renderFile(path, tmplText string, funcs template.FuncMap, data interface{}, mode os.FileMode) error {
	tmpl, err := template.New(filepath.Base(path)).Funcs(funcs).Parse(tmplText)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, data)
}

// initVCS initializes a git repository at dir and creates an initial
// commit of its scaffolded contents, via go-git/v5 in place of shelling
// out to `git init` (spec.md §4.11's "initialize a version-control
// repository").
func initVCS(dir, name, version string) error {
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return xerrors.Errorf("git init %s: %v", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if _, err := wt.Add("."); err != nil {
		return err
	}
	_, err = wt.Commit("scaffold "+name+" "+version, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "srcpm",
			Email: "srcpm@localhost",
			When:  commitTime(),
		},
	})
	return err
}

// commitTime is isolated so it's the one non-deterministic call in this
// file.
func commitTime() time.Time { return time.Now() }

// ValidateRecipe checks required fields, probes source.url with a HEAD
// request when present, and validates source.sha256's length (spec.md
// §4.11).
func (a *Authoring) ValidateRecipe(recipeFile string) error {
	r, err := Load(recipeFile)
	if err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Source.URL != "" {
		client := a.Client
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Second}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.Source.URL, nil)
		if err != nil {
			return xerrors.Errorf("validate %s: %w: %v", r.Name, errs.Invalid, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return xerrors.Errorf("validate %s: HEAD %s: %w: %v", r.Name, r.Source.URL, errs.External, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return xerrors.Errorf("validate %s: HEAD %s: %w: status %d", r.Name, r.Source.URL, errs.External, resp.StatusCode)
		}
	}
	return nil
}
