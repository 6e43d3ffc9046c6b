// Package info implements the status/details read-side projections of
// spec.md §4.12: composing a package's recipe, USE-flag resolution, and
// recorded hashes into one result, rendered as json, yaml, csv, markdown,
// or table. ExportAll supplements spec.md from original_source/source/
// modules/generator.py, which exports the same formats for every
// installed package at once rather than a single one.
package info

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/flags"
	"github.com/srcforge/srcpm/internal/installdb"
)

// Formats lists the renderers details and ExportAll accept.
var Formats = map[string]bool{
	"json":     true,
	"yaml":     true,
	"csv":      true,
	"markdown": true,
	"table":    true,
}

// Status summarizes whether a package is installed and what it would
// resolve to if rebuilt.
type Status struct {
	Name        string `json:"name" yaml:"name"`
	Installed   bool   `json:"installed" yaml:"installed"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	BuildSystem string `json:"build_system,omitempty" yaml:"build_system,omitempty"`
}

// Details composes a recipe's USE-flag resolution and recorded hashes.
type Details struct {
	Name      string            `json:"name" yaml:"name"`
	Version   string            `json:"version" yaml:"version"`
	Installed bool              `json:"installed" yaml:"installed"`
	UseFlags  map[string]bool   `json:"use_flags,omitempty" yaml:"use_flags,omitempty"`
	Hashes    map[string]string `json:"hashes,omitempty" yaml:"hashes,omitempty"`
	Deps      []string          `json:"deps,omitempty" yaml:"deps,omitempty"`
}

// Info composes package status/details out of the installed database, a
// recipe provider, and the USE-flag store.
type Info struct {
	DB    *installdb.DB
	Flags *flags.Store
}

// Status reports whether name is installed and, when known, its recipe's
// version/build_system.
func (i *Info) Status(name string) (Status, error) {
	st := Status{Name: name, Installed: i.DB.IsInstalled(name)}
	r, err := i.DB.GetRecipe(name)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return st, nil
		}
		return st, err
	}
	st.Version = r.Version
	st.BuildSystem = r.BuildSystem
	return st, nil
}

// Details composes the full projection for name and renders it as
// format.
func (i *Info) Details(name, format string) (string, error) {
	d, err := i.details(name)
	if err != nil {
		return "", err
	}
	return render(format, []Details{d})
}

func (i *Info) details(name string) (Details, error) {
	r, err := i.DB.GetRecipe(name)
	if err != nil {
		return Details{}, err
	}
	d := Details{
		Name:      r.Name,
		Version:   r.Version,
		Installed: i.DB.IsInstalled(name),
		Hashes:    r.Hashes,
	}
	if i.Flags != nil {
		d.UseFlags = make(map[string]bool, len(r.UseFlags))
		for _, f := range r.UseFlags {
			d.UseFlags[f] = i.Flags.IsEnabled(name, f)
		}
	}
	d.Deps = r.AllDeps(d.UseFlags)
	return d, nil
}

// ExportAll renders every installed package's details in one document,
// supplemented from generator.py's list-export behavior.
func (i *Info) ExportAll(format string) (string, error) {
	names := i.DB.GetInstalledPackages()
	sort.Strings(names)
	all := make([]Details, 0, len(names))
	for _, name := range names {
		d, err := i.details(name)
		if err != nil {
			continue
		}
		all = append(all, d)
	}
	return render(format, all)
}

func render(format string, items []Details) (string, error) {
	if !Formats[format] {
		return "", xerrors.Errorf("render: %w: unknown format %q", errs.Invalid, format)
	}
	switch format {
	case "json":
		data, err := json.MarshalIndent(items, "", "  ")
		return string(data), err
	case "yaml":
		data, err := yaml.Marshal(items)
		return string(data), err
	case "csv":
		return renderCSV(items)
	case "markdown", "table":
		return renderTable(items, format == "markdown")
	}
	return "", xerrors.Errorf("render: %w: unknown format %q", errs.Invalid, format)
}

func renderCSV(items []Details) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"name", "version", "installed", "deps"}); err != nil {
		return "", err
	}
	for _, d := range items {
		if err := w.Write([]string{d.Name, d.Version, fmt.Sprintf("%v", d.Installed), fmt.Sprint(d.Deps)}); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// renderTable uses tablewriter for both the plain table and markdown
// renderers, a strict simplification over hand-rolled string building.
func renderTable(items []Details, markdown bool) (string, error) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Name", "Version", "Installed", "Deps"})
	if markdown {
		table.SetCenterSeparator("|")
		table.SetAutoFormatHeaders(false)
	}
	for _, d := range items {
		table.Append([]string{d.Name, d.Version, fmt.Sprintf("%v", d.Installed), fmt.Sprint(d.Deps)})
	}
	table.Render()
	return buf.String(), nil
}
