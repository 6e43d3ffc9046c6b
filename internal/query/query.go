// Package query implements the UseQuery reader of spec.md §4.12,
// supplemented from original_source/source/modules/query.py: parsing
// profiles/use.desc (global flag descriptions) and profiles/package.use/
// <pkg> (per-package flag=value overrides) across one or more repository
// roots, with a per-key JSON sidecar cache matching query.py's
// _load_cache/_save_cache. set_package_flag writes only into the
// sandbox's copy of package.use, never onto the real repository
// (spec.md §4.12).
package query

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
	"github.com/srcforge/srcpm/internal/sandbox"
)

// AuditEntry mirrors query.py's self.audit_history entries.
type AuditEntry struct {
	Timestamp string
	Action    string
	Package   string
}

// UseQuery reads USE-flag descriptions and per-package overrides from one
// or more repository roots, each holding a profiles/ directory.
type UseQuery struct {
	RepoRoots []string
	CacheDir  string
	Sandbox   *sandbox.Sandbox // optional; required by SetPackageFlag

	audit []AuditEntry
}

func (q *UseQuery) recordAudit(action, pkg string) {
	q.audit = append(q.audit, AuditEntry{Timestamp: time.Now().UTC().Format(time.RFC3339), Action: action, Package: pkg})
}

// AuditHistory returns every query recorded so far.
func (q *UseQuery) AuditHistory() []AuditEntry { return q.audit }

func (q *UseQuery) cachePath(key string) string {
	return filepath.Join(q.CacheDir, key+".json")
}

func (q *UseQuery) cacheGet(key string, v interface{}) bool {
	if q.CacheDir == "" {
		return false
	}
	data, err := os.ReadFile(q.cachePath(key))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (q *UseQuery) cacheSet(key string, v interface{}) {
	if q.CacheDir == "" {
		return
	}
	if err := os.MkdirAll(q.CacheDir, 0755); err != nil {
		return
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return
	}
	os.WriteFile(q.cachePath(key), data, 0644)
}

// ListAllFlags returns the union of every flag named in each repo root's
// profiles/use.desc, sorted, cached under the key "all_flags".
func (q *UseQuery) ListAllFlags() ([]string, error) {
	var cached []string
	if q.cacheGet("all_flags", &cached) {
		return cached, nil
	}
	set := make(map[string]bool)
	for _, root := range q.RepoRoots {
		path := filepath.Join(root, "profiles", "use.desc")
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields := strings.Fields(line)
			set[fields[0]] = true
		}
		f.Close()
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	q.cacheSet("all_flags", out)
	return out, nil
}

// PackageFlags returns the flag=value overrides declared in
// profiles/package.use/<pkg> across every repo root (later roots win on
// conflicting keys).
func (q *UseQuery) PackageFlags(pkg string) (map[string]string, error) {
	result := make(map[string]string)
	for _, root := range q.RepoRoots {
		path := filepath.Join(root, "profiles", "package.use", pkg)
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.Contains(line, "=") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			result[parts[0]] = parts[1]
		}
		f.Close()
	}
	q.recordAudit("list_package_flags", pkg)
	return result, nil
}

// CheckFlagStatus returns the status field of flag's use.desc line,
// "unknown" if that line has no status field, or "" if undeclared in any
// repo root.
func (q *UseQuery) CheckFlagStatus(flag string) string {
	for _, root := range q.RepoRoots {
		path := filepath.Join(root, "profiles", "use.desc")
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			fields := strings.Fields(sc.Text())
			if len(fields) == 0 || fields[0] != flag {
				continue
			}
			f.Close()
			if len(fields) > 1 {
				q.recordAudit("check_flag_status", flag)
				return fields[1]
			}
			return "unknown"
		}
		f.Close()
	}
	return ""
}

// SetPackageFlag writes flag=value into the sandbox's copy of
// profiles/package.use/<pkg>, never the real repository (spec.md §4.12).
func (q *UseQuery) SetPackageFlag(pkg, flag, value string) error {
	if q.Sandbox == nil {
		return xerrors.Errorf("set_package_flag %s/%s: %w: no sandbox configured", pkg, flag, errs.Invalid)
	}
	path := filepath.Join(q.Sandbox.Root, "package.use", pkg)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	existing := make(map[string]string)
	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || !strings.Contains(line, "=") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			existing[parts[0]] = parts[1]
		}
	}
	existing[flag] = value

	keys := make([]string, 0, len(existing))
	for k := range existing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k + "=" + existing[k] + "\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return err
	}
	q.recordAudit("set_package_flag", pkg)
	return nil
}

// SuggestFlags returns every globally known flag not already overridden
// for pkg.
func (q *UseQuery) SuggestFlags(pkg string) ([]string, error) {
	pkgFlags, err := q.PackageFlags(pkg)
	if err != nil {
		return nil, err
	}
	all, err := q.ListAllFlags()
	if err != nil {
		return nil, err
	}
	var suggested []string
	for _, f := range all {
		if _, ok := pkgFlags[f]; !ok {
			suggested = append(suggested, f)
		}
	}
	q.recordAudit("suggest_flags", pkg)
	return suggested, nil
}
