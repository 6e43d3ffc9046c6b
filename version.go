package srcpm

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// PackageVersion identifies one build of one package: the binary-package
// stem is always "<name>-<version>-<arch>" (spec.md §6).
type PackageVersion struct {
	Name    string
	Version string
	Arch    string
}

func (pv PackageVersion) String() string {
	return pv.Name + "-" + pv.Version + "-" + pv.Arch
}

// ParseVersion splits a binary-package stem (optionally with a .tar.gz or
// .tar.xz suffix, or a bare filename derived from one) into its three
// components. The name may itself contain hyphens, so parsing works from the
// right: the last hyphen-separated field is the architecture, the one before
// it is the version, and everything remaining is the name.
func ParseVersion(stem string) (PackageVersion, error) {
	stem = strings.TrimSuffix(stem, "/")
	if idx := strings.LastIndexByte(stem, '/'); idx > -1 {
		stem = stem[idx+1:]
	}
	for _, ext := range []string{".tar.gz", ".tar.xz", ".pkginfo"} {
		stem = strings.TrimSuffix(stem, ext)
	}
	parts := strings.Split(stem, "-")
	if len(parts) < 3 {
		return PackageVersion{}, fmt.Errorf("malformed package stem %q: want <name>-<version>-<arch>", stem)
	}
	n := len(parts)
	return PackageVersion{
		Name:    strings.Join(parts[:n-2], "-"),
		Version: parts[n-2],
		Arch:    parts[n-1],
	}, nil
}

// CompareVersions orders two upstream version strings. Versions already in
// semver form compare via golang.org/x/mod/semver; anything else is
// canonicalized by prefixing "v" (most upstream versions, e.g. "2.27", are
// valid semver once "v"-prefixed) and falls back to a lexical compare only
// if that still doesn't parse as valid semver.
func CompareVersions(a, b string) int {
	va, vb := canonicalSemver(a), canonicalSemver(b)
	if semver.IsValid(va) && semver.IsValid(vb) {
		return semver.Compare(va, vb)
	}
	return strings.Compare(a, b)
}

func canonicalSemver(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
