package srcpm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseVersion(t *testing.T) {
	for _, tt := range []struct {
		stem string
		want PackageVersion
	}{
		{
			stem: "less-530-amd64",
			want: PackageVersion{Name: "less", Version: "530", Arch: "amd64"},
		},
		{
			stem: "gcc-i686-8.2.0-amd64.tar.gz",
			want: PackageVersion{Name: "gcc-i686", Version: "8.2.0", Arch: "amd64"},
		},
		{
			stem: "glibc-i686-host-2.27-amd64.tar.xz",
			want: PackageVersion{Name: "glibc-i686-host", Version: "2.27", Arch: "amd64"},
		},
		{
			stem: "/var/cache/srcpm/binpkg/foo-1.0-x86_64.pkginfo",
			want: PackageVersion{Name: "foo", Version: "1.0", Arch: "x86_64"},
		},
	} {
		t.Run(tt.stem, func(t *testing.T) {
			got, err := ParseVersion(tt.stem)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseVersion(%q): unexpected diff (-want +got):\n%s", tt.stem, diff)
			}
		})
	}
}

func TestParseVersionMalformed(t *testing.T) {
	for _, stem := range []string{"", "onlyname", "name-version"} {
		if _, err := ParseVersion(stem); err == nil {
			t.Errorf("ParseVersion(%q): got nil error, want error", stem)
		}
	}
}

func TestCompareVersions(t *testing.T) {
	for _, tt := range []struct {
		a, b string
		want int
	}{
		{a: "1.2.0", b: "1.10.0", want: -1},
		{a: "2.27", b: "2.27", want: 0},
		{a: "3.0.0", b: "2.9.9", want: 1},
	} {
		if got := CompareVersions(tt.a, tt.b); sign(got) != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want sign %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
