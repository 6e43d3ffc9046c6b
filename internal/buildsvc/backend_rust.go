package buildsvc

import "path/filepath"

// rustBackend is grounded on the teacher's internal/build/buildc.go
// (generalized C builder shape: configure-equivalent, then a build step,
// then an install step), adapted to cargo's own notion of those three
// phases since cargo has no separate configure step. cargo has no DESTDIR
// convention, so unlike the DESTDIR-capable backends, Install targets the
// destdir/installPrefix join directly.
type rustBackend struct{}

func (rustBackend) ConfigureAndCompile(sourceDir, installPrefix string, jobs int) [][]string {
	return [][]string{
		{"cargo", "build", "--release", "--jobs", jobsFlag(jobs), "--manifest-path", sourceDir + "/Cargo.toml"},
	}
}

func (rustBackend) Install(sourceDir, installPrefix, destdir string, jobs int) [][]string {
	return [][]string{
		{
			"cargo", "install",
			"--path", sourceDir,
			"--root", filepath.Join(destdir, installPrefix),
			"--offline",
		},
	}
}
