package buildsvc

// mesonBackend is grounded on the teacher's internal/build/buildmeson.go.
type mesonBackend struct{}

func (mesonBackend) ConfigureAndCompile(sourceDir, installPrefix string, jobs int) [][]string {
	return [][]string{
		{
			"meson",
			"--prefix=" + installPrefix,
			"--sysconfdir=/etc",
			".", sourceDir,
		},
		{"ninja", "-v", "-j", jobsFlag(jobs)},
	}
}

func (mesonBackend) Install(sourceDir, installPrefix, destdir string, jobs int) [][]string {
	return [][]string{
		{"/bin/sh", "-c", "DESTDIR=" + destdir + " ninja -v -j " + jobsFlag(jobs) + " install"},
	}
}
