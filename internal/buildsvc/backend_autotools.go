package buildsvc

// autotoolsBackend grounds the ./configure && make && make install
// sequence implicit in the teacher's internal/build/build.go command
// assembly (the generic C builder, before any build-system-specific
// flags).
type autotoolsBackend struct{}

func (autotoolsBackend) ConfigureAndCompile(sourceDir, installPrefix string, jobs int) [][]string {
	return [][]string{
		{
			sourceDir + "/configure",
			"--prefix=" + installPrefix,
			"--disable-dependency-tracking",
		},
		{"make", "-j" + jobsFlag(jobs)},
	}
}

func (autotoolsBackend) Install(sourceDir, installPrefix, destdir string, jobs int) [][]string {
	return [][]string{
		{"make", "install", "DESTDIR=" + destdir},
	}
}
