package buildsvc

// cmakeBackend is grounded file-for-file on the teacher's
// internal/build/buildcmake.go: cmake generating Ninja build files, then
// ninja to compile and install.
type cmakeBackend struct{}

func (cmakeBackend) ConfigureAndCompile(sourceDir, installPrefix string, jobs int) [][]string {
	return [][]string{
		{
			"cmake", sourceDir,
			"-DCMAKE_INSTALL_PREFIX:PATH=" + installPrefix,
			"-DCMAKE_VERBOSE_MAKEFILE:BOOL=ON",
			"-G", "Ninja",
		},
		{"ninja", "-v", "-j", jobsFlag(jobs)},
	}
}

func (cmakeBackend) Install(sourceDir, installPrefix, destdir string, jobs int) [][]string {
	return [][]string{
		{"/bin/sh", "-c", "DESTDIR=" + destdir + " ninja -v -j " + jobsFlag(jobs) + " install"},
	}
}
