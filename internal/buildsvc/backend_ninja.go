package buildsvc

// ninjaBackend drives a pre-generated build.ninja directly, adapted from
// the teacher's internal/build/buildproto.go (the teacher also drives
// protobuf-described builds via a generated build.ninja rather than
// invoking cmake/meson itself).
type ninjaBackend struct{}

func (ninjaBackend) ConfigureAndCompile(sourceDir, installPrefix string, jobs int) [][]string {
	return [][]string{
		{"ninja", "-C", sourceDir, "-v", "-j", jobsFlag(jobs)},
	}
}

func (ninjaBackend) Install(sourceDir, installPrefix, destdir string, jobs int) [][]string {
	return [][]string{
		{"/bin/sh", "-c", "DESTDIR=" + destdir + " ninja -C " + sourceDir + " -v -j " + jobsFlag(jobs) + " install"},
	}
}
