package buildsvc

import (
	"os"
	"path/filepath"
)

// pythonBackend is grounded on the teacher's internal/build/buildpython.go.
// spec.md §4.7/§9: "setup.py build" is preferred when a setup.py is
// present in the source tree; otherwise falls back to
// "pip install . --no-deps --prefix <install_prefix>" — this precedence
// must be preserved, never the reverse.
type pythonBackend struct{}

func hasSetupPy(sourceDir string) bool {
	_, err := os.Stat(filepath.Join(sourceDir, "setup.py"))
	return err == nil
}

func (pythonBackend) ConfigureAndCompile(sourceDir, installPrefix string, jobs int) [][]string {
	if hasSetupPy(sourceDir) {
		return [][]string{
			{"python3", "setup.py", "build"},
		}
	}
	// pip has no separate build phase distinct from its install; the
	// actual work happens in Install.
	return nil
}

func (pythonBackend) Install(sourceDir, installPrefix, destdir string, jobs int) [][]string {
	if hasSetupPy(sourceDir) {
		return [][]string{
			{
				"python3", "setup.py", "install",
				"--prefix=" + installPrefix,
				"--root=" + destdir,
			},
		}
	}
	return [][]string{
		{
			"pip", "install", ".", "--no-deps",
			"--prefix", filepath.Join(destdir, installPrefix),
		},
	}
}
