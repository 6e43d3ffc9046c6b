package buildsvc

import (
	"strconv"

	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
)

// backend is the tagged-union dispatch over recipe.Recipe.BuildSystem
// (spec.md §9's Design Notes: "a tagged union over the six build_system
// values, with a small polymorphic trait carrying configure/compile/
// install behaviors"). Each implementation assembles its steps with
// absolute paths; --prefix/install-prefix is always the staging
// install_prefix, and compile steps receive a -j <jobs> parallelism hint
// (spec.md §4.7).
type backend interface {
	// ConfigureAndCompile returns the configure+compile command steps.
	ConfigureAndCompile(sourceDir, installPrefix string, jobs int) [][]string
	// Install returns the install command steps, installing into destdir.
	Install(sourceDir, installPrefix, destdir string, jobs int) [][]string
}

// backends maps recognized build_system values to their backend.
var backends = map[string]backend{
	"autotools": autotoolsBackend{},
	"cmake":     cmakeBackend{},
	"meson":     mesonBackend{},
	"ninja":     ninjaBackend{},
	"rust":      rustBackend{},
	"python":    pythonBackend{},
}

func lookupBackend(buildSystem string) (backend, error) {
	b, ok := backends[buildSystem]
	if !ok {
		return nil, xerrors.Errorf("%w: unrecognized build_system %q", errs.Invalid, buildSystem)
	}
	return b, nil
}

func jobsFlag(jobs int) string {
	if jobs <= 0 {
		jobs = 1
	}
	return strconv.Itoa(jobs)
}
