package srcpm

// Architectures contains one entry for each architecture identifier recipes
// and binary packages may be built for. Nothing in this module consults it:
// ParseVersion and the rest of the pipeline accept an arch field that is
// absent from this list, and the list is not exhaustive.
var Architectures = map[string]bool{
	"amd64":   true,
	"i686":    true,
	"x86_64":  true,
	"aarch64": true,
	"arm64":   true,
}
