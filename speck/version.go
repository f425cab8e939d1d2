package speck

// Version information for the speck runtime.
const (
	// Version is the current version of the runtime.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides information about the runtime.
type Info struct {
	// Version is the runtime version string.
	Version string

	// ImportPath is the path generated code imports the runtime from.
	ImportPath string
}

// GetInfo returns information about the runtime.
//
// Example:
//
//	info := speck.GetInfo()
//	fmt.Printf("speck %s (%s)\n", info.Version, info.ImportPath)
func GetInfo() Info {
	return Info{
		Version:    Version,
		ImportPath: "github.com/kolkov/speck/speck",
	}
}
