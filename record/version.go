package record

// Version information for the allocation recorder.
const (
	// Version is the current recorder runtime version.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides runtime information about the recorder.
type Info struct {
	// Version is the runtime version string.
	Version string

	// Attached indicates whether the pipeline is wired.
	Attached bool

	// Enabled indicates whether the capture hook is active.
	Enabled bool
}

// GetInfo returns information about the recorder runtime.
func GetInfo() Info {
	return Info{
		Version:  Version,
		Attached: Attached(),
		Enabled:  Enabled(),
	}
}
