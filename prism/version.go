package prism

import "github.com/VANDAL/prism/internal/prism/channel"

// Version information for Prism.
const (
	// Version is the current version of the analysis runtime.
	Version = "0.3.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 3

	// VersionPatch is the patch version number.
	VersionPatch = 0

	// ProtocolVersion is the version of the event channel layout. A
	// producer and a consumer must agree on its major number.
	ProtocolVersion = channel.ProtocolVersion
)

// Info provides runtime information about Prism.
type Info struct {
	// Version is the runtime version string.
	Version string

	// Protocol is the event channel protocol version.
	Protocol string

	// Granularities lists the supported entity granularities.
	Granularities []string

	// IPC indicates whether the shared-memory transport is available on
	// this platform.
	IPC bool
}

// GetInfo returns information about the Prism runtime.
//
// Example:
//
//	info := prism.GetInfo()
//	fmt.Printf("Prism %s (protocol %s)\n", info.Version, info.Protocol)
func GetInfo() Info {
	return Info{
		Version:       Version,
		Protocol:      ProtocolVersion,
		Granularities: []string{"function", "block"},
		IPC:           ipcSupported,
	}
}
