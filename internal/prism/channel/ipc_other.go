//go:build !unix

package channel

import (
	"path/filepath"

	"github.com/VANDAL/prism/internal/prism/fault"
)

// Paths returns the shared-memory file and the two FIFOs of a session.
func Paths(dir, session string) (shm, full, empty string) {
	base := filepath.Join(dir, "prism-"+session)
	return base + "-shmem", base + "-full", base + "-empty"
}

// Listen is only available on unix systems.
func Listen(dir string, opts Options) (*Consumer, error) {
	return nil, fault.Configf("channel.Listen", "shared-memory transport needs a unix system").
		WithHint("Use the in-process pipe instead.")
}

// Dial is only available on unix systems.
func Dial(dir, session string, opts Options) (*Producer, error) {
	return nil, fault.Configf("channel.Dial", "shared-memory transport needs a unix system")
}
