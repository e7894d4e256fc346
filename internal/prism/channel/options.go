package channel

import (
	"time"

	"github.com/VANDAL/prism/internal/prism/config"
)

// ProtocolVersion is the version of the region layout and control values
// written by this package. Peers must agree on the major version.
const ProtocolVersion = "v1.2.0"

// Options configures a channel endpoint.
type Options struct {
	Layout  Layout
	Version string // Defaults to ProtocolVersion.

	// LivenessTimeout bounds how long the consumer waits for any control
	// value. Zero waits forever.
	LivenessTimeout time.Duration

	// ConnectRetries and ConnectDelay bound Dial's attempts to attach to a
	// consumer that has not finished listening yet.
	ConnectRetries int
	ConnectDelay   time.Duration
}

// OptionsFrom builds endpoint options from a validated channel config.
func OptionsFrom(cfg config.Channel) Options {
	return Options{
		Layout:          LayoutFrom(cfg),
		Version:         ProtocolVersion,
		LivenessTimeout: cfg.LivenessTimeout,
		ConnectRetries:  cfg.ConnectRetries,
		ConnectDelay:    cfg.ConnectDelay,
	}
}

func (o Options) withDefaults() Options {
	if o.Version == "" {
		o.Version = ProtocolVersion
	}
	if o.ConnectRetries < 1 {
		o.ConnectRetries = config.DefaultConnectRetries
	}
	if o.ConnectDelay <= 0 {
		o.ConnectDelay = config.DefaultConnectDelay
	}
	return o
}
