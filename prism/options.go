package prism

import (
	"io"
	"time"

	"github.com/VANDAL/prism/internal/prism/config"
)

// Options configures an analysis.
//
// Start from DefaultOptions and override what you need:
//
//	opts := prism.DefaultOptions()
//	opts.Granularity = "block"
//	opts.Report = os.Stdout
type Options struct {
	// AddrBits is the width of traced addresses. Accesses at or above
	// 2^AddrBits are rejected.
	AddrBits uint

	// PrimaryBits is the number of high address bits indexing the primary
	// shadow map.
	PrimaryBits uint

	// MaxShadowMB caps the shadow memory footprint.
	MaxShadowMB uint64

	// Slots, SlotRecords and SlotNameBytes size the event channel.
	Slots         int
	SlotRecords   int
	SlotNameBytes int

	// LivenessTimeout is how long the analysis waits for the producer
	// before giving up. Zero waits forever.
	LivenessTimeout time.Duration

	// Granularity is "function" (entities are function activations) or
	// "block" (entities are executions of instruction blocks).
	Granularity string

	// Report receives the text report. Nil keeps the results in memory
	// only.
	Report io.Writer

	// ReportFile, when set, is created and receives the text report. Names
	// ending in ".zst" are zstd compressed.
	ReportFile string

	// TraceDir, when set, receives one zstd-compressed event trace per
	// thread plus the thread tree and per-thread statistics.
	TraceDir string

	// TraceCompPrims is how many reads or writes one compute record of a
	// thread trace may fold, 1 to 100.
	TraceCompPrims int
}

// DefaultOptions returns the default analysis settings.
func DefaultOptions() Options {
	cfg := config.Default()
	return Options{
		AddrBits:        cfg.Shadow.AddrBits,
		PrimaryBits:     cfg.Shadow.PrimaryBits,
		MaxShadowMB:     cfg.Shadow.MaxShadowMB,
		Slots:           cfg.Channel.Slots,
		SlotRecords:     cfg.Channel.SlotRecords,
		SlotNameBytes:   cfg.Channel.SlotNameBytes,
		LivenessTimeout: cfg.Channel.LivenessTimeout,
		Granularity:     cfg.Tracker.Granularity.String(),
		TraceCompPrims:  cfg.Trace.PrimsPerComp,
	}
}

// config converts the options into a validated configuration.
func (o Options) config() (config.Config, error) {
	cfg := config.Default()
	cfg.Shadow.AddrBits = o.AddrBits
	cfg.Shadow.PrimaryBits = o.PrimaryBits
	cfg.Shadow.MaxShadowMB = o.MaxShadowMB
	cfg.Channel.Slots = o.Slots
	cfg.Channel.SlotRecords = o.SlotRecords
	cfg.Channel.SlotNameBytes = o.SlotNameBytes
	cfg.Channel.LivenessTimeout = o.LivenessTimeout
	cfg.Trace.Dir = o.TraceDir
	cfg.Trace.PrimsPerComp = o.TraceCompPrims

	g, err := config.ParseGranularity(o.Granularity)
	if err != nil {
		return cfg, err
	}
	cfg.Tracker.Granularity = g
	return cfg, cfg.Validate()
}
