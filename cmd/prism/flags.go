package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/peterbourgon/ff/v3"
	log "github.com/sirupsen/logrus"

	"github.com/VANDAL/prism/prism"
)

// Help strings for the flags shared by every command.
var (
	addrBitsHelp        = "Width of traced addresses in bits."
	primaryBitsHelp     = "High address bits indexing the primary shadow map."
	maxShadowMBHelp     = "Shadow memory cap in MB."
	slotsHelp           = "Number of buffer slots in the event channel."
	slotRecordsHelp     = "Event records per slot."
	slotNameBytesHelp   = "Name arena bytes per slot."
	livenessTimeoutHelp = "How long the analysis waits for a silent producer. 0 waits forever."
	granularityHelp     = "Entity granularity: function or block."
	traceDirHelp        = "Directory for per-thread event traces. Empty writes none."
	traceCompPrimsHelp  = "Reads or writes folded into one compute record of a thread trace, 1 to 100."
	logLevelHelp        = "Log level: debug, info, warn or error."
	configHelp          = "Config file with one \"flag value\" pair per line."
)

// arguments holds the flags shared by every command.
type arguments struct {
	addrBits        uint
	primaryBits     uint
	maxShadowMB     uint64
	slots           int
	slotRecords     int
	slotNameBytes   int
	livenessTimeout time.Duration
	granularity     string
	traceDir        string
	traceCompPrims  int
	logLevel        string

	fs *flag.FlagSet
}

// newArguments registers the shared flags on a new flag set for command.
// The command adds its own flags before calling parse.
func newArguments(command string) *arguments {
	def := prism.DefaultOptions()
	args := &arguments{fs: flag.NewFlagSet(command, flag.ContinueOnError)}
	fs := args.fs

	fs.UintVar(&args.addrBits, "addr-bits", def.AddrBits, addrBitsHelp)
	fs.UintVar(&args.primaryBits, "primary-bits", def.PrimaryBits, primaryBitsHelp)
	fs.Uint64Var(&args.maxShadowMB, "max-shadow-mb", def.MaxShadowMB, maxShadowMBHelp)
	fs.IntVar(&args.slots, "slots", def.Slots, slotsHelp)
	fs.IntVar(&args.slotRecords, "slot-records", def.SlotRecords, slotRecordsHelp)
	fs.IntVar(&args.slotNameBytes, "slot-name-bytes", def.SlotNameBytes, slotNameBytesHelp)
	fs.DurationVar(&args.livenessTimeout, "liveness-timeout", def.LivenessTimeout,
		livenessTimeoutHelp)
	fs.StringVar(&args.granularity, "granularity", def.Granularity, granularityHelp)
	fs.StringVar(&args.traceDir, "trace-dir", "", traceDirHelp)
	fs.IntVar(&args.traceCompPrims, "trace-comp-prims", def.TraceCompPrims, traceCompPrimsHelp)
	fs.StringVar(&args.logLevel, "log-level", "info", logLevelHelp)
	fs.String("config", "", configHelp)

	return args
}

// parse reads the command line, then PRISM_* environment variables, then
// the -config file, and applies the log level.
func (args *arguments) parse(argv []string) error {
	err := ff.Parse(args.fs, argv,
		ff.WithEnvVarPrefix("PRISM"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	)
	if err != nil {
		return err
	}
	return setupLogging(args.logLevel)
}

// options converts the shared flags into analysis options.
func (args *arguments) options() prism.Options {
	opts := prism.DefaultOptions()
	opts.AddrBits = args.addrBits
	opts.PrimaryBits = args.primaryBits
	opts.MaxShadowMB = args.maxShadowMB
	opts.Slots = args.slots
	opts.SlotRecords = args.slotRecords
	opts.SlotNameBytes = args.slotNameBytes
	opts.LivenessTimeout = args.livenessTimeout
	opts.Granularity = args.granularity
	opts.TraceDir = args.traceDir
	opts.TraceCompPrims = args.traceCompPrims
	return opts
}

// dump logs the effective flag values at debug level.
func (args *arguments) dump() {
	log.Debug("Config:")
	args.fs.VisitAll(func(f *flag.Flag) {
		log.Debugf("%s: %v", f.Name, f.Value)
	})
}

func setupLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid -log-level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		QuoteEmptyFields: true,
	})
	return nil
}

// parseArgs parses argv into args and maps the outcome to an exit code.
// ok is false when the command must stop with code.
func parseArgs(args *arguments, argv []string) (code exitCode, ok bool) {
	if err := args.parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess, false
		}
		return parseError("Failure to parse arguments: %v", err), false
	}
	args.dump()
	return exitSuccess, true
}
