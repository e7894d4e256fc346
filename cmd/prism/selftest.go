package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/VANDAL/prism/prism"
)

// selftestCommand implements the 'prism selftest' command.
//
// It runs producer and analysis in this process over the in-process
// channel and prints the report. Useful to check a configuration, or to
// size the shadow memory for a workload, without a second process.
//
// Example:
//
//	prism selftest -events 10000 -threads 4
//	prism selftest -granularity block -o report.txt
func selftestCommand(argv []string) exitCode {
	return selftest(argv, os.Stdout)
}

func selftest(argv []string, stdout io.Writer) exitCode {
	args := newArguments("selftest")
	w := registerWorkload(args.fs)
	output := args.fs.String("o", "", "Report file; \".zst\" names are compressed. Empty writes to stdout.")
	if code, ok := parseArgs(args, argv); !ok {
		return code
	}
	w.block = args.granularity == "block"
	if err := w.validate(); err != nil {
		return parseError("Invalid workload: %v", err)
	}

	opts := args.options()
	if *output == "" {
		opts.Report = stdout
	} else {
		opts.ReportFile = *output
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	rep, err := prism.Run(ctx, opts, func(p *prism.Producer) error {
		return w.run(p)
	})
	if err != nil {
		return analysisFailure(err)
	}
	log.Infof("Analyzed %d events in %v: %d entities, %d bytes communicated",
		rep.Events, time.Since(start).Round(time.Millisecond), len(rep.Entities), rep.CommBytes)
	return exitSuccess
}
