package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/VANDAL/prism/prism"
)

// consumeCommand implements the 'prism consume' command.
//
// It creates a session in -dir, prints the session id on stdout and
// analyzes the trace of the first producer that attaches. The report goes
// to -o, or to stdout when -o is empty.
//
// Flow:
//  1. Create the shared-memory region and the control FIFOs
//  2. Print the session id for the producer
//  3. Serve until the producer finishes, dies or stays silent too long
//  4. Write the report and remove the session files
//
// Example:
//
//	prism consume -dir /dev/shm -o report.txt.zst
//	PRISM_LIVENESS_TIMEOUT=5m prism consume
func consumeCommand(argv []string) exitCode {
	args := newArguments("consume")
	dir := args.fs.String("dir", os.TempDir(), "Directory holding the session files.")
	output := args.fs.String("o", "", "Report file; \".zst\" names are compressed. Empty writes to stdout.")
	if code, ok := parseArgs(args, argv); !ok {
		return code
	}

	opts := args.options()
	if *output == "" {
		opts.Report = os.Stdout
	} else {
		opts.ReportFile = *output
	}

	l, err := prism.Listen(*dir, opts)
	if err != nil {
		return failure("Failed to create session: %v", err)
	}
	fmt.Println(l.Session())
	log.Infof("Waiting for a producer: prism gen -dir %s -session %s", *dir, l.Session())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := l.Serve(ctx)
	if err != nil {
		return analysisFailure(err)
	}
	log.Infof("Analyzed %d events: %d entities, %d bytes communicated",
		rep.Events, len(rep.Entities), rep.CommBytes)
	return exitSuccess
}
