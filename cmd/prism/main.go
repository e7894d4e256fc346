// Package main implements the prism CLI tool.
//
// prism measures how much data the entities of a traced program hand to
// each other. A traced program (the producer) streams its memory, compute,
// call and synchronization events into an analysis process (the consumer)
// through a shared-memory channel. The consumer attributes every byte read
// to the entity that last wrote it and reports the resulting dependency
// graph.
//
// Usage:
//
//	prism consume -o report.txt.zst    # Wait for a producer and analyze it
//	prism gen -session <id>            # Stream a synthetic workload
//	prism selftest                     # Analyze a synthetic workload in-process
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/VANDAL/prism/prism"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// flag exits with 2 on parse errors when ExitOnError is set.
	exitParseError exitCode = 2

	// The trace or the transport ended the analysis.
	exitAnalysis exitCode = 3
)

func main() {
	os.Exit(int(mainWithExitCode(os.Args[1:])))
}

func mainWithExitCode(args []string) exitCode {
	if len(args) < 1 {
		printUsage()
		return exitParseError
	}

	switch command := args[0]; command {
	case "consume":
		return consumeCommand(args[1:])
	case "gen":
		return genCommand(args[1:])
	case "selftest":
		return selftestCommand(args[1:])
	case "version", "--version", "-v":
		info := prism.GetInfo()
		fmt.Printf("prism version %s (protocol %s, ipc %t)\n", info.Version, info.Protocol, info.IPC)
		return exitSuccess
	case "help", "--help", "-h":
		printUsage()
		return exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		return exitParseError
	}
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}

// analysisFailure maps an analysis error to the exit code.
func analysisFailure(err error) exitCode {
	log.Errorf("Analysis failed: %v", err)
	if prism.IsFatal(err) {
		return exitAnalysis
	}
	return exitFailure
}

func printUsage() {
	fmt.Print(`prism - entity communication profiler

USAGE:
    prism <command> [flags]

COMMANDS:
    consume    Create a session, wait for a producer and analyze its trace
    gen        Stream a synthetic workload into a waiting session
    selftest   Analyze a synthetic workload in-process
    version    Show version information
    help       Show this help message

EXAMPLES:
    # Start the analysis; it prints the session id to pass to the producer
    prism consume -dir /dev/shm -o report.txt.zst

    # Feed it a synthetic trace from another terminal
    prism gen -dir /dev/shm -session 0f3c... -events 1000000

    # Check the whole pipeline without a second process
    prism selftest -events 10000 -threads 4

    # Attribute communication to instruction blocks
    prism selftest -granularity block

FLAGS:
    Every command accepts -config <file> with one "flag value" pair per line.
    Flags can also be set through PRISM_<FLAG> environment variables, for
    example PRISM_LIVENESS_TIMEOUT=1m.

EXIT CODES:
    0  success
    1  configuration or I/O error
    2  usage error
    3  the trace or the transport ended the analysis

For more information, run "prism <command> -h".
`)
}
