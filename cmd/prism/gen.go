package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/VANDAL/prism/prism"
)

// genCommand implements the 'prism gen' command.
//
// It attaches to a session created by 'prism consume' and streams a
// synthetic workload into it.
//
// Flow:
//  1. Dial the session, retrying while the consumer sets it up
//  2. Send heartbeats in the background so a slow walk is not mistaken
//     for a dead producer
//  3. Emit the workload
//  4. Finish, waiting for the consumer to drain the channel
//
// Example:
//
//	prism gen -dir /dev/shm -session 0f3c... -events 1000000 -threads 4
func genCommand(argv []string) exitCode {
	args := newArguments("gen")
	w := registerWorkload(args.fs)
	dir := args.fs.String("dir", os.TempDir(), "Directory holding the session files.")
	id := args.fs.String("session", "", "Session id printed by 'prism consume'.")
	interval := args.fs.Duration("heartbeat", time.Second,
		"Heartbeat interval while the workload runs.")
	if code, ok := parseArgs(args, argv); !ok {
		return code
	}

	if *id == "" {
		return parseError("-session is required")
	}
	w.block = args.granularity == "block"
	if err := w.validate(); err != nil {
		return parseError("Invalid workload: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := prism.Dial(*dir, *id, args.options())
	if err != nil {
		return failure("Failed to attach to session %s: %v", *id, err)
	}

	start := time.Now()
	if err := generate(ctx, p, *w, *interval); err != nil {
		_ = p.Close()
		return analysisFailure(err)
	}
	log.Infof("Streamed %d steps in %v", w.events, time.Since(start).Round(time.Millisecond))
	return exitSuccess
}

// generate emits w into p and finishes the trace. Heartbeats run alongside
// the workload and stop before the finished sentinel is sent.
func generate(ctx context.Context, p *prism.Producer, w workload, interval time.Duration) error {
	g, beat := errgroup.WithContext(ctx)
	beat, stopBeat := context.WithCancel(beat)
	defer stopBeat()

	if interval > 0 {
		g.Go(func() error {
			return p.KeepAlive(beat, interval)
		})
	}
	err := w.run(p)
	stopBeat()
	if err := errors.Join(err, g.Wait()); err != nil {
		return err
	}
	return p.Finish(ctx)
}
