//go:build unix

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VANDAL/prism/prism"
)

func TestGenerateAcrossSession(t *testing.T) {
	dir := t.TempDir()
	opts := smallOptions()
	opts.LivenessTimeout = 5 * time.Second

	l, err := prism.Listen(dir, opts)
	require.NoError(t, err)

	type served struct {
		rep *prism.Report
		err error
	}
	done := make(chan served, 1)
	go func() {
		rep, err := l.Serve(context.Background())
		done <- served{rep, err}
	}()

	p, err := prism.Dial(dir, l.Session(), opts)
	require.NoError(t, err)

	w := workload{seed: 9, events: 2000, funcs: 6, depth: 5, span: 1 << 16, threads: 2}
	require.NoError(t, generate(context.Background(), p, w, time.Millisecond))

	res := <-done
	require.NoError(t, res.err)
	assert.NotNil(t, res.rep.Lookup("main"))

	// The same seed analyzed in-process gives the same result.
	local := runWorkload(t, w)
	assert.Equal(t, local.Entities, res.rep.Entities)
}

func TestGenCommandNoSession(t *testing.T) {
	code := mainWithExitCode(append([]string{
		"gen", "-dir", t.TempDir(), "-session", "missing",
	}, small...))
	assert.Equal(t, exitFailure, code)
}
