// cmd/bmbus/run_test.go
package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/bmbus/internal/poller"
)

// slowRunner keeps working for a while after ctx is cancelled, like a
// poller caught inside a bus read.
type slowRunner struct {
	finished atomic.Bool
}

func (r *slowRunner) Run(ctx context.Context, _ chan<- poller.PollResult) {
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	r.finished.Store(true)
}

func TestStartPolling_DoneAfterRunReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &slowRunner{}

	done := startPolling(ctx, r, make(chan poller.PollResult))
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller goroutine never finished")
	}
	assert.True(t, r.finished.Load())
}

func TestRunDaemon_StopsCleanlyOnCancel(t *testing.T) {
	s, err := openStack(writeConfig(t, simChain))
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- runDaemon(ctx, s) }()

	// first cycle runs immediately
	require.Eventually(t, func() bool {
		m, ok := s.reg.Get(0x01)
		return ok && m.Voltages.Valid
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runDaemon did not return")
	}
}
