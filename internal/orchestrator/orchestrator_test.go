package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/domain"
)

func TestPauseGateBlocksUntilResumed(t *testing.T) {
	g := newPauseGate()
	g.pause()

	done := make(chan struct{})
	go func() {
		g.wait(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned before resume was called")
	case <-time.After(50 * time.Millisecond):
	}

	g.resume()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resume")
	}
}

func TestPauseGateWaitIsNoopWhenNotPaused(t *testing.T) {
	g := newPauseGate()
	done := make(chan struct{})
	go func() {
		g.wait(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait blocked despite gate never having been paused")
	}
}

func TestPauseGateDoubleResumeIsSafe(t *testing.T) {
	g := newPauseGate()
	g.pause()
	g.resume()
	require.NotPanics(t, func() { g.resume() })
}

func TestPauseGateWaitRespectsContextCancellation(t *testing.T) {
	g := newPauseGate()
	g.pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.wait(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after context cancellation")
	}
}

func TestInsertPriorityPushesToPriorityLane(t *testing.T) {
	o := &Orchestrator{queues: newPriorityQueues(1), gate: newPauseGate()}
	o.insertPriority(domain.Company{Name: "Acme"})

	item, ok := o.queues.pop()
	require.True(t, ok)
	require.Equal(t, "Acme", item.company.Name)
}

func TestStopIsNoopWithoutCancelFunc(t *testing.T) {
	o := &Orchestrator{gate: newPauseGate()}
	require.NotPanics(t, func() { o.stop() })
}

func TestStopInvokesCancel(t *testing.T) {
	called := false
	o := &Orchestrator{gate: newPauseGate(), cancel: func() { called = true }}
	o.stop()
	require.True(t, called)
}
