package xconn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// repeatStep returns n copies of step, enough for every attempt a test
// might drive through an executor across several group calls.
func repeatStep(step scriptedStep, n int) []scriptedStep {
	out := make([]scriptedStep, n)
	for i := range out {
		out[i] = step
	}
	return out
}

func newConstantExecutor(id string, status int) (*Executor, *scriptedTransport) {
	st := &scriptedTransport{steps: repeatStep(scriptedStep{result: AttemptResult{Status: status}}, 10)}
	resolver := &fakeResolver{targets: []Target{targetFor("10.0.0.1")}}
	pool := newPoolWith(st)
	return NewExecutor(id, resolver, pool, ExecutorOptions{Host: "svc", Port: 8080}), st
}

func TestHostGroupFailsOverThenBack(t *testing.T) {
	primary, primaryTr := newConstantExecutor("primary", 500)
	secondary, secondaryTr := newConstantExecutor("secondary", 200)

	g := NewHostGroup("grp", HostGroupOptions{ResetAfter: 100 * time.Millisecond}, primary, secondary)

	// Call 1: primary fails (500, a fatal outcome stopping after one
	// attempt), group fails over to secondary which succeeds.
	resp := g.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})
	require.Equal(t, 200, resp.Status)
	require.Len(t, primaryTr.calls, 1)
	require.Len(t, secondaryTr.calls, 1)

	// Call 2: still within the reset window, the group goes straight to
	// secondary without touching primary again.
	resp = g.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})
	require.Equal(t, 200, resp.Status)
	require.Len(t, primaryTr.calls, 1)
	require.Len(t, secondaryTr.calls, 2)

	// Call 3: after ResetAfter elapses without a further failure, the
	// group falls back to primary first; it fails again and the group
	// fails over to secondary within the same call.
	time.Sleep(150 * time.Millisecond)
	resp = g.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})
	require.Equal(t, 200, resp.Status)
	require.Len(t, primaryTr.calls, 2)
	require.Len(t, secondaryTr.calls, 3)
}

func TestHostGroupNoResetIteratesFromPrimaryEveryCall(t *testing.T) {
	primary, primaryTr := newConstantExecutor("primary", 500)
	secondary, secondaryTr := newConstantExecutor("secondary", 200)

	g := NewHostGroup("grp2", HostGroupOptions{}, primary, secondary)

	for i := 0; i < 2; i++ {
		resp := g.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})
		require.Equal(t, 200, resp.Status)
	}

	// With ResetAfter == 0, every call starts again from primary.
	require.Len(t, primaryTr.calls, 2)
	require.Len(t, secondaryTr.calls, 2)
}

func TestHostGroupAllExecutorsFail(t *testing.T) {
	primary, _ := newConstantExecutor("primary", 500)
	secondary, _ := newConstantExecutor("secondary", 503)

	g := NewHostGroup("grp3", HostGroupOptions{}, primary, secondary)

	resp := g.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})
	require.Equal(t, 503, resp.Status)
}
