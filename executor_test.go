package xconn

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedTransport replays a fixed sequence of results/errors, one per
// Do call, keyed by the order attempts occur. It also records every
// OverrideAddr it was asked to dial and whether ForceFreshConn was set.
type scriptedTransport struct {
	steps []scriptedStep
	calls []AttemptOptions
}

type scriptedStep struct {
	result AttemptResult
	err    error
}

func (s *scriptedTransport) Do(ctx context.Context, opt AttemptOptions) (AttemptResult, error) {
	s.calls = append(s.calls, opt)
	i := len(s.calls) - 1
	if i >= len(s.steps) {
		return AttemptResult{}, ConnectError{cause: context.DeadlineExceeded}
	}
	return s.steps[i].result, s.steps[i].err
}

func (s *scriptedTransport) Close() {}

func newPoolWith(tr Transport) *Pool {
	return NewPool("test", func() Transport { return tr })
}

func targetFor(ip string) Target {
	return Target{Family: AddressFamilyIPv4, Addr: net.ParseIP(ip), Port: 8080, Transport: "tcp"}
}

func TestExecuteSingleHealthyTarget(t *testing.T) {
	tr := &scriptedTransport{steps: []scriptedStep{
		{result: AttemptResult{Status: 200, Body: []byte("ok"), RemoteIP: "10.0.0.1"}},
	}}
	resolver := &fakeResolver{targets: []Target{targetFor("10.0.0.1")}}
	pool := newPoolWith(tr)
	ex := NewExecutor("t", resolver, pool, ExecutorOptions{Host: "svc", Port: 8080})

	resp := ex.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})

	require.Equal(t, 200, resp.Status)
	require.Equal(t, "ok", string(resp.Body))
	require.Equal(t, "10.0.0.1", pool.Entry("w0").RemoteIP())
}

func TestExecuteFailoverOn503(t *testing.T) {
	tr := &scriptedTransport{steps: []scriptedStep{
		{result: AttemptResult{Status: 503}},
		{result: AttemptResult{Status: 200, RemoteIP: "10.0.0.2"}},
	}}
	resolver := &fakeResolver{targets: []Target{targetFor("10.0.0.1"), targetFor("10.0.0.2")}}
	pool := newPoolWith(tr)
	lm := &countingLoadMonitor{}
	ex := NewExecutor("t", resolver, pool, ExecutorOptions{Host: "svc", Port: 8080, LoadMonitor: lm})

	resp := ex.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})

	require.Equal(t, 200, resp.Status)
	require.Equal(t, 0, lm.penalties)
	require.Equal(t, "10.0.0.2", pool.Entry("w0").RemoteIP())
	require.Len(t, tr.calls, 2)
}

func TestExecuteDouble503Penalizes(t *testing.T) {
	tr := &scriptedTransport{steps: []scriptedStep{
		{result: AttemptResult{Status: 503}},
		{result: AttemptResult{Status: 503}},
	}}
	resolver := &fakeResolver{targets: []Target{targetFor("10.0.0.1"), targetFor("10.0.0.2")}}
	pool := newPoolWith(tr)
	lm := &countingLoadMonitor{}
	ex := NewExecutor("t", resolver, pool, ExecutorOptions{Host: "svc", Port: 8080, LoadMonitor: lm})

	resp := ex.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})

	require.Equal(t, 503, resp.Status)
	require.Equal(t, 1, lm.penalties)
}

func TestExecuteSingle504ShortCircuits(t *testing.T) {
	tr := &scriptedTransport{steps: []scriptedStep{
		{result: AttemptResult{Status: 504}},
	}}
	resolver := &fakeResolver{targets: []Target{targetFor("10.0.0.1"), targetFor("10.0.0.2"), targetFor("10.0.0.3")}}
	pool := newPoolWith(tr)
	lm := &countingLoadMonitor{}
	ex := NewExecutor("t", resolver, pool, ExecutorOptions{Host: "svc", Port: 8080, LoadMonitor: lm})

	resp := ex.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})

	require.Equal(t, 504, resp.Status)
	require.Equal(t, 1, lm.penalties)
	require.Len(t, tr.calls, 1)
}

func TestExecuteConnectFailureBlacklistsAndRetries(t *testing.T) {
	tr := &scriptedTransport{steps: []scriptedStep{
		{err: ConnectError{cause: context.DeadlineExceeded}},
		{result: AttemptResult{Status: 200, Body: []byte("ok"), RemoteIP: "10.0.0.2"}},
	}}
	resolver := &fakeResolver{targets: []Target{targetFor("10.0.0.1"), targetFor("10.0.0.2")}}
	pool := newPoolWith(tr)
	ex := NewExecutor("t", resolver, pool, ExecutorOptions{Host: "svc", Port: 8080})

	// Force expiry so ForceFreshConn (and thus blacklist-on-connect-failure) applies.
	pool.Entry("w0").deadlineMs = 1

	resp := ex.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})

	require.Equal(t, 200, resp.Status)
	require.Len(t, resolver.blacklisted, 1)
	require.True(t, resolver.blacklisted[0].Equal(targetFor("10.0.0.1")))
}

func TestExecuteStickyReuse(t *testing.T) {
	tr := &scriptedTransport{steps: []scriptedStep{
		{result: AttemptResult{Status: 200, RemoteIP: "10.0.0.2"}},
	}}
	resolver := &fakeResolver{targets: []Target{targetFor("10.0.0.1"), targetFor("10.0.0.2"), targetFor("10.0.0.3")}}
	pool := newPoolWith(tr)
	pool.Entry("w0").remoteIP = "10.0.0.2"
	pool.Entry("w0").deadlineMs = nowMs() + 60_000 // not expired

	ex := NewExecutor("t", resolver, pool, ExecutorOptions{Host: "svc", Port: 8080})
	resp := ex.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})

	require.Equal(t, 200, resp.Status)
	require.Len(t, tr.calls, 1)
	require.Equal(t, targetFor("10.0.0.2").String(), tr.calls[0].OverrideAddr)
	require.False(t, tr.calls[0].ForceFreshConn)
}

func TestExecuteZeroTargetsReturns404(t *testing.T) {
	resolver := &fakeResolver{targets: nil}
	pool := newPoolWith(&scriptedTransport{})
	ex := NewExecutor("t", resolver, pool, ExecutorOptions{Host: "svc", Port: 8080})

	resp := ex.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})

	require.Equal(t, 404, resp.Status)
	require.Empty(t, resolver.blacklisted)
}

func TestExecuteSingleTargetTriedTwice(t *testing.T) {
	tr := &scriptedTransport{steps: []scriptedStep{
		{result: AttemptResult{Status: 503}},
		{result: AttemptResult{Status: 200, RemoteIP: "10.0.0.1"}},
	}}
	resolver := &fakeResolver{targets: []Target{targetFor("10.0.0.1")}}
	pool := newPoolWith(tr)
	ex := NewExecutor("t", resolver, pool, ExecutorOptions{Host: "svc", Port: 8080})

	resp := ex.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})

	require.Equal(t, 200, resp.Status)
	require.Len(t, tr.calls, 2)
}

func TestExecuteInvalidPathReturns400(t *testing.T) {
	pool := newPoolWith(&scriptedTransport{})
	resolver := &fakeResolver{}
	ex := NewExecutor("t", resolver, pool, ExecutorOptions{Host: "svc", Port: 8080})

	resp := ex.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "no-leading-slash"})

	require.Equal(t, 400, resp.Status)
	require.Equal(t, 0, resolver.calls)
}

func TestExecuteExpectHeaderAlwaysEmpty(t *testing.T) {
	tr := &scriptedTransport{steps: []scriptedStep{
		{result: AttemptResult{Status: 200, RemoteIP: "10.0.0.1"}},
	}}
	resolver := &fakeResolver{targets: []Target{targetFor("10.0.0.1")}}
	pool := newPoolWith(tr)
	ex := NewExecutor("t", resolver, pool, ExecutorOptions{Host: "svc", Port: 8080})

	ex.Execute(context.Background(), "w0", Request{Method: MethodGet, Path: "/x"})

	require.NotEmpty(t, tr.calls)
	found := false
	for _, h := range tr.calls[0].Headers {
		if h.Name == "Expect" {
			found = true
			require.Equal(t, "", h.Value)
		}
	}
	require.True(t, found)
}

type countingLoadMonitor struct {
	penalties int
}

func (c *countingLoadMonitor) GetTargetLatencyUs() int { return defaultTargetLatencyUs }
func (c *countingLoadMonitor) IncrPenalties()          { c.penalties++ }
