package xconn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type nopTransport struct{ closed bool }

func (t *nopTransport) Do(ctx context.Context, opt AttemptOptions) (AttemptResult, error) {
	return AttemptResult{}, nil
}
func (t *nopTransport) Close() { t.closed = true }

func TestPoolEntryLazyAndStableByWorker(t *testing.T) {
	p := NewPool("exec1", func() Transport { return &nopTransport{} })

	e1 := p.Entry("w0")
	e2 := p.Entry("w0")
	e3 := p.Entry("w1")

	require.Same(t, e1, e2)
	require.NotSame(t, e1, e3)
}

func TestEntrySetRemoteIPUpdatesSharedCounters(t *testing.T) {
	p := NewPool("exec2", func() Transport { return &nopTransport{} })
	e := p.Entry("w0")

	e.setRemoteIP("10.0.0.1")
	require.Equal(t, 1, p.Counters().Get("10.0.0.1"))
	require.Equal(t, 1, p.Counters().Sum())

	// Same value twice is a no-op.
	e.setRemoteIP("10.0.0.1")
	require.Equal(t, 1, p.Counters().Get("10.0.0.1"))

	e.setRemoteIP("10.0.0.2")
	require.Equal(t, 0, p.Counters().Get("10.0.0.1"))
	require.Equal(t, 1, p.Counters().Get("10.0.0.2"))
	require.Equal(t, 1, p.Counters().Sum())
}

func TestEntryExpiredAndDeadlineMonotonic(t *testing.T) {
	p := NewPool("exec3", func() Transport { return &nopTransport{} })
	e := p.Entry("w0")

	require.True(t, e.expired(1))

	e.advanceDeadline(1000)
	d1 := e.deadlineMs
	require.Greater(t, d1, int64(1000))

	e.advanceDeadline(d1 + 10)
	require.GreaterOrEqual(t, e.deadlineMs, d1)
}

func TestEntryOverrideBookkeeping(t *testing.T) {
	p := NewPool("exec4", func() Transport { return &nopTransport{} })
	e := p.Entry("w0")

	e.setPendingRemoval("svc:8080")
	pending := e.takeOverrides()
	require.Len(t, pending, 1)
	require.Equal(t, "svc:8080", pending[0].hostPort)
	require.True(t, pending[0].remove)

	// Cleared after take.
	require.Empty(t, e.takeOverrides())
}

func TestPoolCloseClosesAllTransports(t *testing.T) {
	var created []*nopTransport
	p := NewPool("exec5", func() Transport {
		tr := &nopTransport{}
		created = append(created, tr)
		return tr
	})
	p.Entry("w0")
	p.Entry("w1")

	p.Close()

	for _, tr := range created {
		require.True(t, tr.closed)
	}
}
