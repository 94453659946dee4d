package xconn

import (
	"math/rand"
	"sync"
	"time"
)

// recycleMeanMs is the mean inter-arrival time (ms) of the Poisson recycle
// schedule.
const recycleMeanMs = 60_000

// dnsOverride is a single pending "host:port -> ip" resolver override, or a
// removal directive for one installed by the previous attempt.
type dnsOverride struct {
	hostPort string
	addr     string
	remove   bool
}

// Entry is one worker's connection cache row: the live transport handle,
// its private recycle deadline, last-used peer IP, and the exponential
// sampler driving the Poisson recycle schedule. Entries are never shared
// across workers; the only cross-entry shared state is the
// SNMP-style remote-IP table reached through the back-reference to Pool.
type Entry struct {
	mu         sync.Mutex
	transport  Transport
	deadlineMs int64
	remoteIP   string
	pending    []dnsOverride
	rnd        *rand.Rand

	pool *Pool // weak back-reference, never owns the entry
}

// Pool is the collection of per-worker connection-cache Entries for one
// Executor. It owns the process-wide SNMP remote-IP counter table,
// the only state shared across workers.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*Entry
	counts  *RemoteIPCounters
	newTr   func() Transport
}

// NewPool returns an empty connection cache. newTransport builds a fresh
// Transport for each worker's entry; when nil, NewHTTPTransport with zero
// options is used.
func NewPool(id string, newTransport func() Transport) *Pool {
	if newTransport == nil {
		newTransport = func() Transport { return NewHTTPTransport(TransportOptions{}) }
	}
	return &Pool{
		entries: make(map[string]*Entry),
		counts:  NewRemoteIPCounters(id),
		newTr:   newTransport,
	}
}

// Entry returns the cache entry for worker, creating it lazily on first use.
func (p *Pool) Entry(worker string) *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[worker]
	if !ok {
		e = &Entry{
			transport: p.newTr(),
			rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
			pool:      p,
		}
		p.entries[worker] = e
	}
	return e
}

// Close tears down every entry's transport, releasing sockets. Call on
// worker-pool shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		e.transport.Close()
	}
}

// Counters exposes the shared SNMP-style remote-IP table, mostly for tests.
func (p *Pool) Counters() *RemoteIPCounters {
	return p.counts
}

// expired reports whether the entry's recycle deadline has passed. now is
// the caller's monotonic "now" in milliseconds.
func (e *Entry) expired(nowMs int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return nowMs > e.deadlineMs
}

// RemoteIP returns the last-used peer IP, or "" if not connected.
func (e *Entry) RemoteIP() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteIP
}

// setRemoteIP is the single mutator for remote_ip. If v == remote_ip it's a
// no-op; otherwise it updates the shared counter table under its own
// mutex (the two-step decrement/increment swap) and only then the entry's
// local field.
func (e *Entry) setRemoteIP(v string) {
	e.mu.Lock()
	prev := e.remoteIP
	e.mu.Unlock()
	if v == prev {
		return
	}
	e.pool.counts.update(prev, v)
	e.mu.Lock()
	e.remoteIP = v
	e.mu.Unlock()
}

// advanceDeadline implements the recycle-schedule update, called
// after a successful reuse of a fresh-connection attempt. nowMs is the
// caller's monotonic "now" in milliseconds.
func (e *Entry) advanceDeadline(nowMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	interval := sampleExponentialMs(e.rnd, recycleMeanMs)
	switch {
	case e.deadlineMs == 0:
		e.deadlineMs = nowMs + interval
	case e.deadlineMs+interval < nowMs:
		e.deadlineMs = nowMs + interval
	default:
		e.deadlineMs += interval
	}
}

// sampleExponentialMs draws from an exponential distribution with the given
// mean, in milliseconds.
func sampleExponentialMs(rnd *rand.Rand, meanMs float64) int64 {
	return int64(rnd.ExpFloat64() * meanMs)
}

// takeOverrides applies (by returning them for the caller to clear from the
// resolver) any "remove" directives left by the previous attempt, then
// clears the pending list.
func (e *Entry) takeOverrides() []dnsOverride {
	e.mu.Lock()
	defer e.mu.Unlock()
	pending := e.pending
	e.pending = nil
	return pending
}

// setPendingRemoval leaves a single-call-scoped "remove this override next
// time" directive for the given host:port.
func (e *Entry) setPendingRemoval(hostPort string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, dnsOverride{hostPort: hostPort, remove: true})
}

// transportHandle returns the entry's live transport handle.
func (e *Entry) transportHandle() Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport
}

// recreateTransport forces a fresh transport handle, used when a worker's
// connection is torn down on recycle.
func (e *Entry) recreateTransport(newTransport func() Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transport.Close()
	e.transport = newTransport()
}
