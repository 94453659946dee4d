package xconn

import (
	"expvar"
	"fmt"
	"sync"
)

// getVarInt returns an *expvar.Int for the given path, creating it on first
// use so repeated calls with the same coordinates return the same counter.
func getVarInt(base, id, name string) *expvar.Int {
	fullname := fmt.Sprintf("xconn.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(fullname)
}

// getVarMap returns an *expvar.Map for the given path, creating it on first use.
func getVarMap(base, id, name string) *expvar.Map {
	fullname := fmt.Sprintf("xconn.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Map)
	}
	return expvar.NewMap(fullname)
}

// RemoteIPCounters is the process-wide SNMP-style table: one
// row per currently-in-use remote IP, counting how many cache entries have
// it as their remote_ip. The invariant is Σ(counter values) = number of
// cache entries whose remote_ip is non-empty, and a counter reaching zero
// means the row is removed. The live counts are kept in a plain map under a
// mutex and mirrored into an expvar.Map for external visibility; a row
// reaching zero is deleted from both.
type RemoteIPCounters struct {
	mu      sync.Mutex
	counts  map[string]int
	exposed *expvar.Map
}

// NewRemoteIPCounters returns a new, empty counter table exposed under the
// given executor id.
func NewRemoteIPCounters(executorID string) *RemoteIPCounters {
	return &RemoteIPCounters{
		counts:  make(map[string]int),
		exposed: getVarMap("executor", executorID, "remote_ip"),
	}
}

// update performs the two-step swap: decrement (and possibly
// remove) the row for prev, then increment (and possibly create) the row
// for next. Called with prev != next; no-op guarded by the caller.
func (c *RemoteIPCounters) update(prev, next string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev != "" {
		c.counts[prev]--
		if c.counts[prev] <= 0 {
			delete(c.counts, prev)
			c.exposed.Delete(prev)
		} else {
			c.exposed.Add(prev, -1)
		}
	}
	if next != "" {
		c.counts[next]++
		c.exposed.Add(next, 1)
	}
}

// Get returns the current counter value for ip, or 0 if it has no rows.
func (c *RemoteIPCounters) Get(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[ip]
}

// Sum returns the total of counter values across all rows, used to check the
// invariant in tests.
func (c *RemoteIPCounters) Sum() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, v := range c.counts {
		total += v
	}
	return total
}
