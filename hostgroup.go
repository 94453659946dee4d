package xconn

import (
	"context"
	"expvar"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HostGroup wraps several Executors, each pointed at a distinct backend
// cluster (e.g. a primary and secondary HSS), and fails over between them
// the way a single Executor fails over between targets of one cluster: the
// active executor is tried first; on a non-success response the group
// moves to the next one. After ResetAfter has elapsed without a further
// failure, the group falls back to the first (highest-priority) executor.
type HostGroup struct {
	id        string
	executors []*Executor
	mu        sync.RWMutex
	failCh    chan struct{}
	active    int
	opt       HostGroupOptions
	metrics   *hostGroupMetrics
}

// HostGroupOptions configure a HostGroup.
type HostGroupOptions struct {
	// ResetAfter is how long the group waits, after its last failover,
	// before falling back to the first executor. Zero disables reset:
	// the group simply starts from the first executor on every call.
	ResetAfter time.Duration
	// FailureStatuses are additional status codes that count as a call
	// failure for the group's failover purposes, beyond the default of
	// treating any status >= 400 as a failure.
	FailureStatuses []int
}

type hostGroupMetrics struct {
	route     *expvar.Map
	failure   *expvar.Map
	available *expvar.Int
	failover  *expvar.Int
}

func newHostGroupMetrics(id string, available int) *hostGroupMetrics {
	avail := getVarInt("hostgroup", id, "available")
	avail.Set(int64(available))
	return &hostGroupMetrics{
		route:     getVarMap("hostgroup", id, "route"),
		failure:   getVarMap("hostgroup", id, "failure"),
		available: avail,
		failover:  getVarInt("hostgroup", id, "failover"),
	}
}

// NewHostGroup returns a new HostGroup trying executors in priority order.
func NewHostGroup(id string, opt HostGroupOptions, executors ...*Executor) *HostGroup {
	return &HostGroup{
		id:        id,
		executors: executors,
		opt:       opt,
		metrics:   newHostGroupMetrics(id, len(executors)),
	}
}

// Execute drives the currently-active executor; on failure it fails over
// to the next one in the group, trying each executor at most once.
func (g *HostGroup) Execute(ctx context.Context, worker string, req Request) Response {
	log := logger(req.Trail, string(req.Method), req.Path).WithField("group", g.id)
	var resp Response
	for i := 0; i < len(g.executors); i++ {
		ex, active := g.current(i)
		log.WithField("executor", ex.id).Debug("routing call to executor")
		g.metrics.route.Add(ex.id, 1)

		resp = ex.Execute(ctx, worker, req)
		if g.isSuccess(resp) {
			return resp
		}
		log.WithField("executor", ex.id).WithField("status", resp.Status).Debug("executor returned failure")
		g.metrics.failure.Add(ex.id, 1)

		g.failoverFrom(active)
	}
	return resp
}

func (g *HostGroup) isSuccess(resp Response) bool {
	for _, s := range g.opt.FailureStatuses {
		if resp.Status == s {
			return false
		}
	}
	return resp.Status < 400
}

func (g *HostGroup) String() string {
	return g.id
}

// current returns the group's currently active executor, thread-safely.
func (g *HostGroup) current(attempt int) (*Executor, int) {
	if g.opt.ResetAfter == 0 {
		return g.executors[attempt], attempt
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.executors[g.active], g.active
}

// failoverFrom moves the active executor to the next one after i (the
// active index) reported failure. Ignored if another call already moved
// the group past i.
func (g *HostGroup) failoverFrom(i int) {
	if g.opt.ResetAfter == 0 {
		return
	}
	g.mu.Lock()
	if i != g.active {
		g.mu.Unlock()
		return
	}
	if g.failCh == nil {
		g.failCh = g.startResetTimer()
	}
	failCh := g.failCh
	g.active = (g.active + 1) % len(g.executors)
	next := g.executors[g.active].id
	g.mu.Unlock()

	Log.WithFields(logrus.Fields{"group": g.id, "executor": next}).Debug("failing over")
	g.metrics.failover.Add(1)
	g.metrics.available.Add(-1)
	select {
	case failCh <- struct{}{}:
	default: // a reset signal is already pending
	}
}

// startResetTimer resets the group back to its first executor after
// ResetAfter has elapsed without a further failure signal. The timer ends
// once it has fallen back; the next failover starts a new one.
func (g *HostGroup) startResetTimer() chan struct{} {
	failCh := make(chan struct{}, 1)
	go func() {
		timer := time.NewTimer(g.opt.ResetAfter)
		for {
			select {
			case <-failCh:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(g.opt.ResetAfter)
			case <-timer.C:
				g.mu.Lock()
				g.active = 0
				g.failCh = nil
				g.mu.Unlock()
				Log.WithFields(logrus.Fields{"group": g.id, "executor": g.executors[0].id}).Debug("falling back to primary")
				g.metrics.available.Set(int64(len(g.executors)))
				return
			}
		}
	}()
	return failCh
}
