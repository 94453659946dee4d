package xconn

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// Scheme is prepended to the effective URL; "http" or "https".
	Scheme string
	// Host is the hostname or literal IP the resolver is queried for.
	Host string
	// Port is appended to the effective URL's authority.
	Port int
	// AssertUser, if true, adds an X-XCAP-Asserted-Identity header from
	// Request.AssertedUser when non-empty.
	AssertUser bool
	// CorrelationHeader names the header carrying the per-attempt
	// correlation UUID. Defaults to "X-Correlation-Id".
	CorrelationHeader string
	// LoadMonitor, if set, sizes the response timeout and receives
	// penalty signals.
	LoadMonitor LoadMonitor
	// CommunicationMonitor, if set, receives overall success/failure
	// signals.
	CommunicationMonitor CommunicationMonitor
	// Trail records observability events for every call. Defaults to
	// NopTrail.
	Trail Trail
}

// Executor is the per-call state machine: it resolves a
// hostname to a ranked set of targets, drives the transport against them in
// order, classifies each outcome, and returns a Response whose status code
// always encodes the final result.
type Executor struct {
	id       string
	resolver ResolverAdapter
	pool     *Pool
	opt      ExecutorOptions
}

// NewExecutor returns a new Executor identified by id, backed by resolver
// and pool. Each worker's transport handle is owned by pool (see
// NewPool); id names the executor in HostGroup logs and metrics. The
// exposed remote-IP counters are namespaced by the pool's own id.
func NewExecutor(id string, resolver ResolverAdapter, pool *Pool, opt ExecutorOptions) *Executor {
	if opt.CorrelationHeader == "" {
		opt.CorrelationHeader = "X-Correlation-Id"
	}
	if opt.Trail == nil {
		opt.Trail = NopTrail{}
	}
	if opt.Scheme == "" {
		opt.Scheme = "http"
	}
	return &Executor{id: id, resolver: resolver, pool: pool, opt: opt}
}

// clockBase anchors nowMs to the wall-clock time at package start.
var clockBase = time.Now()

// nowMs returns the current instant in milliseconds: the wall-clock time at
// package start plus the monotonic time elapsed since, so later wall-clock
// steps do not move it.
func nowMs() int64 {
	return clockBase.UnixNano()/int64(time.Millisecond) + time.Since(clockBase).Milliseconds()
}

// Execute performs one outbound HTTP call. It never fails with an
// error of its own; every outcome is encoded in the returned Response's
// status code. worker identifies the caller's worker for the
// connection cache lookup -- one entry per worker.
func (e *Executor) Execute(ctx context.Context, worker string, req Request) Response {
	if err := req.validate(); err != nil {
		return Response{Status: 400}
	}

	entry := e.pool.Entry(worker)
	trail := e.opt.Trail

	targets, err := e.resolver.Resolve(ctx, e.opt.Host, e.opt.Port, MaxTargets, req.hostStateMask(), req.Trail)
	if err != nil || len(targets) == 0 {
		trail.Abort(AbortTemporary)
		return Response{Status: 404}
	}

	targets = e.assembleTargets(entry, targets)

	var (
		count503, count504, countTimeoutOrIO int
		resp                                 Response
		success                              bool
		stopped                              bool
	)

	for _, target := range targets {
		expired := entry.expired(nowMs())
		trail.TX(target.String(), req.Headers, req.Body)

		result, attemptErr := e.attempt(ctx, entry, target, req, expired)
		oc := classify(result.Status, attemptErr)
		resp = fallbackResponse(result, oc)

		switch oc {
		case outcomeHTTP503:
			count503++
			trail.RX(target.String(), result.Status, result.Headers, result.Body)
		case outcomeHTTP504:
			count504++
			trail.RX(target.String(), result.Status, result.Headers, result.Body)
		case outcomeTimeoutOrIO:
			countTimeoutOrIO++
			trail.Timeout(target.String())
		case outcomeConnectFailure:
			trail.TransportError(target.String(), "connect_failure", attemptErr)
			if expired {
				e.resolver.Blacklist(target)
			}
		case outcomeFatalHTTP, outcomeOK:
			trail.RX(target.String(), result.Status, result.Headers, result.Body)
		}

		if oc == outcomeOK {
			if expired {
				entry.advanceDeadline(nowMs())
				entry.recreateTransport(entry.pool.newTr)
			}
			entry.setRemoteIP(target.IP())
			success = true
			stopped = true
			break
		}

		if oc == outcomeFatalHTTP {
			trail.Abort(AbortPermanent)
			stopped = true
			break
		}

		if count503+countTimeoutOrIO >= 2 || count504 >= 1 {
			trail.Abort(AbortTemporary)
			stopped = true
			break
		}
	}

	if !stopped {
		// Candidate list exhausted without a terminal outcome.
		trail.Abort(AbortTemporary)
	}

	if e.opt.LoadMonitor != nil && (count503 >= 2 || count504 >= 1) {
		e.opt.LoadMonitor.IncrPenalties()
	}

	if e.opt.CommunicationMonitor != nil {
		if success && count503 < 2 {
			e.opt.CommunicationMonitor.InformSuccess(nowMs())
		} else {
			e.opt.CommunicationMonitor.InformFailure(nowMs())
		}
	}

	return resp
}

// fallbackResponse maps a non-OK outcome to the status code that would be
// returned if the attempt loop stops here.
func fallbackResponse(result AttemptResult, oc outcome) Response {
	switch oc {
	case outcomeConnectFailure:
		return Response{Status: 404}
	case outcomeHTTP503, outcomeHTTP504, outcomeFatalHTTP, outcomeOK:
		return Response{Status: result.Status, Body: result.Body, Headers: result.Headers}
	default: // outcomeTimeoutOrIO and any unrecognized transport failure
		return Response{Status: 500}
	}
}

// assembleTargets applies the sticky-first and minimum-retry rules to the
// resolver's candidate list.
func (e *Executor) assembleTargets(entry *Entry, targets []Target) []Target {
	out := append([]Target(nil), targets...)

	if !entry.expired(nowMs()) {
		sticky := entry.RemoteIP()
		if sticky != "" {
			for i, t := range out {
				if t.IP() == sticky {
					out = append(out[:i:i], out[i+1:]...)
					out = append([]Target{t}, out...)
					break
				}
			}
		}
	}

	if len(out) == 1 {
		out = append(out, out[0])
	}
	return out
}

// attempt performs one transport call against target and returns its raw
// result.
func (e *Executor) attempt(ctx context.Context, entry *Entry, target Target, req Request, expired bool) (AttemptResult, error) {
	hostPort := fmt.Sprintf("%s:%d", e.opt.Host, e.opt.Port)
	// Clear whatever removal directive the previous attempt left pending,
	// then leave a fresh one for the next attempt. HTTPTransport installs
	// its override fresh on every Do call, so the override is already
	// single-call-scoped; this bookkeeping exists for ResolverAdapter/
	// Transport pairs that maintain a longer-lived override table.
	entry.takeOverrides()
	entry.setPendingRemoval(hostPort)

	correlationID := uuid.New().String()
	e.opt.Trail.Correlate(correlationID)

	headers := append([]Header(nil), req.Headers...)
	headers = append(headers, Header{Name: "Expect", Value: ""})
	headers = append(headers, Header{Name: e.opt.CorrelationHeader, Value: correlationID})
	if e.opt.AssertUser && req.AssertedUser != "" {
		headers = append(headers, Header{Name: "X-XCAP-Asserted-Identity", Value: req.AssertedUser})
	}
	if len(req.Body) > 0 {
		headers = append(headers, Header{Name: "Content-Type", Value: "application/json"})
	}

	latency := defaultTargetLatencyUs
	if e.opt.LoadMonitor != nil {
		latency = e.opt.LoadMonitor.GetTargetLatencyUs()
	}

	targetStr := target.String()
	opt := AttemptOptions{
		URL:             fmt.Sprintf("%s://%s:%d%s", e.opt.Scheme, e.opt.Host, e.opt.Port, req.Path),
		Method:          string(req.Method),
		Body:            req.Body,
		Headers:         headers,
		OverrideHost:    hostPort,
		OverrideAddr:    targetStr,
		ForceFreshConn:  expired,
		ResponseTimeout: time.Duration(responseTimeoutMs(latency)) * time.Millisecond,
		ConnectTimeout:  defaultConnectTimeout * time.Millisecond,
		OnDebug: func(event DebugEvent) {
			e.opt.Trail.Debug(targetStr, event)
		},
	}

	return entry.transportHandle().Do(ctx, opt)
}
