package xconn

import "fmt"

// Verbosity controls how much of a call's trail is recorded.
type Verbosity uint8

const (
	// VerbosityProtocol records header lines only.
	VerbosityProtocol Verbosity = iota
	// VerbosityDetail records headers and bodies.
	VerbosityDetail
)

// AbortReason tags why an Execute call stopped without success.
type AbortReason string

const (
	AbortPermanent AbortReason = "Permanent"
	AbortTemporary AbortReason = "Temporary"
)

// Trail is the sideways observability contract: a correlation
// marker, TX/RX/timeout events, transport-error events, and an abort event
// when retries are exhausted. The executor is the only caller; a Trail
// implementation decides how (or whether) to record each event.
type Trail interface {
	// Correlate records the correlation id for everything that follows in
	// this call.
	Correlate(id string)
	// TX records an outbound attempt against a target.
	TX(target string, headers []Header, body []byte)
	// RX records a response from a target.
	RX(target string, status int, headers map[string]string, body []byte)
	// Timeout records that an attempt against target exceeded its budget.
	Timeout(target string)
	// TransportError records a transport failure, classified by kind, for
	// the given target.
	TransportError(target string, kind string, err error)
	// Debug records one chunk of raw wire bytes captured by the transport's
	// debug hook, for the given target.
	Debug(target string, event DebugEvent)
	// Abort records that the call gave up, tagged Permanent or Temporary.
	Abort(reason AbortReason)
}

// NopTrail discards every event. It is the default when an Executor is
// built without an explicit Trail.
type NopTrail struct{}

func (NopTrail) Correlate(string)                          {}
func (NopTrail) TX(string, []Header, []byte)               {}
func (NopTrail) RX(string, int, map[string]string, []byte) {}
func (NopTrail) Timeout(string)                             {}
func (NopTrail) TransportError(string, string, error)       {}
func (NopTrail) Debug(string, DebugEvent)                   {}
func (NopTrail) Abort(AbortReason)                          {}

var _ Trail = NopTrail{}

// LogTrail is the default non-trivial Trail, writing structured events
// through the package logger at the given verbosity. SyslogTrail (see
// trail_syslog.go) is a separate Trail; no Trail in this package forwards
// to both, so an Executor given a SyslogTrail does not also log through a
// LogTrail.
type LogTrail struct {
	verbosity Verbosity
	trail     string
	method    string
	path      string
}

var _ Trail = &LogTrail{}

// NewLogTrail returns a Trail that logs through the package-level logger.
func NewLogTrail(trail, method, path string, v Verbosity) *LogTrail {
	return &LogTrail{verbosity: v, trail: trail, method: method, path: path}
}

func (t *LogTrail) Correlate(id string) {
	logger(t.trail, t.method, t.path).WithField("correlation_id", id).Debug("correlate")
}

func (t *LogTrail) TX(target string, headers []Header, body []byte) {
	entry := logger(t.trail, t.method, t.path).WithField("target", target)
	if t.verbosity == VerbosityDetail {
		entry = entry.WithField("headers", headers).WithField("body_len", len(body))
	}
	entry.Debug("tx")
}

func (t *LogTrail) RX(target string, status int, headers map[string]string, body []byte) {
	entry := logger(t.trail, t.method, t.path).WithField("target", target).WithField("status", status)
	if t.verbosity == VerbosityDetail {
		entry = entry.WithField("headers", headers).WithField("body_len", len(body))
	}
	entry.Debug("rx")
}

func (t *LogTrail) Timeout(target string) {
	logger(t.trail, t.method, t.path).WithField("target", target).Warn("timeout")
}

func (t *LogTrail) TransportError(target string, kind string, err error) {
	logger(t.trail, t.method, t.path).WithField("target", target).WithField("kind", kind).WithError(err).Warn("transport error")
}

func (t *LogTrail) Debug(target string, event DebugEvent) {
	if t.verbosity != VerbosityDetail && (event.Kind == DebugDataOut || event.Kind == DebugDataIn) {
		return
	}
	logger(t.trail, t.method, t.path).WithField("target", target).WithField("kind", event.Kind).WithField("bytes", len(event.Data)).Debug("wire")
}

func (t *LogTrail) Abort(reason AbortReason) {
	logger(t.trail, t.method, t.path).WithField("reason", string(reason)).Info("abort")
}

func (t *LogTrail) String() string {
	return fmt.Sprintf("LogTrail(%s)", t.trail)
}
