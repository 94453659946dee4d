package xconn

import (
	"fmt"

	syslog "github.com/RackSec/srslog"
)

// SyslogTrail forwards every recorded event to syslog, in addition to
// whatever the caller composes it with. It never blocks a call on a
// syslog failure: write errors are logged through the package logger and
// otherwise swallowed.
type SyslogTrail struct {
	id     string
	writer *syslog.Writer
	opt    SyslogTrailOptions
}

var _ Trail = &SyslogTrail{}

// SyslogTrailOptions configures a SyslogTrail.
type SyslogTrailOptions struct {
	// Network is "udp", "tcp", or "unix". Defaults to "udp".
	Network string
	// Address is the remote syslog server. Empty dials the local syslog
	// daemon.
	Address string
	// Priority as per https://pkg.go.dev/log/syslog#Priority.
	Priority int
	// Tag prefixes every message.
	Tag string
	// Verbosity controls whether bodies are logged (VerbosityDetail) or
	// only headers/targets (VerbosityProtocol).
	Verbosity Verbosity
}

// NewSyslogTrail returns a new instance of a syslog-backed Trail.
func NewSyslogTrail(id string, opt SyslogTrailOptions) *SyslogTrail {
	if opt.Network == "" {
		opt.Network = "udp"
	}
	writer, err := syslog.Dial(opt.Network, opt.Address, syslog.Priority(opt.Priority), opt.Tag)
	if err != nil {
		Log.WithError(err).Error("failed to initialize syslog trail")
	}
	return &SyslogTrail{id: id, writer: writer, opt: opt}
}

func (s *SyslogTrail) write(msg string) {
	if s.writer == nil {
		return
	}
	if _, err := s.writer.Write([]byte(msg)); err != nil {
		Log.WithError(err).Error("failed to send syslog trail event")
	}
}

func (s *SyslogTrail) Correlate(id string) {
	s.write(fmt.Sprintf("id=%s type=correlate correlation_id=%s", s.id, id))
}

func (s *SyslogTrail) TX(target string, headers []Header, body []byte) {
	msg := fmt.Sprintf("id=%s type=tx target=%s", s.id, target)
	if s.opt.Verbosity == VerbosityDetail {
		msg = fmt.Sprintf("%s headers=%d body_len=%d", msg, len(headers), len(body))
	}
	s.write(msg)
}

func (s *SyslogTrail) RX(target string, status int, headers map[string]string, body []byte) {
	msg := fmt.Sprintf("id=%s type=rx target=%s status=%d", s.id, target, status)
	if s.opt.Verbosity == VerbosityDetail {
		msg = fmt.Sprintf("%s headers=%d body_len=%d", msg, len(headers), len(body))
	}
	s.write(msg)
}

func (s *SyslogTrail) Timeout(target string) {
	s.write(fmt.Sprintf("id=%s type=timeout target=%s", s.id, target))
}

func (s *SyslogTrail) TransportError(target string, kind string, err error) {
	s.write(fmt.Sprintf("id=%s type=transport-error target=%s kind=%s error=%q", s.id, target, kind, err))
}

func (s *SyslogTrail) Debug(target string, event DebugEvent) {
	if s.opt.Verbosity != VerbosityDetail && (event.Kind == DebugDataOut || event.Kind == DebugDataIn) {
		return
	}
	s.write(fmt.Sprintf("id=%s type=wire target=%s kind=%d bytes=%d", s.id, target, event.Kind, len(event.Data)))
}

func (s *SyslogTrail) Abort(reason AbortReason) {
	s.write(fmt.Sprintf("id=%s type=abort reason=%s", s.id, reason))
}

func (s *SyslogTrail) String() string {
	return s.id
}
