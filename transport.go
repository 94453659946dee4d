package xconn

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"
)

// DebugEventKind classifies one chunk of raw bytes captured from the wire,
// matching the transport debug callback.
type DebugEventKind int

const (
	DebugHeaderOut DebugEventKind = iota
	DebugDataOut
	DebugHeaderIn
	DebugDataIn
)

// DebugEvent carries raw request/response bytes for trail recording. The
// transport emits every kind; trail sinks at detail verbosity record body
// bytes, while at protocol verbosity they drop DebugDataOut/DebugDataIn
// events.
type DebugEvent struct {
	Kind DebugEventKind
	Data []byte
}

// AttemptOptions configures a single Transport.Do call. It mirrors the
// option surface the downward transport contract exposes: URL,
// method, body, headers, per-call DNS override, fresh-connection flag, and
// the two timeouts.
type AttemptOptions struct {
	URL             string
	Method          string
	Body            []byte
	Headers         []Header
	OverrideHost    string // host:port the URL's authority should resolve to
	OverrideAddr    string // ip:port to dial instead
	ForceFreshConn  bool
	ResponseTimeout time.Duration
	ConnectTimeout  time.Duration
	OnDebug         func(DebugEvent)
}

// AttemptResult carries the outcome of a single transport attempt: the
// info-query surface (status and peer IP; the peer port is not reported)
// plus the response body and headers.
type AttemptResult struct {
	Status   int
	Body     []byte
	Headers  map[string]string
	RemoteIP string
}

// Transport is the downward contract the executor drives for each attempt.
// It owns connection reuse, TLS and DNS mechanics -- all explicitly out of
// scope for the core -- and exposes only the narrow surface
// the executor needs: perform one call with the given options.
type Transport interface {
	Do(ctx context.Context, opt AttemptOptions) (AttemptResult, error)
	// Close releases any connection held open for reuse, called when the
	// connection cache decides to recycle.
	Close()
}

// TransportOptions configures an HTTPTransport.
type TransportOptions struct {
	TLSConfig *tls.Config
}

// HTTPTransport is the default Transport, a thin adapter over net/http:
// proxy from environment, a custom dialer that can be pinned to a resolved
// IP while keeping the original hostname for the Host header and TLS SNI,
// TCP_NODELAY on, and MaxConnsPerHost = 1 per worker since the connection
// cache -- not net/http -- owns reuse.
type HTTPTransport struct {
	opt    TransportOptions
	client *http.Client
	tr     *http.Transport
}

var _ Transport = &HTTPTransport{}

// NewHTTPTransport returns a new instance of the default HTTP(S) transport.
func NewHTTPTransport(opt TransportOptions) *HTTPTransport {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     opt.TLSConfig,
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
		DisableCompression:  true,
	}
	return &HTTPTransport{
		opt:    opt,
		tr:     tr,
		client: &http.Client{Transport: tr},
	}
}

// Do performs one HTTP attempt per AttemptOptions.
func (h *HTTPTransport) Do(ctx context.Context, opt AttemptOptions) (AttemptResult, error) {
	dialer := &net.Dialer{Timeout: opt.ConnectTimeout, KeepAlive: -1}
	tr := h.tr.Clone()
	var peer string
	tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if opt.OverrideAddr != "" && addr == opt.OverrideHost {
			addr = opt.OverrideAddr
		}
		c, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, wrapConnect(Target{}, err)
		}
		peer = c.RemoteAddr().String()
		if tcpConn, ok := c.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		return c, nil
	}
	if opt.ForceFreshConn {
		tr.DisableKeepAlives = true
	}
	client := &http.Client{Transport: tr, Timeout: opt.ResponseTimeout}

	var body io.Reader
	if len(opt.Body) > 0 {
		body = bytes.NewReader(opt.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opt.Method, opt.URL, body)
	if err != nil {
		return AttemptResult{}, fmt.Errorf("malformed url: %w", err)
	}
	for _, hdr := range opt.Headers {
		req.Header.Add(hdr.Name, hdr.Value)
	}

	if opt.OnDebug != nil {
		opt.OnDebug(DebugEvent{Kind: DebugHeaderOut, Data: []byte(requestLine(req))})
		if len(opt.Body) > 0 {
			opt.OnDebug(DebugEvent{Kind: DebugDataOut, Data: opt.Body})
		}
		ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{})
		req = req.WithContext(ctx)
	}

	resp, err := client.Do(req)
	if err != nil {
		if te, ok := err.(interface{ Timeout() bool }); (ok && te.Timeout()) || ctx.Err() != nil {
			return AttemptResult{}, AttemptTimeoutError{}
		}
		return AttemptResult{}, wrapConnect(Target{}, err)
	}
	defer resp.Body.Close()

	result := AttemptResult{Status: resp.StatusCode}
	if host, _, err := net.SplitHostPort(peer); err == nil {
		result.RemoteIP = host
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return AttemptResult{}, AttemptTimeoutError{}
	}
	result.Body = respBody

	result.Headers = make(map[string]string, len(resp.Header))
	for name, values := range resp.Header {
		if len(values) == 0 {
			continue
		}
		r := Response{}
		r.setHeader(fmt.Sprintf("%s: %s", name, values[len(values)-1]))
		for k, v := range r.Headers {
			result.Headers[k] = v
		}
	}

	if opt.OnDebug != nil {
		opt.OnDebug(DebugEvent{Kind: DebugHeaderIn, Data: []byte(fmt.Sprintf("HTTP %d", resp.StatusCode))})
		if len(respBody) > 0 {
			opt.OnDebug(DebugEvent{Kind: DebugDataIn, Data: respBody})
		}
	}

	return result, nil
}

// Close releases idle connections held by the underlying http.Transport.
func (h *HTTPTransport) Close() {
	h.tr.CloseIdleConnections()
}

func requestLine(req *http.Request) string {
	return fmt.Sprintf("%s %s %s", req.Method, req.URL.RequestURI(), req.Proto)
}
