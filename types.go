package xconn

import (
	"fmt"
	"net"
	"strings"
)

// Method is an HTTP verb supported by the executor.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPut    Method = "PUT"
	MethodPost   Method = "POST"
	MethodDelete Method = "DELETE"
)

// HostState is a bitmask of resolver-maintained health lists a candidate
// target may belong to. The executor forwards it to the ResolverAdapter,
// which filters candidates so that only targets satisfying the mask are
// returned.
type HostState uint8

const (
	HostStateWhitelisted HostState = 1 << iota
	HostStateHealthy
	HostStateDegraded

	// HostStateAll matches every list the resolver maintains. It is the
	// default used when a Request doesn't specify a mask.
	HostStateAll = HostStateWhitelisted | HostStateHealthy | HostStateDegraded
)

// Request is an immutable value describing one outbound HTTP call.
type Request struct {
	Method Method
	// Path is absolute and must begin with "/".
	Path string
	// Body is opaque, UTF-8 JSON by convention. May be nil.
	Body []byte
	// Headers are extra request headers, each a single line without CRLF.
	Headers []Header
	// HostStateMask restricts which resolver lists a candidate may come
	// from. Zero means HostStateAll.
	HostStateMask HostState
	// AssertedUser, if non-empty, is added as an X-XCAP-Asserted-Identity
	// header, but only if the Executor was built with AssertUser = true.
	AssertedUser string
	// Trail correlates observability events for this call across the
	// rest of the system.
	Trail string
}

// Header is a single request header line.
type Header struct {
	Name  string
	Value string
}

func (r Request) hostStateMask() HostState {
	if r.HostStateMask == 0 {
		return HostStateAll
	}
	return r.HostStateMask
}

func (r Request) validate() error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("request path %q must begin with '/'", r.Path)
	}
	return nil
}

// Response is the result of an Executor call. Status 0 means "not yet
// sent" and must never be observed after Execute returns.
type Response struct {
	Status  int
	Body    []byte
	Headers map[string]string
}

// setHeader lower-cases the name and trims whitespace from both name and
// value before storing, per the header-callback contract. Duplicate
// headers overwrite: last one wins.
func (r *Response) setHeader(line string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	name, value, found := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	if !found {
		r.Headers[strings.ToLower(name)] = ""
		return
	}
	r.Headers[strings.ToLower(name)] = strings.TrimSpace(value)
}

// Target is one (address family, address, port, transport) candidate
// returned by a ResolverAdapter. Equality is by all four fields.
type Target struct {
	Family    AddressFamily
	Addr      net.IP
	Port      int
	Transport string
}

// AddressFamily distinguishes IPv4 from IPv6 targets.
type AddressFamily uint8

const (
	AddressFamilyIPv4 AddressFamily = iota
	AddressFamilyIPv6
)

func (t Target) String() string {
	return net.JoinHostPort(t.Addr.String(), fmt.Sprintf("%d", t.Port))
}

// Equal reports whether two targets refer to the same address family,
// address, port and transport.
func (t Target) Equal(o Target) bool {
	return t.Family == o.Family && t.Port == o.Port && t.Transport == o.Transport && t.Addr.Equal(o.Addr)
}

// IP returns the dotted-quad or IPv6 printable address (IPv6 without
// brackets).
func (t Target) IP() string {
	return t.Addr.String()
}
