package xconn

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// MaxTargets is the maximum number of candidates the executor asks the
// resolver for per call.
const MaxTargets = 5

// ResolverAdapter is the contract boundary to the DNS/health-aware resolver
// that ranks candidate targets, accepts blacklist feedback, and parses
// literal IP targets. The core only depends on this interface -- the
// resolver's own implementation (cooldowns, health scoring, DNS lookups) is
// an external collaborator.
type ResolverAdapter interface {
	// Resolve returns up to max candidates for host:port, ordered by the
	// resolver's own preference (healthy and whitelisted first), filtered
	// to those satisfying mask. May return fewer, including zero.
	Resolve(ctx context.Context, host string, port int, max int, mask HostState, trail string) ([]Target, error)

	// Blacklist marks target as known-bad; subsequent Resolve calls avoid
	// it for a resolver-defined cooldown.
	Blacklist(target Target)

	fmt.Stringer
}

// ParseIPTarget parses a dotted-quad or bracketed IPv6 literal plus port
// into a Target, without consulting the resolver. This is the literal-IP
// fast path any ResolverAdapter implementation can reuse.
func ParseIPTarget(literal string, port int, transport string) (Target, bool) {
	host := literal
	if strings.HasPrefix(literal, "[") && strings.HasSuffix(literal, "]") {
		host = literal[1 : len(literal)-1]
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Target{}, false
	}
	family := AddressFamilyIPv4
	if ip.To4() == nil {
		family = AddressFamilyIPv6
	}
	return Target{Family: family, Addr: ip, Port: port, Transport: transport}, true
}
