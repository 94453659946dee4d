package xconn

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// DNSResolverOptions configures a DNSResolver.
type DNSResolverOptions struct {
	// Nameserver to query, "ip:port". Defaults to "127.0.0.1:53".
	Nameserver string
	// Net is "udp" or "tcp". Defaults to "udp".
	Net string
	// QueryTimeout bounds a single A/AAAA lookup. Defaults to 2s.
	QueryTimeout time.Duration
	// BlacklistCooldown is how long a blacklisted target stays excluded
	// from Resolve results. Defaults to 30s.
	BlacklistCooldown time.Duration
	// HealthScorer, if set, re-orders same-state candidates (see
	// resolver_health.go). Optional.
	HealthScorer *HealthScorer
}

// DNSResolver is the reference ResolverAdapter implementation: it looks up
// A/AAAA records for a hostname with miekg/dns, maintains a per-address
// whitelist/degraded overlay and a blacklist cooldown, and returns targets
// ranked whitelisted-then-healthy-then-degraded, filtered by the caller's
// HostState mask. Production deployments are expected to swap this for a
// resolver backed by the fleet's own health telemetry; this one exists so
// the executor and connection cache can be exercised end to end.
type DNSResolver struct {
	opt       DNSResolverOptions
	client    *dns.Client
	blacklist *targetBlacklist
	mu        sync.RWMutex
	whitelist map[string]struct{}
	degraded  map[string]struct{}
}

var _ ResolverAdapter = &DNSResolver{}

// NewDNSResolver returns a new instance of the reference resolver adapter.
func NewDNSResolver(opt DNSResolverOptions) *DNSResolver {
	if opt.Nameserver == "" {
		opt.Nameserver = "127.0.0.1:53"
	}
	if opt.Net == "" {
		opt.Net = "udp"
	}
	if opt.QueryTimeout == 0 {
		opt.QueryTimeout = 2 * time.Second
	}
	return &DNSResolver{
		opt:       opt,
		client:    &dns.Client{Net: opt.Net, Timeout: opt.QueryTimeout},
		blacklist: newTargetBlacklist(opt.BlacklistCooldown),
		whitelist: make(map[string]struct{}),
		degraded:  make(map[string]struct{}),
	}
}

// Whitelist marks ip as whitelisted, moving it ahead of plain healthy
// candidates in future Resolve results.
func (d *DNSResolver) Whitelist(ip string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.degraded, ip)
	d.whitelist[ip] = struct{}{}
}

// MarkDegraded marks ip as degraded, moving it behind plain healthy
// candidates (but still eligible under HostStateDegraded).
func (d *DNSResolver) MarkDegraded(ip string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.whitelist, ip)
	d.degraded[ip] = struct{}{}
}

func (d *DNSResolver) stateOf(ip string) HostState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.whitelist[ip]; ok {
		return HostStateWhitelisted
	}
	if _, ok := d.degraded[ip]; ok {
		return HostStateDegraded
	}
	return HostStateHealthy
}

// Resolve implements ResolverAdapter.
func (d *DNSResolver) Resolve(ctx context.Context, host string, port int, max int, mask HostState, trail string) ([]Target, error) {
	if mask == 0 {
		mask = HostStateAll
	}
	if max <= 0 || max > MaxTargets {
		max = MaxTargets
	}

	if target, ok := ParseIPTarget(host, port, d.opt.Net); ok {
		return []Target{target}, nil
	}

	log := logger(trail, "", host).WithFields(logrus.Fields{"component": "dns-resolver", "nameserver": d.opt.Nameserver})
	log.Debug("resolving host")

	var candidates []Target
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.SetEdns0(4096, false)
		resp, _, err := d.client.ExchangeContext(ctx, m, d.opt.Nameserver)
		if err != nil {
			log.WithError(err).Debug("lookup failed")
			continue
		}
		for _, rr := range resp.Answer {
			var ip net.IP
			family := AddressFamilyIPv4
			switch rec := rr.(type) {
			case *dns.A:
				ip = rec.A
			case *dns.AAAA:
				ip = rec.AAAA
				family = AddressFamilyIPv6
			default:
				continue
			}
			candidates = append(candidates, Target{Family: family, Addr: ip, Port: port, Transport: d.opt.Net})
		}
	}

	var filtered []Target
	for _, c := range candidates {
		if d.blacklist.contains(c) {
			continue
		}
		if d.stateOf(c.IP())&mask == 0 {
			continue
		}
		filtered = append(filtered, c)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		ri, rj := rank(d.stateOf(filtered[i].IP())), rank(d.stateOf(filtered[j].IP()))
		if ri != rj {
			return ri < rj
		}
		if d.opt.HealthScorer != nil {
			return d.opt.HealthScorer.score(filtered[i]) < d.opt.HealthScorer.score(filtered[j])
		}
		return false
	})

	if len(filtered) > max {
		filtered = filtered[:max]
	}
	return filtered, nil
}

// rank orders host states for sorting: whitelisted first, then healthy,
// then degraded.
func rank(s HostState) int {
	switch {
	case s&HostStateWhitelisted != 0:
		return 0
	case s&HostStateDegraded != 0:
		return 2
	default:
		return 1
	}
}

// Blacklist implements ResolverAdapter.
func (d *DNSResolver) Blacklist(target Target) {
	d.blacklist.add(target)
}

func (d *DNSResolver) String() string {
	return fmt.Sprintf("DNSResolver(%s)", d.opt.Nameserver)
}
