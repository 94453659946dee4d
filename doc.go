/*
Package xconn implements a resilient client-side HTTP transport used to call
a fleet of equivalent backend servers from a telecom signalling node (HSS,
registration and routing stores, and similar). The value isn't making an
HTTP call -- that's a commodity -- it's the machinery around it.

Executor

The Executor is a per-call state machine. It asks a ResolverAdapter for a
ranked set of candidate Targets, decides which to try and in what order,
drives the Transport for each attempt, classifies the outcome, and decides
whether to retry, stop, or blacklist the target with the resolver.

Pool

Pool is the worker-local connection cache: one entry per worker holding the
live transport handle, its recycle deadline, the last-used peer IP, and the
per-call DNS overrides needed to pin a connection to a resolved address
without losing TLS SNI / Host header correctness.

Resolver

ResolverAdapter is the contract boundary to the DNS/health-aware resolver
that ranks candidate targets, accepts blacklist feedback on connect
failures, and parses literal IP targets.

HostGroup

HostGroup wraps several Executors, each pointed at a distinct backend
cluster (e.g. a primary and secondary HSS), and fails over between them the
way a single Executor fails over between targets of one cluster.

This example builds an Executor against a single backend hostname and fires
a GET:

	pool := xconn.NewPool("hss-primary", func() xconn.Transport {
		return xconn.NewHTTPTransport(xconn.TransportOptions{})
	})
	resolver := xconn.NewDNSResolver(xconn.DNSResolverOptions{})
	ex := xconn.NewExecutor("hss-primary", resolver, pool, xconn.ExecutorOptions{Host: "hss.internal", Port: 8443})
	resp := ex.Execute(context.Background(), "worker-0", xconn.Request{Method: xconn.MethodGet, Path: "/subscribers/1"})
*/
package xconn
