package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	xconn "github.com/vbohinc/xconn"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type cliOptions struct {
	logLevel uint32
	probe    string
}

func main() {
	var opt cliOptions
	cmd := &cobra.Command{
		Use:   "xconnd <config> [<config>..]",
		Short: "resilient HTTP client executor fleet probe",
		Long: `xconnd loads a fleet configuration describing backend clusters and
their resolvers, wires up one Executor/HostGroup per configured backend,
and fires a single probe call against the named target. It exists to
exercise the core executor against a real configuration; it is not a
server and holds no listeners of its own.
`,
		Example: `  xconnd -p hss-primary fleet.toml`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, args)
		},
		SilenceUsage: true,
	}

	cmd.Flags().Uint32VarP(&opt.logLevel, "log-level", "l", 4, "log level; 0=Panic .. 6=Trace")
	cmd.Flags().StringVarP(&opt.probe, "probe", "p", "", "backend or group id to send a GET / probe to")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// onClose holds teardown callbacks for every instantiated pool, run on
// SIGINT/SIGTERM/SIGHUP.
var onClose []func()

func run(opt cliOptions, args []string) error {
	if opt.logLevel > 6 {
		return fmt.Errorf("invalid log level: %d", opt.logLevel)
	}
	xconn.Log.(interface{ SetLevel(logrus.Level) }).SetLevel(logrus.Level(opt.logLevel))

	cfg, err := loadConfig(args...)
	if err != nil {
		return err
	}
	if err := validateNoCycles(cfg); err != nil {
		return err
	}

	resolvers := make(map[string]xconn.ResolverAdapter)
	for id, rc := range buildResolvers(cfg) {
		resolvers[id] = rc
	}

	backends := make(map[string]*xconn.Executor)
	for id, bc := range cfg.Backends {
		resolver, ok := resolvers[bc.Resolver]
		if !ok {
			return fmt.Errorf("backend %q references unknown resolver %q", id, bc.Resolver)
		}
		pool := xconn.NewPool(id, nil)
		onClose = append(onClose, pool.Close)

		verbosity := xconn.VerbosityProtocol
		if bc.TrailVerbose == "detail" {
			verbosity = xconn.VerbosityDetail
		}
		var trail xconn.Trail = xconn.NewLogTrail(id, "", "", verbosity)
		if bc.Syslog.Enabled {
			trail = xconn.NewSyslogTrail(id, xconn.SyslogTrailOptions{
				Network:   bc.Syslog.Network,
				Address:   bc.Syslog.Address,
				Priority:  bc.Syslog.Priority,
				Tag:       bc.Syslog.Tag,
				Verbosity: verbosity,
			})
		}

		backends[id] = xconn.NewExecutor(id, resolver, pool, xconn.ExecutorOptions{
			Scheme:     bc.Scheme,
			Host:       bc.Host,
			Port:       bc.Port,
			AssertUser: bc.AssertUser,
			Trail:      trail,
		})
	}

	groups := make(map[string]*xconn.HostGroup)
	for id, gc := range cfg.Groups {
		var members []*xconn.Executor
		for _, name := range gc.Backends {
			ex, ok := backends[name]
			if !ok {
				return fmt.Errorf("group %q references unknown backend %q", id, name)
			}
			members = append(members, ex)
		}
		groups[id] = xconn.NewHostGroup(id, xconn.HostGroupOptions{
			ResetAfter: time.Duration(gc.ResetAfterSecs) * time.Second,
		}, members...)
	}

	if opt.probe != "" {
		if err := probe(backends, groups, opt.probe); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	<-sig
	xconn.Log.Info("stopping")
	for _, f := range onClose {
		f()
	}
	return nil
}

// buildResolvers instantiates a DNSResolver per configured entry.
func buildResolvers(cfg *config) map[string]*xconn.DNSResolver {
	out := make(map[string]*xconn.DNSResolver, len(cfg.Resolvers))
	for id, rc := range cfg.Resolvers {
		opt := xconn.DNSResolverOptions{Nameserver: rc.Nameserver, Net: rc.Net}
		if rc.QueryTimeoutMs > 0 {
			opt.QueryTimeout = time.Duration(rc.QueryTimeoutMs) * time.Millisecond
		}
		if rc.BlacklistCooldown != "" {
			if d, err := time.ParseDuration(rc.BlacklistCooldown); err == nil {
				opt.BlacklistCooldown = d
			}
		}
		if rc.GeoDBFile != "" {
			scorer, err := xconn.NewHealthScorer(rc.GeoDBFile, rc.HomeGeoID)
			if err == nil {
				opt.HealthScorer = scorer
				onClose = append(onClose, func() { scorer.Close() })
			} else {
				xconn.Log.WithError(err).Warn("failed to load geo database, continuing without health scoring")
			}
		}
		out[id] = xconn.NewDNSResolver(opt)
	}
	return out
}

// probe fires a single GET / against the named backend or group, for
// operators wiring up a new fleet configuration.
func probe(backends map[string]*xconn.Executor, groups map[string]*xconn.HostGroup, name string) error {
	req := xconn.Request{Method: xconn.MethodGet, Path: "/", Trail: "probe"}
	if ex, ok := backends[name]; ok {
		resp := ex.Execute(context.Background(), "probe", req)
		xconn.Log.WithField("status", resp.Status).Info("probe complete")
		return nil
	}
	if g, ok := groups[name]; ok {
		resp := g.Execute(context.Background(), "probe", req)
		xconn.Log.WithField("status", resp.Status).Info("probe complete")
		return nil
	}
	return errors.New("probe target '" + name + "' is not a configured backend or group")
}
