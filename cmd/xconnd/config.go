package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/heimdalr/dag"
)

// config is the top-level TOML document describing a fleet of backend
// clusters this process can call through.
type config struct {
	Title     string
	Resolvers map[string]resolverConfig
	Backends  map[string]backendConfig
	Groups    map[string]groupConfig
}

// resolverConfig describes one DNSResolver instance.
type resolverConfig struct {
	Nameserver        string
	Net               string
	QueryTimeoutMs    int    `toml:"query-timeout-ms"`
	BlacklistCooldown string `toml:"blacklist-cooldown"`
	GeoDBFile         string `toml:"geo-db-file"`
	HomeGeoID         uint   `toml:"home-geo-id"`
}

// backendConfig describes one Executor against a single hostname.
type backendConfig struct {
	Resolver     string
	Host         string
	Port         int
	Scheme       string
	AssertUser   bool   `toml:"assert-user"`
	TrailVerbose string `toml:"trail-verbosity"` // "protocol" or "detail"
	Syslog       syslogConfig
}

type syslogConfig struct {
	Enabled  bool
	Network  string
	Address  string
	Priority int
	Tag      string
}

// groupConfig describes a HostGroup failing over across backends, in
// priority order.
type groupConfig struct {
	Backends       []string
	ResetAfterSecs int `toml:"reset-after-seconds"`
}

// loadConfig reads and merges one or more TOML config files.
func loadConfig(paths ...string) (*config, error) {
	cfg := &config{
		Resolvers: make(map[string]resolverConfig),
		Backends:  make(map[string]backendConfig),
		Groups:    make(map[string]groupConfig),
	}
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		var part config
		if _, err := toml.Decode(string(b), &part); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", p, err)
		}
		for k, v := range part.Resolvers {
			cfg.Resolvers[k] = v
		}
		for k, v := range part.Backends {
			cfg.Backends[k] = v
		}
		for k, v := range part.Groups {
			cfg.Groups[k] = v
		}
	}
	return cfg, nil
}

// groupNode implements dag.IDInterface so host-group membership can be
// checked for reference cycles before anything is instantiated.
type groupNode struct {
	id string
}

func (n groupNode) ID() string { return n.id }

// validateNoCycles builds a DAG of group -> backend/group references and
// fails if any group (directly or transitively) references itself. Only
// members naming another group's id add edges. run accepts only backend ids
// as group members, so a configuration whose groups reference other groups
// is rejected there even when it has no cycle.
func validateNoCycles(cfg *config) error {
	graph := dag.NewDAG()
	for id := range cfg.Groups {
		if _, err := graph.AddVertex(groupNode{id}); err != nil {
			return fmt.Errorf("duplicate group id %q: %w", id, err)
		}
	}
	for id, g := range cfg.Groups {
		for _, member := range g.Backends {
			if _, ok := cfg.Groups[member]; !ok {
				continue // a plain backend reference, not a group edge
			}
			if err := graph.AddEdge(id, member); err != nil {
				return fmt.Errorf("group %q: %w", id, err)
			}
		}
	}
	return nil
}
