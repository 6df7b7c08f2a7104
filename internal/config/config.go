// Package config holds node configuration and flag parsing.
package config

import (
	"flag"
	"fmt"
	"net/url"
	"time"

	"menusync/internal/mesh"
	"menusync/internal/protocol"
)

// Config holds the node configuration.
type Config struct {
	HubURL string
	PeerID string // empty means generate a fresh id
	Mesh   mesh.Config
}

// Default returns the deployed defaults against a local hub.
func Default() Config {
	return Config{
		HubURL: "http://127.0.0.1:9200",
		Mesh: mesh.Config{
			DiscoveryInterval:  5 * time.Second,
			RevalidateInterval: 10 * time.Second,
			ProbeInterval:      2 * time.Second,
			BroadcastInterval:  5 * time.Second,
			CleanupInterval:    1 * time.Second,
			LingerWindow:       8 * time.Second,
			StaleWindow:        10 * time.Second,
		},
	}
}

// RegisterFlags binds the configuration to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.HubURL, "hub", c.HubURL, "hub base URL (directory + relay)")
	fs.StringVar(&c.PeerID, "id", c.PeerID, "fixed peer id (default: generated)")
	fs.DurationVar(&c.Mesh.DiscoveryInterval, "discovery-interval", c.Mesh.DiscoveryInterval, "directory listing poll interval")
	fs.DurationVar(&c.Mesh.RevalidateInterval, "revalidate-interval", c.Mesh.RevalidateInterval, "per-connection registration check interval")
	fs.DurationVar(&c.Mesh.ProbeInterval, "probe-interval", c.Mesh.ProbeInterval, "latency probe interval")
	fs.DurationVar(&c.Mesh.BroadcastInterval, "broadcast-interval", c.Mesh.BroadcastInterval, "clock re-broadcast interval")
	fs.DurationVar(&c.Mesh.LingerWindow, "linger-window", c.Mesh.LingerWindow, "disconnected peer retention window")
	fs.DurationVar(&c.Mesh.StaleWindow, "stale-window", c.Mesh.StaleWindow, "silent-failure eviction window")
}

// Validate checks the configuration, returning the first problem found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.HubURL)
	if err != nil {
		return fmt.Errorf("invalid hub URL %q: %w", c.HubURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("hub URL %q must use http or https", c.HubURL)
	}
	if u.Host == "" {
		return fmt.Errorf("hub URL %q has no host", c.HubURL)
	}
	if c.PeerID != "" && !protocol.HasPrefix(c.PeerID) {
		return fmt.Errorf("peer id %q must start with %q", c.PeerID, protocol.IDPrefix)
	}
	if c.Mesh.LingerWindow <= 0 || c.Mesh.StaleWindow <= 0 {
		return fmt.Errorf("linger and stale windows must be positive")
	}
	return nil
}
