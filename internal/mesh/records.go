package mesh

import (
	"time"

	"menusync/internal/transport"
)

// PeerRecord tracks one known peer. Records outlive their connection by
// the linger window so the overlay can show recent departures.
type PeerRecord struct {
	ID             string
	Latency        time.Duration
	LastUpdate     time.Time
	Direction      transport.Direction
	Disconnected   bool
	DisconnectedAt time.Time
}

// LastSync is the most recently applied external clock update. Retained
// for the overlay only; the clock itself is the authoritative state.
type LastSync struct {
	Timestamp    time.Time
	SourcePeerID string
	Position     float64
}

// Status is the mesh view read once per animation frame by the render
// layer, alongside the clock's own Query.
type Status struct {
	PeerCount  int
	TotalPeers int
	Peers      []PeerRecord
	LastSync   *LastSync
}

// Config carries the mesh timing knobs. Zero fields take the defaults
// below, which are the deployed cadences.
type Config struct {
	DiscoveryInterval  time.Duration // full directory listing poll
	RevalidateInterval time.Duration // per-connection registration check
	ProbeInterval      time.Duration // latency ping per open connection
	BroadcastInterval  time.Duration // periodic clock re-broadcast
	CleanupInterval    time.Duration // eviction sweep
	LingerWindow       time.Duration // disconnected record retention
	StaleWindow        time.Duration // silent-failure eviction threshold
}

func (c Config) withDefaults() Config {
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = 5 * time.Second
	}
	if c.RevalidateInterval <= 0 {
		c.RevalidateInterval = 10 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 2 * time.Second
	}
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = 5 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 1 * time.Second
	}
	if c.LingerWindow <= 0 {
		c.LingerWindow = 8 * time.Second
	}
	if c.StaleWindow <= 0 {
		c.StaleWindow = 10 * time.Second
	}
	return c
}
