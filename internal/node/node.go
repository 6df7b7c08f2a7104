package node

import (
	"context"
	"fmt"
	"log"

	"menusync/internal/clock"
	"menusync/internal/config"
	"menusync/internal/directory"
	"menusync/internal/eventlog"
	"menusync/internal/mesh"
	"menusync/internal/transport"
)

// Node is one display node in the mesh.
type Node struct {
	id      string
	clock   *clock.MotionClock
	events  *eventlog.Log
	tr      *transport.HubTransport
	mgr     *mesh.Manager
	cancel  context.CancelFunc
	started bool
}

// Status is the tuple the render layer reads once per animation frame.
type Status struct {
	Position   float64
	PeerCount  int
	TotalPeers int
	Peers      []mesh.PeerRecord
	LastSync   *mesh.LastSync
	Events     []string
}

// New builds a node from cfg. The peer id is taken from cfg or freshly
// generated.
func New(cfg config.Config, id string) *Node {
	clk := clock.New()
	events := eventlog.New(eventlog.DefaultCapacity)
	tr := transport.NewHubTransport(cfg.HubURL, id)
	dir := directory.NewClient(cfg.HubURL, id)
	mgr := mesh.NewManager(id, cfg.Mesh, dir, tr, clk, events)

	return &Node{
		id:     id,
		clock:  clk,
		events: events,
		tr:     tr,
		mgr:    mgr,
	}
}

// ID returns the node's peer id.
func (n *Node) ID() string { return n.id }

// Clock returns the node's motion clock. The render layer queries it
// directly; the mesh is its only writer.
func (n *Node) Clock() *clock.MotionClock { return n.clock }

// Start registers with the hub and launches the mesh.
func (n *Node) Start(ctx context.Context) error {
	ctx, n.cancel = context.WithCancel(ctx)

	if err := n.tr.Start(ctx); err != nil {
		n.cancel()
		return fmt.Errorf("start hub transport: %w", err)
	}

	n.mgr.Start()
	n.started = true
	log.Printf("[%s] node started", n.id)
	return nil
}

// Stop freezes the clock, stops all timers, and closes every connection
// and the hub socket. The frozen clock keeps this node from advancing
// its own timeline after it stops driving the mesh.
func (n *Node) Stop() {
	if !n.started {
		return
	}
	n.started = false

	n.clock.Freeze()
	n.mgr.Stop()
	_ = n.tr.Close()
	if n.cancel != nil {
		n.cancel()
	}
	log.Printf("[%s] node stopped", n.id)
}

// Status returns the current frame tuple.
func (n *Node) Status() Status {
	ms := n.mgr.Status()
	return Status{
		Position:   n.clock.Query().Position,
		PeerCount:  ms.PeerCount,
		TotalPeers: ms.TotalPeers,
		Peers:      ms.Peers,
		LastSync:   ms.LastSync,
		Events:     n.events.Lines(),
	}
}
