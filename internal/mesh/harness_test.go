package mesh

import (
	"context"
	"sync"
	"testing"
	"time"

	"menusync/internal/clock"
	"menusync/internal/eventlog"
	"menusync/internal/protocol"
	"menusync/internal/transport"
)

// registry is an in-memory stand-in for the hub directory shared by all
// nodes in a test.
type registry struct {
	mu  sync.Mutex
	ids map[string]bool
}

func newRegistry(ids ...string) *registry {
	r := &registry{ids: make(map[string]bool)}
	for _, id := range ids {
		r.ids[id] = true
	}
	return r
}

func (r *registry) add(id string) {
	r.mu.Lock()
	r.ids[id] = true
	r.mu.Unlock()
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	delete(r.ids, id)
	r.mu.Unlock()
}

// view is one node's directory client over the shared registry. Like
// the real client it excludes the local id from listings.
type view struct {
	reg     *registry
	localID string
}

func (v *view) ListPeers(ctx context.Context) []string {
	v.reg.mu.Lock()
	defer v.reg.mu.Unlock()

	var out []string
	for id := range v.reg.ids {
		if id != v.localID {
			out = append(out, id)
		}
	}
	return out
}

func (v *view) IsRegistered(ctx context.Context, id string) bool {
	v.reg.mu.Lock()
	defer v.reg.mu.Unlock()
	return v.reg.ids[id]
}

// fastConfig keeps test runs short. Windows stay far enough apart that
// assertions can observe the intermediate states.
func fastConfig() Config {
	return Config{
		DiscoveryInterval:  40 * time.Millisecond,
		RevalidateInterval: 50 * time.Millisecond,
		ProbeInterval:      30 * time.Millisecond,
		BroadcastInterval:  40 * time.Millisecond,
		CleanupInterval:    10 * time.Millisecond,
		LingerWindow:       300 * time.Millisecond,
		StaleWindow:        2 * time.Second,
	}
}

type testNode struct {
	id  string
	clk *clock.MotionClock
	mgr *Manager
	ep  *transport.Endpoint
	reg *registry
}

// newTestNode builds a node over the in-process switchboard and lists
// it in the registry, without starting the manager. Building all nodes
// before starting any makes their first discovery passes symmetric.
func newTestNode(t *testing.T, sw *transport.Switchboard, reg *registry, id string, cfg Config) *testNode {
	t.Helper()

	ep := sw.Endpoint(id)
	if err := ep.Start(context.Background()); err != nil {
		t.Fatalf("start endpoint %s: %v", id, err)
	}
	reg.add(id)

	clk := clock.New()
	mgr := NewManager(id, cfg, &view{reg: reg, localID: id}, ep, clk, eventlog.New(5))
	return &testNode{id: id, clk: clk, mgr: mgr, ep: ep, reg: reg}
}

func (n *testNode) start(t *testing.T) {
	t.Helper()
	n.mgr.Start()
	t.Cleanup(n.shutdown)
}

// shutdown is idempotent so tests can stop a node explicitly and let
// the cleanup run again.
func (n *testNode) shutdown() {
	n.reg.remove(n.id)
	n.mgr.Stop()
	_ = n.ep.Close()
}

// startNode brings up a manager over the in-process switchboard.
func startNode(t *testing.T, sw *transport.Switchboard, reg *registry, id string, cfg Config) *testNode {
	t.Helper()
	n := newTestNode(t, sw, reg, id, cfg)
	n.start(t)
	return n
}

// record returns the peer record for id, if present.
func (n *testNode) record(id string) (PeerRecord, bool) {
	for _, rec := range n.mgr.Status().Peers {
		if rec.ID == id {
			return rec, true
		}
	}
	return PeerRecord{}, false
}

// stubTransport lets tests drive the manager's event loop directly and
// observe its outbound connect attempts.
type stubTransport struct {
	events chan transport.Event

	mu       sync.Mutex
	connects []string
}

func newStubTransport() *stubTransport {
	return &stubTransport{events: make(chan transport.Event, 64)}
}

func (s *stubTransport) Start(ctx context.Context) error { return nil }
func (s *stubTransport) Events() <-chan transport.Event  { return s.events }
func (s *stubTransport) Close() error                    { return nil }

func (s *stubTransport) Connect(peerID string) {
	s.mu.Lock()
	s.connects = append(s.connects, peerID)
	s.mu.Unlock()
}

func (s *stubTransport) connectCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.connects))
	copy(out, s.connects)
	return out
}

func (s *stubTransport) inject(ev transport.Event) { s.events <- ev }

// fakeConn records what the manager sends on it.
type fakeConn struct {
	peer string
	dir  transport.Direction

	mu     sync.Mutex
	sent   []protocol.Message
	closed bool
}

func (c *fakeConn) PeerID() string                 { return c.peer }
func (c *fakeConn) Direction() transport.Direction { return c.dir }

func (c *fakeConn) Send(msg protocol.Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentOfType(mt protocol.MsgType) []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Message
	for _, m := range c.sent {
		if m.Type == mt {
			out = append(out, m)
		}
	}
	return out
}
