package mesh

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"menusync/internal/clock"
	"menusync/internal/eventlog"
	"menusync/internal/protocol"
	"menusync/internal/transport"
)

// Directory is the registry the manager validates peers against.
type Directory interface {
	ListPeers(ctx context.Context) []string
	IsRegistered(ctx context.Context, id string) bool
}

// Manager runs the connection lifecycle: discovery, deduplication,
// probing, clock sync, and eviction. All shared state lives behind one
// mutex; directory calls and transport I/O never run under it.
type Manager struct {
	localID string
	cfg     Config
	dir     Directory
	tr      transport.Transport
	clock   *clock.MotionClock
	events  *eventlog.Log

	mu         sync.Mutex
	conns      map[string]transport.Conn
	records    map[string]*PeerRecord
	pending    map[string]time.Time
	totalPeers int
	lastSync   *LastSync

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager for localID. The clock is mutated only
// here; the render layer reads it directly.
func NewManager(localID string, cfg Config, dir Directory, tr transport.Transport, clk *clock.MotionClock, events *eventlog.Log) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		localID: localID,
		cfg:     cfg.withDefaults(),
		dir:     dir,
		tr:      tr,
		clock:   clk,
		events:  events,
		conns:   make(map[string]transport.Conn),
		records: make(map[string]*PeerRecord),
		pending: make(map[string]time.Time),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the event loop and periodic passes.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.eventLoop()
	}()

	m.loop(m.cfg.DiscoveryInterval, true, m.discover)
	m.loop(m.cfg.RevalidateInterval, false, m.revalidate)
	m.loop(m.cfg.ProbeInterval, false, m.probe)
	m.loop(m.cfg.BroadcastInterval, false, m.broadcast)
	m.loop(m.cfg.CleanupInterval, false, m.cleanup)
}

// Stop halts all passes and closes every open connection.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	conns := make([]transport.Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[string]transport.Conn)
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (m *Manager) loop(interval time.Duration, immediate bool, pass func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if immediate {
			pass()
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				pass()
			}
		}
	}()
}

func (m *Manager) eventLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.tr.Events():
			switch ev.Kind {
			case transport.EventOpen:
				m.handleOpen(ev.Conn)
			case transport.EventData:
				m.handleMessage(ev.Peer, ev.Msg)
			case transport.EventClosed:
				m.handleClosed(ev.Peer, ev.Conn)
			case transport.EventError:
				m.handleConnectError(ev.Peer, ev.Err)
			}
		}
	}
}

// discover polls the full directory listing and dials every listed peer
// we have no connection to. An attempt that produced nothing within one
// discovery interval is simply re-issued; there is no backoff.
func (m *Manager) discover() {
	ids := m.dir.ListPeers(m.ctx)

	now := time.Now()
	var dial []string

	listed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		listed[id] = struct{}{}
	}

	m.mu.Lock()
	m.totalPeers = len(ids)
	for id := range m.pending {
		if _, ok := listed[id]; !ok {
			delete(m.pending, id)
		}
	}
	for _, id := range ids {
		if _, ok := m.conns[id]; ok {
			continue
		}
		if since, ok := m.pending[id]; ok && now.Sub(since) < m.cfg.DiscoveryInterval {
			continue
		}
		m.pending[id] = now
		dial = append(dial, id)
	}
	m.mu.Unlock()

	for _, id := range dial {
		m.logEvent("connecting to %s", id)
		m.tr.Connect(id)
	}
}

// handleOpen admits a ready connection: registration gate, then the
// tie-break collapsing symmetric attempts into a single edge.
func (m *Manager) handleOpen(conn transport.Conn) {
	remote := conn.PeerID()

	if !protocol.HasPrefix(remote) {
		m.logEvent("rejected %s: outside namespace", remote)
		_ = conn.Close()
		return
	}
	if !m.dir.IsRegistered(m.ctx, remote) {
		m.logEvent("rejected %s: not registered", remote)
		_ = conn.Close()
		return
	}

	m.mu.Lock()
	cur, connected := m.conns[remote]
	if conn.Direction() == transport.Incoming {
		_, attempting := m.pending[remote]
		outbound := attempting || (connected && cur.Direction() == transport.Outgoing)
		// Both sides are attempting: exactly one edge survives, the one
		// initiated by the lower id. We keep the incoming attempt only
		// when the remote id sorts <= ours; otherwise the remote accepts
		// our outbound and we drop theirs.
		if outbound && remote > m.localID {
			m.mu.Unlock()
			m.logEvent("dropped incoming from %s: keeping our outbound", remote)
			_ = conn.Close()
			return
		}
	} else if connected && cur.Direction() == transport.Incoming && remote <= m.localID {
		// Mirror image of the rule above: the remote-initiated edge won,
		// so our outbound backs off rather than replace it.
		m.mu.Unlock()
		m.logEvent("dropped outbound to %s: keeping their connection", remote)
		_ = conn.Close()
		return
	}

	if connected {
		// Last writer wins; the older channel is torn down.
		defer func() { _ = cur.Close() }()
	}
	m.conns[remote] = conn
	delete(m.pending, remote)
	m.records[remote] = &PeerRecord{
		ID:         remote,
		Direction:  conn.Direction(),
		LastUpdate: time.Now(),
	}
	m.mu.Unlock()

	m.logEvent("connected to %s (%s)", remote, conn.Direction())

	// Seed the new edge right away: a probe for latency and a request
	// for the remote's current clock state.
	m.send(conn, protocol.Message{Type: protocol.MsgPing, Time: time.Now(), From: m.localID})
	m.send(conn, protocol.Message{Type: protocol.MsgSyncRequest, From: m.localID})
}

// handleClosed marks the peer disconnected-lingering. A close event for
// a connection we already replaced is ignored.
func (m *Manager) handleClosed(peer string, conn transport.Conn) {
	m.mu.Lock()
	cur, ok := m.conns[peer]
	if !ok || (conn != nil && cur != conn) {
		m.mu.Unlock()
		return
	}
	delete(m.conns, peer)
	m.markDisconnectedLocked(peer)
	m.mu.Unlock()

	m.logEvent("disconnected from %s", peer)
}

func (m *Manager) handleConnectError(peer string, err error) {
	m.mu.Lock()
	delete(m.pending, peer)
	m.mu.Unlock()
	log.Printf("[%s] connect to %s failed: %v", m.localID, peer, err)
}

// revalidate drops connections to peers the directory no longer lists.
// The directory is fail-closed here: unreachable means unregistered.
func (m *Manager) revalidate() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if m.dir.IsRegistered(m.ctx, id) {
			continue
		}

		m.mu.Lock()
		conn, ok := m.conns[id]
		if ok {
			delete(m.conns, id)
			m.markDisconnectedLocked(id)
		}
		m.mu.Unlock()

		if ok {
			m.logEvent("%s no longer registered, closing", id)
			_ = conn.Close()
		}
	}
}

// cleanup evicts lingering records past the linger window and treats
// records with no refresh inside the staleness window as silent
// failures, closing whatever handle remains.
func (m *Manager) cleanup() {
	now := time.Now()
	var stale []transport.Conn

	m.mu.Lock()
	for id, rec := range m.records {
		switch {
		case rec.Disconnected:
			if now.Sub(rec.DisconnectedAt) >= m.cfg.LingerWindow {
				delete(m.records, id)
				m.logEvent("removed %s", id)
			}
		case now.Sub(rec.LastUpdate) >= m.cfg.StaleWindow:
			if conn, ok := m.conns[id]; ok {
				stale = append(stale, conn)
				delete(m.conns, id)
			}
			delete(m.records, id)
			m.logEvent("removed %s (stale)", id)
		}
	}
	m.mu.Unlock()

	for _, conn := range stale {
		_ = conn.Close()
	}
}

// markDisconnectedLocked flips an existing record to lingering. Caller
// holds the mutex.
func (m *Manager) markDisconnectedLocked(id string) {
	if rec, ok := m.records[id]; ok && !rec.Disconnected {
		rec.Disconnected = true
		rec.DisconnectedAt = time.Now()
	}
}

// send transmits on conn and treats a failure as a transport failure:
// the connection is torn down and the peer lingers.
func (m *Manager) send(conn transport.Conn, msg protocol.Message) {
	if err := conn.Send(msg); err != nil {
		peer := conn.PeerID()
		log.Printf("[%s] send %s to %s failed: %v", m.localID, msg.Type, peer, err)

		m.mu.Lock()
		if cur, ok := m.conns[peer]; ok && cur == conn {
			delete(m.conns, peer)
			m.markDisconnectedLocked(peer)
		}
		m.mu.Unlock()

		_ = conn.Close()
		m.logEvent("disconnected from %s", peer)
	}
}

// Status returns the mesh view for the render layer, peers sorted by id.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	peers := make([]PeerRecord, 0, len(m.records))
	for _, rec := range m.records {
		peers = append(peers, *rec)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })

	var last *LastSync
	if m.lastSync != nil {
		cp := *m.lastSync
		last = &cp
	}

	return Status{
		PeerCount:  len(m.conns),
		TotalPeers: m.totalPeers,
		Peers:      peers,
		LastSync:   last,
	}
}

func (m *Manager) logEvent(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	m.events.Append(line)
	log.Printf("[%s] %s", m.localID, line)
}
