package mesh

import (
	"time"

	"menusync/internal/clock"
	"menusync/internal/protocol"
	"menusync/internal/transport"
)

// handleMessage dispatches one received envelope. Any message from a
// peer refreshes its record, so an active connection never goes stale.
func (m *Manager) handleMessage(peer string, msg protocol.Message) {
	m.mu.Lock()
	conn, ok := m.conns[peer]
	if rec, found := m.records[peer]; found {
		rec.LastUpdate = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		// Late message on a connection we already dropped.
		return
	}

	switch msg.Type {
	case protocol.MsgPing:
		// Echo the sender's timestamp verbatim so latency needs no clock
		// agreement between the two sides.
		m.send(conn, protocol.Message{Type: protocol.MsgPong, Time: msg.Time, From: m.localID})

	case protocol.MsgPong:
		rtt := time.Since(msg.Time)
		m.mu.Lock()
		if rec, found := m.records[peer]; found {
			rec.Latency = rtt
			rec.LastUpdate = time.Now()
		}
		m.mu.Unlock()

	case protocol.MsgSyncRequest:
		m.send(conn, protocol.Message{
			Type:  protocol.MsgSyncResponse,
			Time:  time.Now(),
			From:  m.localID,
			State: syncStateOf(m.clock.Query()),
		})

	case protocol.MsgSyncResponse:
		m.applySync(peer, msg.State)
		// Sole multi-hop path: the responder's state is fanned out one
		// hop to our other connections and no further.
		m.relay(peer, msg.State)

	case protocol.MsgSyncBroadcast:
		m.applySync(peer, msg.State)

	default:
		m.logEvent("protocol violation from %s: %q", peer, msg.Type)
		m.teardown(peer, conn)
	}
}

// probe pings every open connection. Missing echoes are not retried;
// the record simply ages until the cleanup pass evicts it.
func (m *Manager) probe() {
	for _, conn := range m.openConns() {
		m.send(conn, protocol.Message{Type: protocol.MsgPing, Time: time.Now(), From: m.localID})
	}
}

// broadcast re-sends the local clock state on every open connection.
// This is what keeps an already-formed mesh from drifting apart.
func (m *Manager) broadcast() {
	conns := m.openConns()
	if len(conns) == 0 {
		return
	}
	msg := protocol.Message{
		Type:  protocol.MsgSyncBroadcast,
		Time:  time.Now(),
		From:  m.localID,
		State: syncStateOf(m.clock.Query()),
	}
	for _, conn := range conns {
		m.send(conn, msg)
	}
}

// applySync merges a received clock state and records it for the
// overlay.
func (m *Manager) applySync(peer string, state *protocol.SyncState) {
	if state == nil {
		return
	}
	m.clock.Update(clock.Partial{
		Position:     state.Position,
		Velocity:     state.Velocity,
		Acceleration: state.Acceleration,
	})

	pos := m.clock.Query().Position
	if state.Position != nil {
		pos = *state.Position
	}

	m.mu.Lock()
	m.lastSync = &LastSync{Timestamp: time.Now(), SourcePeerID: peer, Position: pos}
	m.mu.Unlock()
}

// relay fans a responder's state out to every other open connection as
// a broadcast. Receivers apply it without relaying again.
func (m *Manager) relay(from string, state *protocol.SyncState) {
	if state == nil {
		return
	}
	msg := protocol.Message{
		Type:  protocol.MsgSyncBroadcast,
		Time:  time.Now(),
		From:  m.localID,
		State: state,
	}
	for _, conn := range m.openConns() {
		if conn.PeerID() == from {
			continue
		}
		m.send(conn, msg)
	}
}

// teardown closes a connection after a protocol violation and leaves
// the peer lingering like any other close.
func (m *Manager) teardown(peer string, conn transport.Conn) {
	m.mu.Lock()
	if cur, ok := m.conns[peer]; ok && cur == conn {
		delete(m.conns, peer)
		m.markDisconnectedLocked(peer)
	}
	m.mu.Unlock()
	_ = conn.Close()
}

func (m *Manager) openConns() []transport.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]transport.Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		out = append(out, conn)
	}
	return out
}

func syncStateOf(s clock.State) *protocol.SyncState {
	p, v, a := s.Position, s.Velocity, s.Acceleration
	return &protocol.SyncState{Position: &p, Velocity: &v, Acceleration: &a}
}
