package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"menusync/internal/protocol"
)

// Switchboard pairs in-process endpoints without sockets. Handy for
// multi-node tests and single-process demos.
type Switchboard struct {
	mu    sync.Mutex
	nodes map[string]*Endpoint
}

func NewSwitchboard() *Switchboard {
	return &Switchboard{nodes: make(map[string]*Endpoint)}
}

// Endpoint registers and returns the endpoint for id, replacing any
// previous registration.
func (s *Switchboard) Endpoint(id string) *Endpoint {
	ep := &Endpoint{
		id:     id,
		sw:     s,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		conns:  make(map[*pipeConn]struct{}),
	}
	s.mu.Lock()
	s.nodes[id] = ep
	s.mu.Unlock()
	return ep
}

func (s *Switchboard) lookup(id string) *Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes[id]
}

func (s *Switchboard) remove(ep *Endpoint) {
	s.mu.Lock()
	if s.nodes[ep.id] == ep {
		delete(s.nodes, ep.id)
	}
	s.mu.Unlock()
}

// Endpoint is one node's in-process transport.
type Endpoint struct {
	id     string
	sw     *Switchboard
	events chan Event
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	conns map[*pipeConn]struct{}
}

func (e *Endpoint) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = e.Close()
		case <-e.done:
		}
	}()
	return nil
}

func (e *Endpoint) Events() <-chan Event { return e.events }

// Connect pairs this endpoint with the remote's, delivering an incoming
// open to the remote and an outgoing open here. An unknown peer yields
// an EventError.
func (e *Endpoint) Connect(peerID string) {
	remote := e.sw.lookup(peerID)
	if remote == nil {
		e.emit(Event{Kind: EventError, Peer: peerID, Err: fmt.Errorf("no endpoint registered for %s", peerID)})
		return
	}

	local := &pipeConn{owner: e, peer: peerID, dir: Outgoing}
	far := &pipeConn{owner: remote, peer: e.id, dir: Incoming}
	local.remote = far
	far.remote = local

	e.track(local)
	remote.track(far)

	remote.emit(Event{Kind: EventOpen, Peer: e.id, Conn: far})
	e.emit(Event{Kind: EventOpen, Peer: peerID, Conn: local})
}

func (e *Endpoint) Close() error {
	e.once.Do(func() {
		e.sw.remove(e)

		e.mu.Lock()
		conns := make([]*pipeConn, 0, len(e.conns))
		for c := range e.conns {
			conns = append(conns, c)
		}
		e.mu.Unlock()

		for _, c := range conns {
			c.markClosed()
			c.remote.notifyClosed()
		}
		close(e.done)
	})
	return nil
}

func (e *Endpoint) track(c *pipeConn) {
	e.mu.Lock()
	e.conns[c] = struct{}{}
	e.mu.Unlock()
}

func (e *Endpoint) untrack(c *pipeConn) {
	e.mu.Lock()
	delete(e.conns, c)
	e.mu.Unlock()
}

func (e *Endpoint) emit(ev Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// pipeConn is one side of an in-process connection pair.
type pipeConn struct {
	owner  *Endpoint
	peer   string
	dir    Direction
	remote *pipeConn

	mu     sync.Mutex
	closed bool
}

func (c *pipeConn) PeerID() string       { return c.peer }
func (c *pipeConn) Direction() Direction { return c.dir }

func (c *pipeConn) Send(msg protocol.Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("send on closed connection")
	}

	c.remote.owner.emit(Event{Kind: EventData, Peer: c.remote.peer, Msg: msg})
	return nil
}

// Close tears the pair down. The closing side sees no event for it; the
// remote side gets an EventClosed.
func (c *pipeConn) Close() error {
	c.markClosed()
	c.remote.notifyClosed()
	return nil
}

// markClosed flips the closed flag, reporting whether this call did it.
func (c *pipeConn) markClosed() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.mu.Unlock()

	c.owner.untrack(c)
	return true
}

func (c *pipeConn) notifyClosed() {
	if c.markClosed() {
		c.owner.emit(Event{Kind: EventClosed, Peer: c.peer, Conn: c})
	}
}
