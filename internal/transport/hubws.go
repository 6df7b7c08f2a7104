package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"

	"golang.org/x/net/websocket"

	"menusync/internal/protocol"
)

// HubTransport multiplexes logical peer connections over one websocket
// to the hub. The hub relays frames by target id and knows nothing about
// the message envelope inside them.
type HubTransport struct {
	hubURL  string
	localID string
	events  chan Event
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	ws     *websocket.Conn
	conns  map[string]*hubConn // conn id -> conn
	closed bool

	wmu sync.Mutex // serializes frame writes to the hub socket
}

// NewHubTransport creates a transport that registers localID with the
// hub at hubURL (http or https base URL).
func NewHubTransport(hubURL, localID string) *HubTransport {
	return &HubTransport{
		hubURL:  hubURL,
		localID: localID,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		conns:   make(map[string]*hubConn),
	}
}

// Start dials the hub websocket and begins demultiplexing frames.
func (t *HubTransport) Start(ctx context.Context) error {
	wsURL, origin, err := t.endpoints()
	if err != nil {
		return err
	}

	ws, err := websocket.Dial(wsURL, "", origin)
	if err != nil {
		return fmt.Errorf("dial hub %s: %w", wsURL, err)
	}

	t.mu.Lock()
	t.ws = ws
	t.mu.Unlock()

	go t.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-t.done:
		}
	}()
	return nil
}

func (t *HubTransport) endpoints() (wsURL, origin string, err error) {
	u, err := url.Parse(t.hubURL)
	if err != nil {
		return "", "", fmt.Errorf("parse hub url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", "", fmt.Errorf("unsupported hub scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"id": {t.localID}}.Encode()
	return u.String(), t.hubURL + "/", nil
}

func (t *HubTransport) Events() <-chan Event { return t.events }

// Connect issues an outbound open to peerID. The outcome arrives as an
// EventOpen once the remote accepts, or an EventError if the attempt is
// rejected before opening. A peer not connected to the hub produces no
// event at all; callers age out attempts that never resolve.
func (t *HubTransport) Connect(peerID string) {
	connID := randomConnID()
	c := &hubConn{t: t, id: connID, peer: peerID, dir: Outgoing}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.emit(Event{Kind: EventError, Peer: peerID, Err: errors.New("transport closed")})
		return
	}
	t.conns[connID] = c
	t.mu.Unlock()

	if err := t.sendFrame(protocol.Frame{To: peerID, From: t.localID, Kind: protocol.FrameOpen, Conn: connID}); err != nil {
		t.drop(connID)
		t.emit(Event{Kind: EventError, Peer: peerID, Err: err})
	}
}

// Close tears down every logical connection and the hub socket.
func (t *HubTransport) Close() error {
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		conns := make([]*hubConn, 0, len(t.conns))
		for _, c := range t.conns {
			conns = append(conns, c)
		}
		t.conns = make(map[string]*hubConn)
		ws := t.ws
		t.mu.Unlock()

		for _, c := range conns {
			if c.isOpen() {
				_ = t.sendFrame(protocol.Frame{To: c.peer, From: t.localID, Kind: protocol.FrameClose, Conn: c.id})
			}
		}
		if ws != nil {
			_ = ws.Close()
		}
		close(t.done)
	})
	return nil
}

func (t *HubTransport) readLoop() {
	for {
		var f protocol.Frame
		t.mu.Lock()
		ws := t.ws
		t.mu.Unlock()
		if ws == nil {
			return
		}
		if err := websocket.JSON.Receive(ws, &f); err != nil {
			t.hubLost(err)
			return
		}
		t.handleFrame(f)
	}
}

// hubLost tears down all logical connections after the hub socket dies.
// The next discovery pass will fail soft against the directory; there is
// no automatic re-dial.
func (t *HubTransport) hubLost(err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	conns := make([]*hubConn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = make(map[string]*hubConn)
	t.mu.Unlock()

	log.Printf("[%s] hub socket lost: %v", t.localID, err)
	for _, c := range conns {
		t.emit(Event{Kind: EventClosed, Peer: c.peer, Conn: c})
	}
}

func (t *HubTransport) handleFrame(f protocol.Frame) {
	switch f.Kind {
	case protocol.FrameOpen:
		c := &hubConn{t: t, id: f.Conn, peer: f.From, dir: Incoming, open: true}
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.conns[f.Conn] = c
		t.mu.Unlock()

		if err := t.sendFrame(protocol.Frame{To: f.From, From: t.localID, Kind: protocol.FrameAccept, Conn: f.Conn}); err != nil {
			t.drop(f.Conn)
			return
		}
		t.emit(Event{Kind: EventOpen, Peer: f.From, Conn: c})

	case protocol.FrameAccept:
		c := t.find(f.Conn)
		if c == nil || c.dir != Outgoing {
			return
		}
		c.setOpen()
		t.emit(Event{Kind: EventOpen, Peer: c.peer, Conn: c})

	case protocol.FrameData:
		c := t.find(f.Conn)
		if c == nil || !c.isOpen() {
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			log.Printf("[%s] bad payload from %s: %v", t.localID, f.From, err)
			return
		}
		t.emit(Event{Kind: EventData, Peer: c.peer, Msg: msg})

	case protocol.FrameClose:
		c := t.find(f.Conn)
		if c == nil {
			return
		}
		wasOpen := c.isOpen()
		t.drop(f.Conn)
		if wasOpen {
			t.emit(Event{Kind: EventClosed, Peer: c.peer, Conn: c})
		} else {
			t.emit(Event{Kind: EventError, Peer: c.peer, Err: errors.New("connection attempt rejected")})
		}

	default:
		log.Printf("[%s] unknown frame kind %q from %s", t.localID, f.Kind, f.From)
	}
}

func (t *HubTransport) find(connID string) *hubConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[connID]
}

func (t *HubTransport) drop(connID string) {
	t.mu.Lock()
	delete(t.conns, connID)
	t.mu.Unlock()
}

func (t *HubTransport) sendFrame(f protocol.Frame) error {
	t.mu.Lock()
	ws := t.ws
	t.mu.Unlock()
	if ws == nil {
		return errors.New("hub socket not connected")
	}
	t.wmu.Lock()
	err := websocket.JSON.Send(ws, f)
	t.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("send frame to hub: %w", err)
	}
	return nil
}

func (t *HubTransport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func randomConnID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic("transport: rand.Read failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// hubConn is one logical connection relayed through the hub.
type hubConn struct {
	t    *HubTransport
	id   string
	peer string
	dir  Direction

	mu   sync.Mutex
	open bool
}

func (c *hubConn) PeerID() string       { return c.peer }
func (c *hubConn) Direction() Direction { return c.dir }

func (c *hubConn) setOpen() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
}

func (c *hubConn) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *hubConn) Send(msg protocol.Message) error {
	if !c.isOpen() {
		return errors.New("send on closed connection")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return c.t.sendFrame(protocol.Frame{
		To:      c.peer,
		From:    c.t.localID,
		Kind:    protocol.FrameData,
		Conn:    c.id,
		Payload: payload,
	})
}

// Close tears the logical connection down on both sides. The local side
// sees no further events for it.
func (c *hubConn) Close() error {
	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()

	c.t.drop(c.id)
	if wasOpen {
		return c.t.sendFrame(protocol.Frame{To: c.peer, From: c.t.localID, Kind: protocol.FrameClose, Conn: c.id})
	}
	return nil
}
