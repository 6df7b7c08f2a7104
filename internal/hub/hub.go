package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/net/websocket"

	"menusync/internal/protocol"
)

// Hub relays frames between registered peers and serves the directory.
type Hub struct {
	mu    sync.Mutex
	peers map[string]*peerSocket
}

type peerSocket struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex // serializes writes
}

func (p *peerSocket) send(f protocol.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return websocket.JSON.Send(p.ws, f)
}

func New() *Hub {
	return &Hub{peers: make(map[string]*peerSocket)}
}

// Handler returns the hub's HTTP surface: GET /peers and GET /ws?id=X.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/peers", h.servePeers)
	mux.Handle("/ws", websocket.Handler(h.serveWS))
	return mux
}

// Peers returns the currently registered ids, sorted.
func (h *Hub) Peers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) servePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Peers()); err != nil {
		log.Printf("hub: encode peer listing: %v", err)
	}
}

func (h *Hub) serveWS(ws *websocket.Conn) {
	id := ws.Request().URL.Query().Get("id")
	if id == "" {
		log.Printf("hub: rejected socket without id from %s", ws.Request().RemoteAddr)
		_ = ws.Close()
		return
	}

	sock := &peerSocket{id: id, ws: ws}
	h.register(sock)
	log.Printf("hub: %s registered", id)

	for {
		var f protocol.Frame
		if err := websocket.JSON.Receive(ws, &f); err != nil {
			break
		}
		// From is always the authenticated-by-socket sender, whatever
		// the client put in the frame.
		f.From = id
		h.relay(f)
	}

	h.unregister(sock)
	log.Printf("hub: %s gone", id)
}

// register adds a socket, replacing (and closing) any previous socket
// for the same id. Last writer wins.
func (h *Hub) register(sock *peerSocket) {
	h.mu.Lock()
	old := h.peers[sock.id]
	h.peers[sock.id] = sock
	h.mu.Unlock()

	if old != nil {
		_ = old.ws.Close()
	}
}

func (h *Hub) unregister(sock *peerSocket) {
	h.mu.Lock()
	if h.peers[sock.id] == sock {
		delete(h.peers, sock.id)
	}
	h.mu.Unlock()
	_ = sock.ws.Close()
}

// relay forwards f to its target. Frames for unknown targets are
// dropped; senders discover absence through the directory, not here.
func (h *Hub) relay(f protocol.Frame) {
	h.mu.Lock()
	target := h.peers[f.To]
	h.mu.Unlock()

	if target == nil {
		return
	}
	if err := target.send(f); err != nil {
		log.Printf("hub: relay %s -> %s failed: %v", f.From, f.To, err)
	}
}
