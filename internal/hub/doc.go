// Package hub implements the signaling and directory service: a peer
// registry served over GET /peers and a websocket relay that forwards
// connection frames between registered peers. The hub holds no state
// beyond the live registry and never inspects relayed payloads.
package hub
