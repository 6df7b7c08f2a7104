// Package mesh forms and maintains the peer mesh: discovering directory
// peers, collapsing symmetric connection attempts into one edge per pair,
// probing latency, pruning stale or unregistered peers, and propagating
// the shared motion clock across the mesh.
//
// Limitations (deliberate, matching the deployed behavior):
// - Sync state relayed at most one hop: only a sync-response is fanned
//   out to other connections; a received broadcast is never re-relayed.
// - No retry/backoff; failures are corrected by the next periodic pass.
// - Peer id collisions in the tie-break are not handled.
package mesh
