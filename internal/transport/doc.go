// Package transport carries JSON message envelopes between peers over
// full-duplex logical connections addressed by peer id.
//
// Each connection's I/O is consumed by one dedicated reader that forwards
// structured events (open, data, closed, error) onto a single channel;
// consumers own all shared-state mutation. Two implementations exist:
// HubTransport multiplexes logical connections over one websocket to the
// hub, and Switchboard pairs endpoints in memory for tests.
package transport
