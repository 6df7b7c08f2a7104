// Package protocol defines the peer id namespace, the JSON message
// envelope exchanged between connected nodes, and the relay frames the
// hub uses to broker connections between them.
package protocol
