// Package node wires a display node together: hub transport, directory
// client, mesh manager, motion clock, and event log, with one lifecycle
// for all of them.
package node
