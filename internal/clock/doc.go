// Package clock provides the shared motion clock: a scalar position that
// advances deterministically from a stored reference state using velocity
// and acceleration. Every node extrapolates the same state to the same
// wall-clock instant, so identical positions are the sole basis for all
// displays showing the same animation phase at the same time.
package clock
