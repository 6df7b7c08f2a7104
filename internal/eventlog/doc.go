// Package eventlog keeps a small bounded log of recent human-readable
// status lines for the display overlay. An immediately-repeated identical
// line is dropped so flapping transitions don't flood the overlay.
package eventlog
