package protocol

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// IDPrefix namespaces this application's peers inside the hub directory,
// which may also carry ids registered by unrelated applications.
const IDPrefix = "MENUSYNC_"

// NewPeerID returns a fresh namespaced peer id. Ids are compared by
// ordinal string order for the connection tie-break, so the random part
// is fixed-width hex.
func NewPeerID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic("protocol: rand.Read failed: " + err.Error())
	}
	return IDPrefix + hex.EncodeToString(b)
}

// HasPrefix reports whether id belongs to this application's namespace.
func HasPrefix(id string) bool {
	return strings.HasPrefix(id, IDPrefix)
}
