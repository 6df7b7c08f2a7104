package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"menusync/internal/protocol"
)

// Client polls the hub's GET /peers listing.
type Client struct {
	baseURL string
	localID string
	http    *http.Client

	mu       sync.Mutex
	snapshot []string
}

// NewClient creates a directory client for the hub at baseURL. Entries
// matching localID are excluded from listings.
func NewClient(baseURL, localID string) *Client {
	return &Client{
		baseURL: baseURL,
		localID: localID,
		http:    &http.Client{Timeout: 3 * time.Second},
	}
}

// ListPeers returns the namespaced peer ids currently registered with
// the hub, excluding the local id. On transport error it logs and
// returns the previous snapshot (empty before the first success).
func (c *Client) ListPeers(ctx context.Context) []string {
	ids, err := c.fetch(ctx)
	if err != nil {
		log.Printf("[%s] directory listing failed, keeping last snapshot: %v", c.localID, err)
		return c.lastSnapshot()
	}

	peers := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == c.localID || !protocol.HasPrefix(id) {
			continue
		}
		peers = append(peers, id)
	}

	c.mu.Lock()
	c.snapshot = peers
	c.mu.Unlock()

	return peers
}

// IsRegistered reports whether id is currently listed by the hub. Any
// transport error counts as not registered.
func (c *Client) IsRegistered(ctx context.Context, id string) bool {
	ids, err := c.fetch(ctx)
	if err != nil {
		log.Printf("[%s] directory check for %s failed, treating as unregistered: %v", c.localID, id, err)
		return false
	}
	for _, got := range ids {
		if got == id {
			return true
		}
	}
	return false
}

func (c *Client) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/peers", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch peer listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer listing returned status %d", resp.StatusCode)
	}

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("decode peer listing: %w", err)
	}
	return ids, nil
}

func (c *Client) lastSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}
