package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MaxResearchNotes bounds the research notes a cache keeps; older notes are dropped first.
const MaxResearchNotes = 10

// ContextCache holds memory context per participant for one conversation.
// A fetch, successful or not, is reused for ttl. Research notes added during
// the conversation are appended to every participant's context.
type ContextCache struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	entries  map[string]cacheEntry
	research []string
}

type cacheEntry struct {
	text      string
	fetchedAt time.Time
}

// NewContextCache creates a cache whose entries live for ttl.
func NewContextCache(ttl time.Duration) *ContextCache {
	return &ContextCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached context for participantID, calling load when the
// entry is missing or older than the TTL. A failed load keeps the previous
// text and still counts as a fetch.
func (c *ContextCache) Get(ctx context.Context, participantID string, load func(context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	entry, ok := c.entries[participantID]
	fresh := ok && c.now().Sub(entry.fetchedAt) < c.ttl
	c.mu.Unlock()

	var loadErr error
	if !fresh {
		text, err := load(ctx)
		c.mu.Lock()
		if err != nil {
			loadErr = err
			entry.fetchedAt = c.now()
		} else {
			entry = cacheEntry{text: text, fetchedAt: c.now()}
		}
		c.entries[participantID] = entry
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.research) == 0 {
		return entry.text, loadErr
	}
	return entry.text + "\n\n" + strings.Join(c.research, "\n\n"), loadErr
}

// AddResearch records a research note shown to every participant afterwards.
func (c *ContextCache) AddResearch(query, research string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.research = append(c.research, `Knowledge Gap Research for "`+query+`": `+research)
	if n := len(c.research); n > MaxResearchNotes {
		c.research = append([]string(nil), c.research[n-MaxResearchNotes:]...)
	}
}

// Invalidate drops the cached context of a participant.
func (c *ContextCache) Invalidate(participantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, participantID)
}
