// package cache implements the TTL cache for playlist snapshots and search
// results on top of a [fiber.Storage] backend.
//
// Reads slide the expiration window: a hit rewrites the entry with a fresh
// TTL. Backend failures are never surfaced; a failed read degrades to a miss
// and a failed write is dropped.
package cache

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/gofiber/storage/redis/v3"

	"spottransfer/internal/metrics"
	"spottransfer/internal/shared"
)

const (
	// DefaultPrefix namespaces cache keys away from session storage sharing
	// the same backend.
	DefaultPrefix = "spottransfer:spotify:"

	// DefaultTTL is the sliding lifetime of playlist and search entries.
	DefaultTTL = time.Hour

	stateTTL   = 10 * time.Minute
	pendingTTL = 5 * time.Minute
)

// NewStorage builds the storage backend selected by the configuration.
//
// The same backend instance backs the cache and the session store.
func NewStorage(cfg shared.CacheConfig) fiber.Storage {
	if cfg.Backend == "redis" {
		return redis.New(redis.Config{URL: cfg.URL})
	}
	return memory.New()
}

// Cache wraps a [fiber.Storage] with key namespacing, JSON encoding, and
// sliding-TTL reads.
type Cache struct {
	storage fiber.Storage
	prefix  string
	ttl     time.Duration
	logger  *log.Logger
}

// New creates a Cache over the given storage backend.
//
// Zero values for prefix and ttl fall back to [DefaultPrefix] and [DefaultTTL].
func New(storage fiber.Storage, prefix string, ttl time.Duration, logger *log.Logger) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Cache{storage: storage, prefix: prefix, ttl: ttl, logger: logger}
}

// TTL returns the configured sliding lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// get reads a namespaced key. When slide is set, a hit rewrites the entry so
// the TTL restarts from now.
func (c *Cache) get(key string, slide bool) ([]byte, bool) {
	data, err := c.storage.Get(c.prefix + key)
	if err != nil {
		c.logger.Debug("cache read error", "key", key, "error", err)
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	if slide {
		c.set(key, data, c.ttl)
	}
	return data, true
}

func (c *Cache) set(key string, val []byte, ttl time.Duration) {
	if err := c.storage.Set(c.prefix+key, val, ttl); err != nil {
		c.logger.Debug("cache write error", "key", key, "error", err)
	}
}

func (c *Cache) delete(key string) {
	if err := c.storage.Delete(c.prefix + key); err != nil {
		c.logger.Debug("cache delete error", "key", key, "error", err)
	}
}

// GetPlaylist unmarshals a cached playlist snapshot into v, sliding its TTL.
func (c *Cache) GetPlaylist(id string, v any) bool {
	data, ok := c.get("playlist:"+id, true)
	if ok {
		if err := json.Unmarshal(data, v); err != nil {
			c.logger.Debug("cache decode error", "key", "playlist:"+id, "error", err)
			ok = false
		}
	}
	metrics.RecordCache("playlist", ok)
	return ok
}

// SetPlaylist stores a playlist snapshot with a fresh TTL.
func (c *Cache) SetPlaylist(id string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Debug("cache encode error", "key", "playlist:"+id, "error", err)
		return
	}
	c.set("playlist:"+id, data, c.ttl)
}

// GetSearch returns the cached content id for a search query, sliding its TTL.
func (c *Cache) GetSearch(query string) (string, bool) {
	data, ok := c.get("search:"+query, true)
	metrics.RecordCache("search", ok)
	if !ok {
		return "", false
	}
	return string(data), true
}

// SetSearch stores the resolved content id for a search query.
func (c *Cache) SetSearch(query, contentID string) {
	c.set("search:"+query, []byte(contentID), c.ttl)
}

// SetOAuthState maps an anti-forgery state value to the session that issued
// it. Short fixed TTL, no sliding: the handshake either completes within the
// window or starts over.
func (c *Cache) SetOAuthState(state, sessionID string) {
	c.set("oauth:state:"+state, []byte(sessionID), stateTTL)
}

// GetOAuthState returns the session id a state value was issued for.
func (c *Cache) GetOAuthState(state string) (string, bool) {
	data, ok := c.get("oauth:state:"+state, false)
	if !ok {
		return "", false
	}
	return string(data), true
}

// DeleteOAuthState removes a consumed state value.
func (c *Cache) DeleteOAuthState(state string) {
	c.delete("oauth:state:" + state)
}

// SetPendingCredentials parks an exchanged credential set keyed by state until
// the opener window claims it via the completion call.
func (c *Cache) SetPendingCredentials(state string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Debug("cache encode error", "key", "oauth:pending:"+state, "error", err)
		return
	}
	c.set("oauth:pending:"+state, data, pendingTTL)
}

// GetPendingCredentials unmarshals a parked credential set into v.
func (c *Cache) GetPendingCredentials(state string, v any) bool {
	data, ok := c.get("oauth:pending:"+state, false)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Debug("cache decode error", "key", "oauth:pending:"+state, "error", err)
		return false
	}
	return true
}

// DeletePendingCredentials removes a claimed credential set.
func (c *Cache) DeletePendingCredentials(state string) {
	c.delete("oauth:pending:" + state)
}

// Reset clears the entire storage backend.
func (c *Cache) Reset() error {
	return c.storage.Reset()
}
