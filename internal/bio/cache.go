package bio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChannelCache remembers which YouTube channel ID a username resolved to.
// Implementations treat every backend error as a miss.
type ChannelCache interface {
	Get(ctx context.Context, username string) (string, bool)
	Set(ctx context.Context, username, channelID string)
}

func channelKey(username string) string {
	return strings.ToLower(username)
}

// ── In-memory ────────────────────────────────────────────────────────────

type channelEntry struct {
	channelID string
	expiresAt time.Time
}

func (e *channelEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryChannelCache is a process-local TTL cache.
type MemoryChannelCache struct {
	mu      sync.RWMutex
	entries map[string]*channelEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryChannelCache creates a MemoryChannelCache. A zero ttl defaults to 24h.
func NewMemoryChannelCache(ttl time.Duration) *MemoryChannelCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryChannelCache{
		entries: make(map[string]*channelEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements ChannelCache.
func (c *MemoryChannelCache) Get(_ context.Context, username string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[channelKey(username)]
	if !ok || e.expired(c.now()) {
		return "", false
	}
	return e.channelID, true
}

// Set implements ChannelCache.
func (c *MemoryChannelCache) Set(_ context.Context, username, channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[channelKey(username)] = &channelEntry{
		channelID: channelID,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Evict removes expired entries and returns how many were dropped.
func (c *MemoryChannelCache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// StartEviction evicts expired entries every interval until ctx is done.
func (c *MemoryChannelCache) StartEviction(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := c.Evict(); n > 0 {
					logger.Debug("bio: channel cache eviction", zap.Int("evicted", n))
				}
			}
		}
	}()
}

// Len returns the number of cached entries, including expired ones.
func (c *MemoryChannelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ── Redis ────────────────────────────────────────────────────────────────

const channelKeyPrefix = "bioverify:yt:channel:"

// RedisChannelCache shares resolved channel IDs between processes.
type RedisChannelCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisChannelCache creates a RedisChannelCache. A zero ttl defaults to 24h.
func NewRedisChannelCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisChannelCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisChannelCache{client: client, ttl: ttl, logger: logger}
}

// NewRedisClient parses url, connects and pings. An empty url returns a nil
// client and no error: Redis is optional.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Get implements ChannelCache.
func (c *RedisChannelCache) Get(ctx context.Context, username string) (string, bool) {
	id, err := c.client.Get(ctx, channelKeyPrefix+channelKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.logger.Warn("bio: redis channel cache get", zap.Error(err))
		return "", false
	}
	return id, true
}

// Set implements ChannelCache.
func (c *RedisChannelCache) Set(ctx context.Context, username, channelID string) {
	if err := c.client.Set(ctx, channelKeyPrefix+channelKey(username), channelID, c.ttl).Err(); err != nil {
		c.logger.Warn("bio: redis channel cache set", zap.Error(err))
	}
}
