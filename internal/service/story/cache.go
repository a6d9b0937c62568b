package story

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"storyforge/internal/logging"
	"storyforge/internal/models"
	"storyforge/internal/redis"
)

const (
	historyKey        = "storyforge:history"
	invalidateChannel = "storyforge:invalidate"
)

const scopeHistory = "history"

type invalidateMessage struct {
	Origin string `json:"origin"`
	Scope  string `json:"scope"`
}

// Cache keeps the story history in redis and in process memory. Writes on
// any instance drop the shared key and broadcast an invalidation so other
// instances forget their in-memory copy.
type Cache struct {
	client *redis.Client
	origin string
	log    zerolog.Logger

	mu    sync.Mutex
	local []models.StorySummary
	valid bool

	// gen grows on every invalidation; a list read under an older
	// generation is never cached.
	gen uint64
}

// NewCache wraps client. origin identifies this process in broadcasts.
func NewCache(client *redis.Client, origin string, log zerolog.Logger) *Cache {
	return &Cache{
		client: client,
		origin: origin,
		log:    logging.Component(log, "story-cache"),
	}
}

// Listen drops the in-memory history whenever another instance announces
// a write. It returns once the subscription is established.
func (c *Cache) Listen(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ch, err := c.client.Subscribe(ctx, invalidateChannel)
	if err != nil {
		return err
	}
	go func() {
		for msg := range ch {
			var inv invalidateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				c.log.Warn().Err(err).Msg("decode invalidation")
				continue
			}
			if inv.Origin == c.origin || inv.Scope != scopeHistory {
				continue
			}
			c.log.Debug().Str("origin", inv.Origin).Msg("history invalidated remotely")
			c.dropLocal()
		}
	}()
	return nil
}

// generation returns the invalidation counter. Read it before querying
// the list later passed to store.
func (c *Cache) generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Cache) load(ctx context.Context) ([]models.StorySummary, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	gen := c.gen
	if c.valid {
		list := cloneSummaries(c.local)
		c.mu.Unlock()
		return list, true
	}
	c.mu.Unlock()

	if c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, historyKey)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.log.Warn().Err(err).Msg("load history")
		}
		return nil, false
	}
	var list []models.StorySummary
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		c.log.Warn().Err(err).Msg("decode history")
		return nil, false
	}
	c.setLocal(gen, list)
	return list, true
}

// store caches list unless an invalidation happened since gen was read.
func (c *Cache) store(ctx context.Context, gen uint64, list []models.StorySummary) {
	if c == nil {
		return
	}
	if !c.setLocal(gen, list) {
		c.log.Debug().Msg("history changed while loading, not cached")
		return
	}
	if c.client == nil {
		return
	}
	data, err := json.Marshal(list)
	if err != nil {
		c.log.Warn().Err(err).Msg("marshal history")
		return
	}
	if err := c.client.Set(ctx, historyKey, data); err != nil {
		c.log.Warn().Err(err).Msg("store history")
	}
}

func (c *Cache) invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	c.dropLocal()
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, historyKey); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		c.log.Warn().Err(err).Msg("invalidate history")
	}
	payload, err := json.Marshal(invalidateMessage{Origin: c.origin, Scope: scopeHistory})
	if err != nil {
		return
	}
	if err := c.client.Publish(ctx, invalidateChannel, payload); err != nil {
		c.log.Warn().Err(err).Msg("publish invalidation")
	}
}

func (c *Cache) setLocal(gen uint64, list []models.StorySummary) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.local = cloneSummaries(list)
	c.valid = true
	return true
}

func (c *Cache) dropLocal() {
	c.mu.Lock()
	c.local = nil
	c.valid = false
	c.gen++
	c.mu.Unlock()
}

func cloneSummaries(list []models.StorySummary) []models.StorySummary {
	out := make([]models.StorySummary, len(list))
	copy(out, list)
	return out
}
