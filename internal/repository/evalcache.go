package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chess_review/internal/domain"
)

const evalKeyPrefix = "eval:"

// EvalCache memoizes engine evaluations by canonical position key, so
// transposed positions from different games collapse to one entry. A lookup
// hits only when the cached search budget satisfies the requested one.
// Safe for concurrent use. Entries live for the process lifetime; the
// optional Redis client adds write-through persistence across runs.
type EvalCache struct {
	log   *zap.SugaredLogger
	redis *redis.Client // nil disables the persistent tier

	mu      sync.RWMutex
	entries map[string]domain.Evaluation
}

func NewEvalCache(log *zap.SugaredLogger, redisClient *redis.Client) *EvalCache {
	return &EvalCache{
		log:     log,
		redis:   redisClient,
		entries: make(map[string]domain.Evaluation),
	}
}

// Get returns the cached evaluation for the position if its budget is at
// least minBudget. A shallower entry is a miss, never a wrong answer.
func (c *EvalCache) Get(ctx context.Context, pos domain.Position, minBudget domain.Budget) (domain.Evaluation, bool) {
	key := pos.Key()

	c.mu.RLock()
	ev, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && ev.Budget.AtLeast(minBudget) {
		return ev, true
	}

	if c.redis == nil {
		return domain.Evaluation{}, false
	}

	raw, err := c.redis.Get(ctx, evalKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Errorw("eval cache redis get failed", "key", key, "error", err)
		}
		return domain.Evaluation{}, false
	}

	var stored domain.Evaluation
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		c.log.Errorw("eval cache entry corrupted", "key", key, "error", err)
		return domain.Evaluation{}, false
	}
	if !stored.Budget.AtLeast(minBudget) {
		return domain.Evaluation{}, false
	}

	c.mu.Lock()
	c.entries[key] = stored
	c.mu.Unlock()
	return stored, true
}

// Put stores the evaluation unless a deeper one is already cached: a deeper
// re-search supersedes a shallower entry, never the other way around.
func (c *EvalCache) Put(ctx context.Context, pos domain.Position, ev domain.Evaluation) {
	key := pos.Key()

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok && existing.Budget.AtLeast(ev.Budget) {
		c.mu.Unlock()
		return
	}
	c.entries[key] = ev
	c.mu.Unlock()

	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		c.log.Errorw("eval cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.redis.Set(ctx, evalKeyPrefix+key, raw, 0).Err(); err != nil {
		c.log.Errorw("eval cache redis set failed", "key", key, "error", err)
	}
}

func (c *EvalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
