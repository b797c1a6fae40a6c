package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/cache"
	"github.com/ppissanetzky/barcode-sub000/internal/metrics"
	"github.com/ppissanetzky/barcode-sub000/internal/model"
)

// Cached remembers directory answers for a while. Unknown users are cached
// too so repeated lookups of deleted accounts stay cheap.
type Cached struct {
	next  Directory
	cache cache.Cache
	ttl   time.Duration
}

// NewCached wraps next with c.
func NewCached(next Directory, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl}
}

type cachedUser struct {
	User *model.User `json:"user"`
}

func (c *Cached) LookupUser(ctx context.Context, id int64) (*model.User, error) {
	key := "user:" + strconv.FormatInt(id, 10)

	if v, err := c.cache.Get(ctx, key); err == nil {
		var cu cachedUser
		if err := json.Unmarshal(v, &cu); err == nil {
			metrics.IncCacheHit()
			return cu.User, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("directory cache read failed", "key", key, "error", err)
	}
	metrics.IncCacheMiss()

	u, err := c.next.LookupUser(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, cachedUser{User: u})
	return u, nil
}

func (c *Cached) FindHolders(ctx context.Context) ([]model.Holder, error) {
	const key = "holders"

	if v, err := c.cache.Get(ctx, key); err == nil {
		var holders []model.Holder
		if err := json.Unmarshal(v, &holders); err == nil {
			metrics.IncCacheHit()
			return holders, nil
		}
	}
	metrics.IncCacheMiss()

	holders, err := c.next.FindHolders(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, holders)
	return holders, nil
}

// Forget drops a cached user, e.g. after their forum groups change.
func (c *Cached) Forget(ctx context.Context, id int64) error {
	return c.cache.Delete(ctx, "user:"+strconv.FormatInt(id, 10))
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		slog.Warn("directory cache write failed", "key", key, "error", err)
	}
}
