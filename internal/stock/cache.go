package stock

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "stockyard:avail:"

// Cache is a Redis read cache of stock records for POS availability
// polling. The ledger-backed store stays authoritative; every applied
// entry refreshes the cached record, and misses fall through to the
// repository. Entries expire so a stale cache self-heals.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCache constructs Cache. TTL defaults to one minute.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

type cachedRecord struct {
	OnHand     int64     `json:"on_hand"`
	Reserved   int64     `json:"reserved"`
	AppliedSeq int64     `json:"applied_seq"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Get loads a cached record. Concurrent misses for the same key are
// collapsed into a single Redis round trip.
func (c *Cache) Get(ctx context.Context, sku, location string) (Record, bool) {
	if c == nil || c.client == nil {
		return Record{}, false
	}
	key := cacheKeyPrefix + RecordKey(sku, location)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.client.Get(ctx, key).Bytes()
	})
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("stock cache get", slog.Any("error", err), slog.String("key", key))
		}
		return Record{}, false
	}
	var cached cachedRecord
	if err := json.Unmarshal(v.([]byte), &cached); err != nil {
		return Record{}, false
	}
	return Record{
		SKU:        sku,
		Location:   location,
		OnHand:     cached.OnHand,
		Reserved:   cached.Reserved,
		AppliedSeq: cached.AppliedSeq,
		UpdatedAt:  cached.UpdatedAt,
	}, true
}

// Put stores the record. Cache failures are logged and swallowed; the
// repository remains the fallback read path.
func (c *Cache) Put(ctx context.Context, rec Record) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(cachedRecord{
		OnHand:     rec.OnHand,
		Reserved:   rec.Reserved,
		AppliedSeq: rec.AppliedSeq,
		UpdatedAt:  rec.UpdatedAt,
	})
	if err != nil {
		return
	}
	key := cacheKeyPrefix + rec.Key()
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("stock cache put", slog.Any("error", err), slog.String("key", key))
	}
}
