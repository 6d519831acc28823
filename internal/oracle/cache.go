package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// CachedSource wraps a primary Source with a Redis read-through cache.
// The dashboard requests the same handful of quotes constantly; a short
// TTL keeps upstream traffic bounded without settling on stale prices.
type CachedSource struct {
	primary Source
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedSource creates a cached wrapper around a primary source.
func NewCachedSource(primary Source, rdb *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// CurrentPrice checks Redis first, then falls back to the primary and
// populates the cache. Cache errors are treated as misses; the cache
// must never be the reason a trade fails.
func (s *CachedSource) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if raw, err := s.rdb.Get(ctx, quoteKey(symbol)).Result(); err == nil {
		if price, perr := decimal.NewFromString(raw); perr == nil {
			return price, nil
		}
	}

	price, err := s.primary.CurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	s.rdb.Set(ctx, quoteKey(symbol), price.String(), s.ttl)
	return price, nil
}

func quoteKey(symbol string) string { return fmt.Sprintf("quote:%s", symbol) }
