package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const quoteKeyPrefix = "quote:"

// CachedSource is a read-through Redis cache in front of another Source.
// Cache entries expire at the staleness window, so a cache hit is always
// fresh enough to trade on.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
}

// NewCachedSource wraps a source with a Redis quote cache.
func NewCachedSource(next Source, client *redis.Client) *CachedSource {
	return &CachedSource{
		next:   next,
		client: client,
		ttl:    MaxQuoteAge,
	}
}

// Quotes returns cached quotes where available and fetches the rest from
// the underlying source. Cache failures degrade to direct fetches.
func (c *CachedSource) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	quotes := make(map[string]Quote, len(symbols))
	var missing []string

	for _, symbol := range symbols {
		data, err := c.client.Get(ctx, quoteKeyPrefix+symbol).Bytes()
		if err != nil {
			if err != redis.Nil {
				log.WithField("component", "marketdata").WithError(err).Warn("quote cache read failed")
			}
			missing = append(missing, symbol)
			continue
		}

		var q Quote
		if err := json.Unmarshal(data, &q); err != nil {
			missing = append(missing, symbol)
			continue
		}
		quotes[symbol] = q
	}

	if len(missing) == 0 {
		return quotes, nil
	}

	fetched, err := c.next.Quotes(ctx, missing)
	if err != nil {
		return quotes, err
	}

	for symbol, q := range fetched {
		quotes[symbol] = q
		data, err := json.Marshal(q)
		if err != nil {
			continue
		}
		if err := c.client.Set(ctx, quoteKeyPrefix+symbol, data, c.ttl).Err(); err != nil {
			log.WithField("component", "marketdata").WithError(err).Warn("quote cache write failed")
		}
	}

	return quotes, nil
}
