package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedSearcher is a read-through Redis cache in front of a Searcher.
// Cache failures degrade to a direct index call and are never surfaced.
type CachedSearcher struct {
	inner  Searcher
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSearcher wraps inner with a Redis snippet cache. A nil client
// disables caching.
func NewCachedSearcher(inner Searcher, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedSearcher {
	return &CachedSearcher{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *CachedSearcher) Search(ctx context.Context, index, query string, k int) ([]Snippet, error) {
	if c.client == nil || c.ttl <= 0 {
		return c.inner.Search(ctx, index, query, k)
	}

	key := cacheKey(index, query, k)
	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var snippets []Snippet
		if unmarshalErr := json.Unmarshal(cached, &snippets); unmarshalErr == nil {
			return snippets, nil
		}
	} else if err != redis.Nil {
		c.logger.Debug("retrieval cache read failed", zap.Error(err))
	}

	snippets, err := c.inner.Search(ctx, index, query, k)
	if err != nil {
		return nil, err
	}

	if encoded, marshalErr := json.Marshal(snippets); marshalErr == nil {
		if setErr := c.client.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			c.logger.Debug("retrieval cache write failed", zap.Error(setErr))
		}
	}
	return snippets, nil
}

func cacheKey(index, query string, k int) string {
	digest := sha256.Sum256([]byte(query))
	return fmt.Sprintf("retrieval:%s:%d:%s", index, k, hex.EncodeToString(digest[:]))
}
