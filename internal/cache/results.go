package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/mcq-extractor/internal/domain"
	"github.com/spherical/mcq-extractor/internal/observability"
)

const resultsNamespace = "results"

// ResultCache caches the records extracted from one group of content units.
// A nil *ResultCache is valid and never hits.
type ResultCache struct {
	client Client
	ttl    time.Duration
	logger *observability.Logger
}

type cachedResult struct {
	Records  []domain.MCQRecord `json:"records"`
	CachedAt time.Time          `json:"cached_at"`
}

// NewResultCache wraps client. A nil client disables caching and yields nil.
func NewResultCache(client Client, ttl time.Duration, logger *observability.Logger) *ResultCache {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &ResultCache{
		client: client,
		ttl:    ttl,
		logger: logger.WithOperation("cache"),
	}
}

// GroupKey hashes everything that determines the model's answer for a group.
func GroupKey(model, language string, units []domain.ContentUnit) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00", model, language, len(units))
	for _, u := range units {
		fmt.Fprintf(h, "%s\x00%d\x00", u.MediaType, len(u.Data))
		h.Write([]byte(u.Data))
	}
	return CacheKey(resultsNamespace, hex.EncodeToString(h.Sum(nil)))
}

// Get returns the cached records for key with fresh IDs.
func (c *ResultCache) Get(ctx context.Context, key string) ([]domain.MCQRecord, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache get error")
		}
		return nil, false
	}

	var cached cachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cached result")
		if err := c.client.Delete(ctx, key); err != nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache delete error")
		}
		return nil, false
	}

	records := make([]domain.MCQRecord, len(cached.Records))
	for i, r := range cached.Records {
		r.ID = uuid.NewString()
		records[i] = r
	}

	c.logger.Debug().Str("key", key).Int("records", len(records)).Msg("Cache hit")
	return records, true
}

// Set stores records under key.
func (c *ResultCache) Set(ctx context.Context, key string, records []domain.MCQRecord) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(cachedResult{Records: records, CachedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache result")
		return err
	}

	return nil
}

// Purge drops every cached result.
func (c *ResultCache) Purge(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.DeleteByPrefix(ctx, resultsNamespace+":")
}
