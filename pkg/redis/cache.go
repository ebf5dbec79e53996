package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/laurel/pkg/matching"
	"github.com/Ramsey-B/laurel/pkg/metrics"
	"github.com/Ramsey-B/laurel/pkg/models"
)

// RecordSource is the uncached registry surface the cache wraps. The record
// repository satisfies it.
type RecordSource interface {
	matching.Store
	Upsert(ctx context.Context, rec *models.AuthoritativeRecord) (*models.AuthoritativeRecord, error)
}

// RecordCache layers a TTL cache over exact digest lookups and invalidates
// on writes. Masked lookups and fuzzy candidate pages pass through; they are
// neither hot nor small. Cache failures log and fall through, so a
// verification never fails on the cache.
type RecordCache struct {
	source RecordSource
	client *Client
	ttl    time.Duration
	logger ectologger.Logger
}

// NewRecordCache wraps source with a digest-lookup cache.
func NewRecordCache(source RecordSource, client *Client, ttl time.Duration, logger ectologger.Logger) *RecordCache {
	return &RecordCache{
		source: source,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(documentType, idHash string) string {
	return "laurel:record:" + documentType + ":" + idHash
}

// FindByIDHash serves from cache when possible. Only found records are
// cached; misses always hit the store so fresh registrations are visible
// immediately.
func (c *RecordCache) FindByIDHash(ctx context.Context, documentType, idHash string) (*models.AuthoritativeRecord, error) {
	key := cacheKey(documentType, idHash)

	cached, err := c.client.Get(ctx, key)
	switch {
	case err == nil:
		var rec models.AuthoritativeRecord
		if err := json.Unmarshal([]byte(cached), &rec); err == nil {
			metrics.RecordCacheLookup("hit")
			return &rec, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		_ = c.client.Del(ctx, key)
		metrics.RecordCacheLookup("miss")
	case errors.Is(err, redis.Nil):
		metrics.RecordCacheLookup("miss")
	default:
		metrics.RecordCacheLookup("error")
		c.logger.WithContext(ctx).WithError(err).Warn("Record cache read failed")
	}

	rec, err := c.source.FindByIDHash(ctx, documentType, idHash)
	if err != nil || rec == nil {
		return rec, err
	}

	if data, err := json.Marshal(rec); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.WithContext(ctx).WithError(err).Warn("Record cache write failed")
		}
	}

	return rec, nil
}

// FindByMasked delegates to the store.
func (c *RecordCache) FindByMasked(ctx context.Context, documentType, masked string) (*models.AuthoritativeRecord, error) {
	return c.source.FindByMasked(ctx, documentType, masked)
}

// Candidates delegates to the store.
func (c *RecordCache) Candidates(ctx context.Context, documentType string, filter models.RecordFilter, limit int) ([]models.AuthoritativeRecord, error) {
	return c.source.Candidates(ctx, documentType, filter, limit)
}

// Upsert passes the write through and drops the cached entry so the new
// content is visible before the TTL lapses.
func (c *RecordCache) Upsert(ctx context.Context, rec *models.AuthoritativeRecord) (*models.AuthoritativeRecord, error) {
	stored, err := c.source.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}

	if err := c.client.Del(ctx, cacheKey(stored.DocumentType, stored.IDHash)); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Record cache invalidation failed")
	}

	return stored, nil
}
