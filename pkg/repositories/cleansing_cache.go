package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// DefaultCleansingTTL is how long cached cleansing results are kept.
const DefaultCleansingTTL = 7 * 24 * time.Hour

// CleansingCache holds the output of the import pipeline's cleansing step.
// Results are written by the pipeline and read by the label workflow.
type CleansingCache interface {
	// GetResults returns apperrors.ErrNotFound when nothing is cached for the file.
	GetResults(ctx context.Context, importFileID int64) ([]*models.RecordValidationGroup, error)
	PutResults(ctx context.Context, importFileID int64, groups []*models.RecordValidationGroup) error

	// GetProgress returns 0 when no progress has been recorded.
	GetProgress(ctx context.Context, importFileID int64) (int, error)
	SetProgress(ctx context.Context, importFileID int64, progress int) error
}

type redisCleansingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCleansingCache creates a Redis-backed cache. A zero ttl uses DefaultCleansingTTL.
func NewCleansingCache(client *redis.Client, ttl time.Duration) CleansingCache {
	if ttl <= 0 {
		ttl = DefaultCleansingTTL
	}
	return &redisCleansingCache{client: client, ttl: ttl}
}

var _ CleansingCache = (*redisCleansingCache)(nil)

func resultsKey(importFileID int64) string {
	return "cleansing:results:" + strconv.FormatInt(importFileID, 10)
}

func progressKey(importFileID int64) string {
	return "cleansing:progress:" + strconv.FormatInt(importFileID, 10)
}

func (c *redisCleansingCache) GetResults(ctx context.Context, importFileID int64) ([]*models.RecordValidationGroup, error) {
	raw, err := c.client.Get(ctx, resultsKey(importFileID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cleansing results: %w", err)
	}

	var groups []*models.RecordValidationGroup
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode cleansing results for import file %d: %w", importFileID, err)
	}
	if groups == nil {
		groups = []*models.RecordValidationGroup{}
	}
	return groups, nil
}

func (c *redisCleansingCache) PutResults(ctx context.Context, importFileID int64, groups []*models.RecordValidationGroup) error {
	if groups == nil {
		groups = []*models.RecordValidationGroup{}
	}
	raw, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("failed to encode cleansing results: %w", err)
	}
	if err := c.client.Set(ctx, resultsKey(importFileID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cleansing results: %w", err)
	}
	return nil
}

func (c *redisCleansingCache) GetProgress(ctx context.Context, importFileID int64) (int, error) {
	progress, err := c.client.Get(ctx, progressKey(importFileID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cleansing progress: %w", err)
	}
	return progress, nil
}

func (c *redisCleansingCache) SetProgress(ctx context.Context, importFileID int64, progress int) error {
	if progress < 0 || progress > 100 {
		return apperrors.NewValidationError("progress", "must be between 0 and 100, got %d", progress)
	}
	if err := c.client.Set(ctx, progressKey(importFileID), progress, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cleansing progress: %w", err)
	}
	return nil
}
