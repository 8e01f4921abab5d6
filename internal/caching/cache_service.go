package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gstrecon/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent. Callers fall back to the
// repositories on a miss.
var ErrCacheMiss = errors.New("cache miss")

type CacheService interface {
	// Reconciliation summary caching
	GetSummary(ctx context.Context, userID uuid.UUID, period string) (*models.ReconciliationSummary, error)
	SetSummary(ctx context.Context, summary *models.ReconciliationSummary, ttl time.Duration) error
	GetVendorSummaries(ctx context.Context, userID uuid.UUID, period string) ([]models.VendorReconciliation, error)
	SetVendorSummaries(ctx context.Context, userID uuid.UUID, period string, vendors []models.VendorReconciliation, ttl time.Duration) error

	// Cache invalidation after a reconciliation run replaces prior results
	InvalidatePeriod(ctx context.Context, userID uuid.UUID, period string) error

	// Rate limiting (windowed counters; the caller supplies the window key)
	IsRateLimited(ctx context.Context, key string, limit int) (bool, error)
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) error

	// Generic string operations
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

func summaryKey(userID uuid.UUID, period string) string {
	return fmt.Sprintf("recon:summary:%s:%s", userID, period)
}

func vendorsKey(userID uuid.UUID, period string) string {
	return fmt.Sprintf("recon:vendors:%s:%s", userID, period)
}

func (s *redisCacheService) GetSummary(ctx context.Context, userID uuid.UUID, period string) (*models.ReconciliationSummary, error) {
	data, err := s.client.Get(ctx, summaryKey(userID, period)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var summary models.ReconciliationSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode cached summary: %w", err)
	}
	return &summary, nil
}

func (s *redisCacheService) SetSummary(ctx context.Context, summary *models.ReconciliationSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return s.client.Set(ctx, summaryKey(summary.UserID, summary.Period), data, ttl).Err()
}

func (s *redisCacheService) GetVendorSummaries(ctx context.Context, userID uuid.UUID, period string) ([]models.VendorReconciliation, error) {
	data, err := s.client.Get(ctx, vendorsKey(userID, period)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var vendors []models.VendorReconciliation
	if err := json.Unmarshal(data, &vendors); err != nil {
		return nil, fmt.Errorf("failed to decode cached vendor summaries: %w", err)
	}
	return vendors, nil
}

func (s *redisCacheService) SetVendorSummaries(ctx context.Context, userID uuid.UUID, period string, vendors []models.VendorReconciliation, ttl time.Duration) error {
	data, err := json.Marshal(vendors)
	if err != nil {
		return fmt.Errorf("failed to encode vendor summaries: %w", err)
	}
	return s.client.Set(ctx, vendorsKey(userID, period), data, ttl).Err()
}

func (s *redisCacheService) InvalidatePeriod(ctx context.Context, userID uuid.UUID, period string) error {
	return s.client.Del(ctx, summaryKey(userID, period), vendorsKey(userID, period)).Err()
}

func (s *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int) (bool, error) {
	count, err := s.client.Get(ctx, "ratelimit:"+key).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return count >= limit, nil
}

func (s *redisCacheService) IncrementRateLimit(ctx context.Context, key string, window time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, "ratelimit:"+key)
	pipe.Expire(ctx, "ratelimit:"+key, window)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	return value, err
}

func (s *redisCacheService) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *redisCacheService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
