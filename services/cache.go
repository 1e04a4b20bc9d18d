package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"cityflow/neurotraff/config"

	"github.com/redis/go-redis/v9"
)

// VerdictChannel carries every freshly evaluated verdict.
const VerdictChannel = "cityflow:verdicts"

// ErrCacheMiss is returned by Get when the key is absent or Redis is not configured.
var ErrCacheMiss = errors.New("cache miss")

// CacheService wraps Redis. A nil client turns every call into a no-op or
// a miss, so serving keeps working without Redis.
type CacheService struct {
	client *redis.Client
}

func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var lastErr error
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client}, nil
		}
		log.Printf("redis ping attempt %d/5 failed: %v", i+1, lastErr)
		time.Sleep(2 * time.Second)
	}

	client.Close()
	return &CacheService{client: nil}, fmt.Errorf("redis ping failed after 5 attempts: %w", lastErr)
}

// NewCacheServiceWithClient wraps an existing client; nil disables caching.
func NewCacheServiceWithClient(client *redis.Client) *CacheService {
	return &CacheService{client: client}
}

func (s *CacheService) Available() bool {
	return s.client != nil
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	if s.client == nil {
		return ErrCacheMiss
	}
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

// Subscribe returns nil when Redis is not configured.
func (s *CacheService) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if s.client == nil {
		return nil
	}
	return s.client.Subscribe(ctx, channel)
}

func (s *CacheService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func verdictKey(road string) string {
	return "verdict:" + road
}

func (s *CacheService) GetVerdict(ctx context.Context, road string) (*RoadVerdict, error) {
	var v RoadVerdict
	if err := s.Get(ctx, verdictKey(road), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *CacheService) SetVerdict(ctx context.Context, v *RoadVerdict, ttl time.Duration) error {
	return s.Set(ctx, verdictKey(v.Road), v, ttl)
}

func (s *CacheService) PublishVerdict(ctx context.Context, v *RoadVerdict) error {
	return s.Publish(ctx, VerdictChannel, v)
}
