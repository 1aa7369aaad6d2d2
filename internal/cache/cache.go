package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"agromarket/internal/logger"
	"agromarket/internal/tracing"
)

// RedisClient is shared by the response cache, pub/sub, rate limiting and
// the Redis storage backend. Nil means Redis is disabled and every cache
// helper degrades to a miss.
var RedisClient *redis.Client

var (
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"endpoint", "instance"},
	)
	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"endpoint", "instance"},
	)
)

func init() {
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
}

// InitRedis connects RedisClient to addr and verifies it with PING.
func InitRedis(ctx context.Context, addr string) error {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	RedisClient = client
	logger.Log.Info("Redis connection established", zap.String("addr", addr))
	return nil
}

func Enabled() bool {
	return RedisClient != nil
}

// GetCache returns the cached value for key, or "" on a miss.
func GetCache(ctx context.Context, key string, endpoint, instance string) (string, error) {
	if !Enabled() {
		return "", nil
	}
	val, err := RedisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		cacheMissesTotal.WithLabelValues(endpoint, instance).Inc()
		return "", nil
	}
	if err != nil {
		return "", err
	}
	cacheHitsTotal.WithLabelValues(endpoint, instance).Inc()
	return val, nil
}

func SetCache(ctx context.Context, key, value string, ttl time.Duration, endpoint, instance string) error {
	if !Enabled() {
		return nil
	}
	return RedisClient.Set(ctx, key, value, ttl).Err()
}

// InvalidateByPrefix deletes every key starting with prefix.
func InvalidateByPrefix(ctx context.Context, prefix string, endpoint string, instance string) {
	if !Enabled() {
		return
	}
	tracer := otel.Tracer(tracing.TracerName)
	ctx, span := tracer.Start(ctx, "InvalidateByPrefix")
	defer span.End()

	keys, err := getAllKeys(ctx, prefix)
	if err != nil {
		logger.Log.Error("Failed to get cache keys for invalidation",
			zap.String("prefix", prefix),
			zap.String("endpoint", endpoint),
			zap.String("instance", instance),
			zap.Error(err),
		)
		return
	}

	invalidatedCount := 0
	for _, key := range keys {
		if err := RedisClient.Del(ctx, key).Err(); err != nil {
			logger.Log.Warn("Failed to invalidate cache key",
				zap.String("key", key),
				zap.String("prefix", prefix),
				zap.String("endpoint", endpoint),
				zap.String("instance", instance),
				zap.Error(err),
			)
		} else {
			invalidatedCount++
		}
	}

	logger.Log.Info("Cache invalidation completed",
		zap.String("prefix", prefix),
		zap.String("endpoint", endpoint),
		zap.String("instance", instance),
		zap.Int("invalidated_keys", invalidatedCount),
	)
}

func getAllKeys(ctx context.Context, prefix string) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		foundKeys, nextCursor, err := RedisClient.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			return nil, err
		}

		keys = append(keys, foundKeys...)
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
