// Package forecast exposes the fund-forecast lookup the pricing engine
// consumes. NAV computation itself happens upstream; this is a read-side
// cache at the collaborator boundary.
package forecast

import (
	"context"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cefalpha/almengine/internal/models"
)

// Source resolves a fund ticker to its estimated-NAV record. A missing
// forecast is a normal skip-this-cycle outcome, not an error.
type Source interface {
	Lookup(ctx context.Context, ticker string) (*models.FundForecast, bool)
}

// MemorySource is a seedable in-memory forecast source, used standalone in
// tests and as the local layer of the redis-backed source.
type MemorySource struct {
	mu        sync.RWMutex
	forecasts map[string]models.FundForecast
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{forecasts: make(map[string]models.FundForecast)}
}

// Put stores a forecast record.
func (s *MemorySource) Put(f models.FundForecast) {
	s.mu.Lock()
	s.forecasts[f.Ticker] = f
	s.mu.Unlock()
}

// Lookup returns the forecast for a ticker.
func (s *MemorySource) Lookup(_ context.Context, ticker string) (*models.FundForecast, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forecasts[ticker]
	if !ok {
		return nil, false
	}
	return &f, true
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisSource reads forecast records published by the NAV service, caching
// hits locally for the session.
type RedisSource struct {
	client    *redis.Client
	local     *MemorySource
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisSource creates a read-through source over the given client.
func NewRedisSource(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisSource {
	if keyPrefix == "" {
		keyPrefix = "forecast:"
	}
	return &RedisSource{
		client:    client,
		local:     NewMemorySource(),
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

// Lookup checks the local layer first, then redis. Redis errors degrade to a
// miss; the caller simply skips the order this cycle.
func (s *RedisSource) Lookup(ctx context.Context, ticker string) (*models.FundForecast, bool) {
	if f, ok := s.local.Lookup(ctx, ticker); ok && time.Since(f.AsOf) < s.ttl {
		return f, true
	}

	raw, err := s.client.Get(ctx, s.keyPrefix+ticker).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("forecast read failed", zap.String("ticker", ticker), zap.Error(err))
		}
		return nil, false
	}

	var f models.FundForecast
	if err := jsonAPI.Unmarshal(raw, &f); err != nil {
		s.logger.Warn("forecast payload malformed", zap.String("ticker", ticker), zap.Error(err))
		return nil, false
	}
	if f.AsOf.IsZero() {
		f.AsOf = time.Now().UTC()
	}
	s.local.Put(f)
	return &f, true
}
