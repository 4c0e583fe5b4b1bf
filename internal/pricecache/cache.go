// Package pricecache keeps the last seen price per symbol in Redis so a
// restarted desk warms its display before the first live feed event.
//
// The cache is strictly best-effort: the trading service and the feed
// remain authoritative, and a cold or unreachable Redis only means the
// display starts blank.
package pricecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradedesk/internal/model"
)

const (
	keyPrefix  = "price:latest:"
	defaultTTL = 30 * time.Minute
)

// Config configures the cache connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // per-key expiry; default 30m
}

// Cache stores the latest price event per symbol.
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// New creates a Cache and pings the server.
func New(cfg Config, log *slog.Logger) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	log.Info("price cache connected", "addr", cfg.Addr)
	return &Cache{client: client, ttl: ttl, log: log}, nil
}

// Write stores ev as the latest price for its symbol. Failures are
// returned for metrics but are safe to ignore.
func (c *Cache) Write(ctx context.Context, ev model.PriceEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+ev.Symbol, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", ev.Symbol, err)
	}
	return nil
}

// Load returns the cached latest events for the given symbols. Symbols
// with no cached price are simply absent from the result.
func (c *Cache) Load(ctx context.Context, symbols []string) ([]model.PriceEvent, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = keyPrefix + s
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	events := make([]model.PriceEvent, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		var ev model.PriceEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			c.log.Warn("dropping undecodable cached price", "symbol", symbols[i], "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Run consumes events from ch and writes them to the cache until ctx ends
// or ch closes. Write failures are logged and skipped.
func (c *Cache) Run(ctx context.Context, ch <-chan model.PriceEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := c.Write(ctx, ev); err != nil && ctx.Err() == nil {
				c.log.Warn("price cache write failed", "symbol", ev.Symbol, "error", err)
			}
		}
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
