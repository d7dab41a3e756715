// Package redis implements the SignalStore port on Redis: the open set as a
// hash of JSON-encoded signals, the performance log as an append-only list.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signal-servicev1/internal/model"
)

const (
	openSetKey    = "signals:open"
	closedListKey = "signals:closed"

	opTimeout = 5 * time.Second
)

// Config configures the Redis store.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store persists signals in Redis.
type Store struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New creates a Store and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Store{client: client}, nil
}

// LoadOpen returns all open signals from the hash.
func (s *Store) LoadOpen() (map[string]model.Signal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := s.client.HGetAll(ctx, openSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load open: %w", err)
	}

	out := make(map[string]model.Signal, len(raw))
	for id, data := range raw {
		var sig model.Signal
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			return nil, fmt.Errorf("redis load open %s: %w", id, err)
		}
		out[id] = sig
	}
	return out, nil
}

// SaveOpen replaces the open-set hash atomically via a pipeline transaction.
func (s *Store) SaveOpen(signals map[string]model.Signal) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, openSetKey)
	if len(signals) > 0 {
		fields := make(map[string]interface{}, len(signals))
		for id, sig := range signals {
			fields[id] = string(sig.JSON())
		}
		pipe.HSet(ctx, openSetKey, fields)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save open: %w", err)
	}
	return nil
}

// LoadClosed returns the full performance log, oldest first.
func (s *Store) LoadClosed() ([]model.Signal, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, err := s.client.LRange(ctx, closedListKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load closed: %w", err)
	}

	out := make([]model.Signal, 0, len(raw))
	for _, data := range raw {
		var sig model.Signal
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			return nil, fmt.Errorf("redis load closed: %w", err)
		}
		out = append(out, sig)
	}
	return out, nil
}

// AppendClosed pushes one closed signal onto the performance log.
func (s *Store) AppendClosed(sig model.Signal) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.client.RPush(ctx, closedListKey, string(sig.JSON())).Err(); err != nil {
		return fmt.Errorf("redis append closed %s: %w", sig.ID, err)
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ model.SignalStore = (*Store)(nil)
