// Package redis keeps pipeline watermarks in Redis for deployments that share them
// between hosts.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

const keyPrefix = "bridgeRelay:watermark:"

// Store reads and writes watermarks under bridgeRelay:watermark:<pipeline>.
type Store struct {
	pool *redis.Pool
}

func timeoutDialOptions(db int) []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
		redis.DialDatabase(db),
	}
}

// Open builds a pooled store for addr (host:port).
func Open(addr string, db int) *Store {
	return &Store{pool: &redis.Pool{
		MaxIdle:     5,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr, timeoutDialOptions(db)...)
		},
	}}
}

// Close releases pooled connections.
func (s *Store) Close() error { return s.pool.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// GetWatermark returns the stored watermark, ok=false when none exists.
func (s *Store) GetWatermark(ctx context.Context, pipeline string) (uint64, bool, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()

	block, err := redis.Uint64(conn.Do("GET", keyPrefix+pipeline))
	if errors.Is(err, redis.ErrNil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get watermark: %w", err)
	}
	return block, true, nil
}

// UpsertWatermark stores the watermark for a pipeline.
func (s *Store) UpsertWatermark(ctx context.Context, pipeline string, block uint64) error {
	if pipeline == "" {
		return errors.New("pipeline required")
	}
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("SET", keyPrefix+pipeline, block); err != nil {
		return fmt.Errorf("redis set watermark: %w", err)
	}
	return nil
}
