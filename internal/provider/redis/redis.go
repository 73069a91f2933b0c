// Package redis implements the Store interface using Redis/Valkey.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
)

// Config holds Redis/Valkey connection and store settings.
type Config struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password,omitempty"`
	DB             int    `yaml:"db,omitempty"`
	KeyPrefix      string `yaml:"keyPrefix,omitempty"`
	ActionListMax  int64  `yaml:"actionListMax,omitempty"`  // per-cascade healing action cap
	CascadeListMax int64  `yaml:"cascadeListMax,omitempty"` // per-automation cascade summary cap
	EventStreamMax int64  `yaml:"eventStreamMax,omitempty"`
}

// casScript compares the stored record version against ARGV[1] and writes
// ARGV[2] when they match. ARGV[1] == "0" requires the key to be absent.
// Returns 1 on success, 0 on a version conflict.
const casScript = `
local current = redis.call('HGET', KEYS[1], 'version')
if ARGV[1] == '0' then
  if current then return 0 end
else
  if not current or current ~= ARGV[1] then return 0 end
end
redis.call('HSET', KEYS[1], 'version', ARGV[3], 'data', ARGV[2])
return 1
`

// Store implements provider.Store backed by Redis/Valkey.
type Store struct {
	client    *goredis.Client
	prefix    string
	cas       *goredis.Script
	logger    *slog.Logger
	actionMax int64
	resultMax int64
	eventMax  int64
}

// New creates a Redis store from config.
func New(cfg *Config, logger *slog.Logger) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg, logger)
}

// NewFromClient creates a Store from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, cfg *Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "halcyon:"
	}
	actionMax := cfg.ActionListMax
	if actionMax <= 0 {
		actionMax = 500
	}
	resultMax := cfg.CascadeListMax
	if resultMax <= 0 {
		resultMax = 200
	}
	eventMax := cfg.EventStreamMax
	if eventMax <= 0 {
		eventMax = 2000
	}
	return &Store{
		client:    client,
		prefix:    prefix,
		cas:       goredis.NewScript(casScript),
		logger:    logger,
		actionMax: actionMax,
		resultMax: resultMax,
		eventMax:  eventMax,
	}
}

// Start initializes the provider connection.
func (s *Store) Start(ctx context.Context) error {
	return s.Ping(ctx)
}

// Stop closes the provider connection.
func (s *Store) Stop(_ context.Context) error {
	return s.client.Close()
}

// Ping checks connectivity to the Redis server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client (for advanced usage/testing).
func (s *Store) Client() *goredis.Client {
	return s.client
}
