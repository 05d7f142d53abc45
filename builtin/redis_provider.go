// redis_provider.go: go-redis backed key/value provider
//
// Manifest options:
//
//	addr:            host:port (default localhost:6379)
//	password:        AUTH password (default "")
//	db:              database index (default 0)
//	dial_timeout:    per-connection dial timeout (default 2s)
//	retries:         ping attempts after the first (default 3)
//	retry_interval:  initial backoff between pings (default 200ms)
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package builtin

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"

	gopieces "github.com/agilira/go-pieces"
)

// RedisProvider holds a go-redis client connected during Init.
type RedisProvider struct {
	*gopieces.Provider

	options       redis.Options
	retries       int
	retryInterval time.Duration

	mu     sync.RWMutex
	client *redis.Client
}

// NewRedisProvider is the "redis" provider constructor.
func NewRedisProvider(owner gopieces.Owner, dir, file, name string, opts gopieces.Options) (gopieces.Piece, error) {
	base, err := gopieces.NewProvider(owner, dir, file, name, opts)
	if err != nil {
		return nil, err
	}
	addr, err := opts.String("addr", "localhost:6379")
	if err != nil {
		return nil, err
	}
	password, err := opts.String("password", "")
	if err != nil {
		return nil, err
	}
	db, err := opts.Int("db", 0)
	if err != nil {
		return nil, err
	}
	dialTimeout, err := opts.Duration("dial_timeout", 2*time.Second)
	if err != nil {
		return nil, err
	}
	retries, err := opts.Int("retries", 3)
	if err != nil {
		return nil, err
	}
	interval, err := opts.Duration("retry_interval", 200*time.Millisecond)
	if err != nil {
		return nil, err
	}
	if retries < 0 {
		return nil, gopieces.NewMalformedOptionError("retries", retries, "non-negative integer")
	}

	return &RedisProvider{
		Provider: base,
		options: redis.Options{
			Addr:        addr,
			Password:    password,
			DB:          db,
			DialTimeout: dialTimeout,
			MaxRetries:  -1,
		},
		retries:       retries,
		retryInterval: interval,
	}, nil
}

// Init connects and pings with exponential backoff.
func (p *RedisProvider) Init(ctx context.Context) error {
	options := p.options
	client := redis.NewClient(&options)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.retries)), ctx)

	if err := backoff.Retry(func() error { return client.Ping(ctx).Err() }, policy); err != nil {
		_ = client.Close()
		return gopieces.NewProviderConnectionError(p.Name(), err)
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	gopieces.LoggerFromContext(ctx).Info("Redis provider connected", "addr", options.Addr, "db", options.DB)
	return nil
}

// Addr returns the configured server address.
func (p *RedisProvider) Addr() string { return p.options.Addr }

// Client returns the connected client, or nil before Init succeeds.
func (p *RedisProvider) Client() *redis.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// Health pings the server.
func (p *RedisProvider) Health(ctx context.Context) error {
	client := p.Client()
	if client == nil {
		return gopieces.NewNotReadyError(p.Name(), p.State())
	}
	return client.Ping(ctx).Err()
}

// Close disconnects. It is safe to call more than once.
func (p *RedisProvider) Close() error {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}
