// sql_provider.go: database/sql backed provider for sqlite and postgres
//
// Manifest options:
//
//	driver:          sqlite | postgres (default sqlite)
//	dsn:             data source name (required)
//	retries:         ping attempts after the first (default 3)
//	retry_interval:  initial backoff between pings (default 200ms)
//	max_open_conns:  connection pool cap (default 0, unlimited)
//
// The connection is opened and pinged in Init, so a provider whose backend
// is unreachable never becomes current.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package builtin

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	gopieces "github.com/agilira/go-pieces"
)

// SQL driver names accepted by the "driver" option.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLProvider holds a *sql.DB opened during Init.
type SQLProvider struct {
	*gopieces.Provider

	driver        string
	dsn           string
	retries       int
	retryInterval time.Duration
	maxOpenConns  int

	open func(driver, dsn string) (*sql.DB, error)

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLProvider is the "sql" provider constructor.
func NewSQLProvider(owner gopieces.Owner, dir, file, name string, opts gopieces.Options) (gopieces.Piece, error) {
	p, err := newSQLProvider(owner, dir, file, name, opts, sql.Open)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newSQLProvider(owner gopieces.Owner, dir, file, name string, opts gopieces.Options,
	open func(driver, dsn string) (*sql.DB, error)) (*SQLProvider, error) {
	base, err := gopieces.NewProvider(owner, dir, file, name, opts.WithDefault(gopieces.OptionSQL, true))
	if err != nil {
		return nil, err
	}
	driver, err := opts.String("driver", DriverSQLite)
	if err != nil {
		return nil, err
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, NewUnsupportedDriverError(driver)
	}
	dsn, err := opts.RequiredString("dsn")
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
	maxOpen, err := opts.Int("max_open_conns", 0)
	if err != nil {
		return nil, err
	}
	if retries < 0 {
		return nil, gopieces.NewMalformedOptionError("retries", retries, "non-negative integer")
	}

	return &SQLProvider{
		Provider:      base,
		driver:        driver,
		dsn:           dsn,
		retries:       retries,
		retryInterval: interval,
		maxOpenConns:  maxOpen,
		open:          open,
	}, nil
}

// Init opens the pool and pings it with exponential backoff.
func (p *SQLProvider) Init(ctx context.Context) error {
	logger := gopieces.LoggerFromContext(ctx)

	db, err := p.open(p.driver, p.dsn)
	if err != nil {
		return gopieces.NewProviderConnectionError(p.Name(), err)
	}
	if p.maxOpenConns > 0 {
		db.SetMaxOpenConns(p.maxOpenConns)
	}

	ping := func() error {
		err := db.PingContext(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(ping, p.backoff(ctx)); err != nil {
		_ = db.Close()
		return gopieces.NewProviderConnectionError(p.Name(), err)
	}

	p.mu.Lock()
	p.db = db
	p.mu.Unlock()
	logger.Info("SQL provider connected", "driver", p.driver)
	return nil
}

func (p *SQLProvider) backoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.retryInterval
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.retries)), ctx)
}

// Driver returns the configured driver name.
func (p *SQLProvider) Driver() string { return p.driver }

// DB returns the connection pool, or nil before Init succeeds.
func (p *SQLProvider) DB() *sql.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// Health pings the backend.
func (p *SQLProvider) Health(ctx context.Context) error {
	db := p.DB()
	if db == nil {
		return gopieces.NewNotReadyError(p.Name(), p.State())
	}
	return db.PingContext(ctx)
}

// Close releases the pool. It is safe to call more than once.
func (p *SQLProvider) Close() error {
	p.mu.Lock()
	db := p.db
	p.db = nil
	p.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}
