// circuit_breaker.go: Per-monitor run breaker
//
// A monitor whose Run keeps failing is skipped for a while instead of being
// called for every event. The breaker opens after FailureThreshold
// consecutive failures, stays open for RecoveryTimeout, then lets trial runs
// through; SuccessThreshold successes close it again and any failure during
// the trial reopens it. A reload installs a new instance, which starts with
// a closed breaker.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// BreakerState is the state of a run breaker.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls the run breakers. Zero values take the defaults
// from ApplyDefaults.
type BreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold"`
}

// CircuitBreaker guards one monitor instance.
type CircuitBreaker struct {
	config BreakerConfig

	state       atomic.Int32
	failures    atomic.Int64
	successes   atomic.Int64
	trials      atomic.Int64
	lastFailure atomic.Int64 // unix nanos

	mu sync.Mutex
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{config: config}
	cb.state.Store(int32(BreakerClosed))
	return cb
}

// Allow reports whether the monitor may run now. An open breaker whose
// recovery timeout has passed moves to half-open.
func (cb *CircuitBreaker) Allow() bool {
	if !cb.config.Enabled {
		return true
	}

	switch BreakerState(cb.state.Load()) {
	case BreakerClosed:
		return true

	case BreakerOpen:
		if !cb.recoveryDue() {
			return false
		}
		cb.mu.Lock()
		if BreakerState(cb.state.Load()) == BreakerOpen && cb.recoveryDue() {
			cb.state.Store(int32(BreakerHalfOpen))
			cb.successes.Store(0)
			cb.trials.Store(0)
		}
		cb.mu.Unlock()
		return cb.allowTrial()

	case BreakerHalfOpen:
		return cb.allowTrial()
	}
	return false
}

func (cb *CircuitBreaker) allowTrial() bool {
	if BreakerState(cb.state.Load()) != BreakerHalfOpen {
		return BreakerState(cb.state.Load()) == BreakerClosed
	}
	return cb.trials.Add(1) <= int64(cb.config.SuccessThreshold)
}

// RecordSuccess notes a successful run.
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.config.Enabled {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch BreakerState(cb.state.Load()) {
	case BreakerClosed:
		cb.failures.Store(0)
	case BreakerHalfOpen:
		if cb.successes.Add(1) >= int64(cb.config.SuccessThreshold) {
			cb.state.Store(int32(BreakerClosed))
			cb.failures.Store(0)
		}
	}
}

// RecordFailure notes a failed run. It returns true when the failure
// opened the breaker.
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.config.Enabled {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure.Store(timecache.CachedTimeNano())
	failures := cb.failures.Add(1)

	switch BreakerState(cb.state.Load()) {
	case BreakerClosed:
		if failures >= int64(cb.config.FailureThreshold) {
			cb.state.Store(int32(BreakerOpen))
			return true
		}
	case BreakerHalfOpen:
		cb.state.Store(int32(BreakerOpen))
		return true
	}
	return false
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	return BreakerState(cb.state.Load())
}

// Stats returns a snapshot for the admin API.
func (cb *CircuitBreaker) Stats() BreakerStats {
	stats := BreakerStats{
		State:    cb.State().String(),
		Failures: cb.failures.Load(),
	}
	if last := cb.lastFailure.Load(); last != 0 {
		stats.LastFailure = time.Unix(0, last)
	}
	return stats
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Store(int32(BreakerClosed))
	cb.failures.Store(0)
	cb.successes.Store(0)
	cb.trials.Store(0)
}

func (cb *CircuitBreaker) recoveryDue() bool {
	last := cb.lastFailure.Load()
	if last == 0 {
		return true
	}
	return time.Since(time.Unix(0, last)) >= cb.config.RecoveryTimeout
}

// BreakerStats describes one breaker.
type BreakerStats struct {
	State       string    `json:"state"`
	Failures    int64     `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}
