// circuit_breaker_test.go: tests for per-monitor run breakers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerState_String(t *testing.T) {
	testCases := []struct {
		state    BreakerState
		expected string
	}{
		{BreakerClosed, "closed"},
		{BreakerOpen, "open"},
		{BreakerHalfOpen, "half-open"},
		{BreakerState(99), "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.state.String())
		})
	}
}

func TestCircuitBreakerDisabledAlwaysAllows(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1})
	for i := 0; i < 5; i++ {
		assert.False(t, cb.RecordFailure())
	}
	assert.True(t, cb.Allow())
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreakerOpensOnConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Enabled: true, FailureThreshold: 3, RecoveryTimeout: time.Hour, SuccessThreshold: 1})

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	cb.RecordSuccess()
	assert.False(t, cb.RecordFailure(), "a success resets the streak")
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.RecordFailure())

	assert.Equal(t, BreakerOpen, cb.State())
	assert.False(t, cb.Allow())
	stats := cb.Stats()
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, int64(3), stats.Failures)
	assert.False(t, stats.LastFailure.IsZero())

	cb.Reset()
	assert.Equal(t, BreakerClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Enabled: true, FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond, SuccessThreshold: 2})
	require.True(t, cb.RecordFailure())

	assert.Eventually(t, cb.Allow, time.Second, 5*time.Millisecond)
	assert.Equal(t, BreakerHalfOpen, cb.State())
	assert.True(t, cb.Allow(), "second trial")
	assert.False(t, cb.Allow(), "trials are capped at the success threshold")

	cb.RecordSuccess()
	assert.Equal(t, BreakerHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreakerReopensOnTrialFailure(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Enabled: true, FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond, SuccessThreshold: 1})
	require.True(t, cb.RecordFailure())
	assert.Eventually(t, cb.Allow, time.Second, 5*time.Millisecond)

	assert.True(t, cb.RecordFailure())
	assert.Equal(t, BreakerOpen, cb.State())
}

func TestDispatchSkipsMonitorWithOpenBreaker(t *testing.T) {
	config := HostConfig{Breaker: BreakerConfig{Enabled: true, FailureThreshold: 2, RecoveryTimeout: time.Hour}}
	th := newTestHost(t, config)
	th.addMonitor(t, "grumpy", Options{"fail_run": true})
	th.addMonitor(t, "greeter", nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result := th.Dispatch(ctx, NewEvent("user-1", "hi"))
		assert.Contains(t, result.Errors, "grumpy")
	}
	assert.True(t, th.logger.HasMessage("WARN", "Run breaker opened"))

	result := th.Dispatch(ctx, NewEvent("user-1", "hi"))
	assert.Equal(t, SkipBreaker, result.Skipped["grumpy"])
	assert.Equal(t, []string{"greeter"}, result.Delivered)

	rec := doAdmin(t, NewAdminHandler(th.Host), http.MethodGet, "/pieces/monitor/grumpy/breaker", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats BreakerStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "open", stats.State)

	// A reload installs a new instance with a fresh breaker.
	_, err := th.Reload(ctx, KindMonitor, "grumpy")
	require.NoError(t, err)
	_, ok := th.Breaker("grumpy")
	assert.False(t, ok)
	result = th.Dispatch(ctx, NewEvent("user-1", "hi"))
	assert.Contains(t, result.Errors, "grumpy")
}
