// dispatch_test.go: tests for event dispatch, filtering and run-time isolation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchDeliversInRegistrationOrder(t *testing.T) {
	th := newTestHost(t, HostConfig{})
	th.addMonitor(t, "second", nil)
	th.addMonitor(t, "first", nil)

	result := th.Dispatch(context.Background(), NewEvent("user-1", "hello"))
	assert.Equal(t, []string{"second", "first"}, result.Delivered)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Errors)
}

func TestDispatchSkipRules(t *testing.T) {
	th := newTestHost(t, HostConfig{SelfID: "host-bot"})
	disabled := th.addMonitor(t, "disabled", nil)
	disabled.Disable()
	th.addMonitor(t, "strict", nil)
	th.addMonitor(t, "lenient", Options{OptionIgnoreBots: false, OptionIgnoreSelf: false})

	t.Run("bot author", func(t *testing.T) {
		event := NewEvent("other-bot", "beep")
		event.AuthorBot = true
		result := th.Dispatch(context.Background(), event)

		assert.Equal(t, SkipDisabled, result.Skipped["disabled"])
		assert.Equal(t, SkipBot, result.Skipped["strict"])
		assert.Equal(t, []string{"lenient"}, result.Delivered)
	})

	t.Run("self author", func(t *testing.T) {
		result := th.Dispatch(context.Background(), NewEvent("host-bot", "echo"))

		assert.Equal(t, SkipSelf, result.Skipped["strict"])
		assert.Equal(t, []string{"lenient"}, result.Delivered)
	})

	t.Run("human author", func(t *testing.T) {
		result := th.Dispatch(context.Background(), NewEvent("user-1", "hi"))

		assert.Equal(t, []string{"strict", "lenient"}, result.Delivered)
		assert.Equal(t, map[string]string{"disabled": SkipDisabled}, result.Skipped)
	})

	t.Run("re-enabled piece receives events again", func(t *testing.T) {
		disabled.Enable()
		result := th.Dispatch(context.Background(), NewEvent("user-1", "hi"))
		assert.Contains(t, result.Delivered, "disabled")
		assert.Equal(t, int32(1), disabled.(*testMonitor).inits.Load(), "Enable must not re-run Init")
	})
}

func TestDispatchIgnoreSelfWithoutSelfID(t *testing.T) {
	th := newTestHost(t, HostConfig{})
	th.addMonitor(t, "strict", nil)

	result := th.Dispatch(context.Background(), NewEvent("", "anonymous"))
	assert.Equal(t, []string{"strict"}, result.Delivered, "an empty self id never matches")
}

func TestDispatchIsolatesFailuresAndPanics(t *testing.T) {
	var (
		mu       sync.Mutex
		reported = map[string]error{}
	)
	th := newTestHost(t, HostConfig{}, WithErrorHandler(func(p Piece, event *Event, err error) {
		mu.Lock()
		reported[p.Name()] = err
		mu.Unlock()
	}))
	th.addMonitor(t, "failing", Options{"fail_run": true})
	th.addMonitor(t, "panicking", Options{"panic": "nil map write"})
	healthy := th.addMonitor(t, "healthy", nil)

	event := NewEvent("user-1", "hi")
	result := th.Dispatch(context.Background(), event)

	assert.Equal(t, []string{"healthy"}, result.Delivered)
	require.Len(t, result.Errors, 2)
	assert.True(t, HasErrorCode(result.Errors["failing"], ErrCodeRunFailed))
	assert.True(t, errors.Is(result.Errors["failing"], errTestRun))
	assert.True(t, HasErrorCode(result.Errors["panicking"], ErrCodeRunPanic))
	assert.Equal(t, []string{event.ID}, healthy.(*testMonitor).events())

	mu.Lock()
	assert.Len(t, reported, 2)
	mu.Unlock()
	assert.True(t, th.logger.HasMessage("ERROR", "Piece panicked while handling event"))
	assert.True(t, th.logger.HasMessage("ERROR", "Piece failed to handle event"))

	// The host keeps dispatching after a panic.
	result = th.Dispatch(context.Background(), NewEvent("user-1", "again"))
	assert.Equal(t, []string{"healthy"}, result.Delivered)
}

func TestDispatchSkipsPiecesOrphanedMidFlight(t *testing.T) {
	th := newTestHost(t, HostConfig{})
	require.NoError(t, th.RegisterConstructor(KindMonitor, "reloader", func(o Owner, dir, file, name string, opts Options) (Piece, error) {
		m, err := NewMonitor(o, dir, file, name, opts)
		if err != nil {
			return nil, err
		}
		return &selfReloader{Monitor: m}, nil
	}))
	th.loader.put("monitors", "a.yaml", Manifest{Constructor: "reloader"})
	_, err := th.Add(context.Background(), KindMonitor, "monitors", "a.yaml")
	require.NoError(t, err)
	target := th.addMonitor(t, "b", nil)

	// "a" replaces "b" while the event is in flight, so the old "b" must be
	// skipped and the new one must not be reached through this dispatch.
	reloaderOf(t, th).target = target
	result := th.Dispatch(context.Background(), NewEvent("user-1", "hi"))

	assert.Equal(t, SkipOrphaned, result.Skipped["b"])
	assert.Empty(t, target.(*testMonitor).events())
	current, err := th.Get(KindMonitor, "b")
	require.NoError(t, err)
	assert.NotSame(t, target, current)
	assert.Empty(t, current.(*testMonitor).events())
}

type selfReloader struct {
	*Monitor
	target Piece
}

func (s *selfReloader) Run(ctx context.Context, event *Event) error {
	if s.target == nil {
		return nil
	}
	_, err := s.target.Reload(ctx)
	return err
}

func reloaderOf(t *testing.T, th *testHost) *selfReloader {
	t.Helper()
	p, err := th.Get(KindMonitor, "a")
	require.NoError(t, err)
	return p.(*selfReloader)
}

func TestDispatchStampsEvents(t *testing.T) {
	th := newTestHost(t, HostConfig{})
	event := &Event{AuthorID: "user-1"}

	result := th.Dispatch(context.Background(), event)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.ReceivedAt.IsZero())
	assert.Equal(t, event.ID, result.EventID)
}

func TestPublishAndServe(t *testing.T) {
	th := newTestHost(t, HostConfig{})
	m := th.addMonitor(t, "listener", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- th.Serve(ctx) }()

	event := NewEvent("user-1", "queued")
	require.NoError(t, th.Publish(event))

	assert.Eventually(t, func() bool {
		return len(m.(*testMonitor).events()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{event.ID}, m.(*testMonitor).events())

	require.NoError(t, th.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}

	err := th.Publish(NewEvent("user-1", "late"))
	assert.True(t, HasErrorCode(err, ErrCodeQueueClosed))
}

func TestServeStopsOnContextCancel(t *testing.T) {
	th := newTestHost(t, HostConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- th.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestPublishRejectsNilEvent(t *testing.T) {
	th := newTestHost(t, HostConfig{})
	assert.Error(t, th.Publish(nil))
}
