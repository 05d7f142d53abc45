// dispatch.go: Event dispatch to monitors
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Skip reasons reported in DispatchResult.
const (
	SkipOrphaned = "orphaned"
	SkipDisabled = "disabled"
	SkipBot      = "bot"
	SkipSelf     = "self"
	SkipBreaker  = "circuit_open"
)

// DispatchResult summarizes one event's trip through the monitors.
type DispatchResult struct {
	EventID   string
	Delivered []string
	Skipped   map[string]string
	Errors    map[string]error
}

// Dispatch delivers event to every eligible monitor, in registration order,
// and returns once all of them have run. A failing monitor never stops the
// others.
func (h *Host) Dispatch(ctx context.Context, event *Event) DispatchResult {
	event.stamp()
	h.execMu.Lock()
	defer h.execMu.Unlock()
	return h.dispatch(ctx, event)
}

func (h *Host) dispatch(ctx context.Context, event *Event) DispatchResult {
	result := DispatchResult{
		EventID: event.ID,
		Skipped: make(map[string]string),
		Errors:  make(map[string]error),
	}
	store := h.stores[KindMonitor]

	// The snapshot fixes who sees this event; pieces replaced while it is
	// in flight are skipped, not redirected to their replacement.
	snapshot := store.Pieces()

	ctx, span := h.tracer.Start(ctx, "piece.dispatch", trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.Int("event.monitors", len(snapshot)),
	))
	defer span.End()
	h.metrics.RecordEvent()

	for _, p := range snapshot {
		if reason := h.skipReason(store, p, event); reason != "" {
			result.Skipped[p.Name()] = reason
			h.metrics.RecordRun(p.Name(), ResultSkipped, 0)
			continue
		}
		if err := h.runPiece(ctx, p, event); err != nil {
			result.Errors[p.Name()] = err
			continue
		}
		result.Delivered = append(result.Delivered, p.Name())
	}

	if len(result.Errors) > 0 {
		span.SetStatus(codes.Error, "one or more monitors failed")
	}
	return result
}

func (h *Host) skipReason(store *Store, p Piece, event *Event) string {
	if !store.IsCurrent(p) {
		return SkipOrphaned
	}
	if !p.Enabled() {
		return SkipDisabled
	}
	observer, ok := p.(Observer)
	if !ok {
		return ""
	}
	if observer.IgnoreBots() && event.AuthorBot {
		return SkipBot
	}
	if observer.IgnoreSelf() && h.config.SelfID != "" && event.AuthorID == h.config.SelfID {
		return SkipSelf
	}
	if !h.breakerFor(p.Name()).Allow() {
		return SkipBreaker
	}
	return ""
}

func (h *Host) runPiece(ctx context.Context, p Piece, event *Event) error {
	logger := h.logger.With("kind", p.Kind().String(), "piece", p.Name())
	ctx = ContextWithLogger(ctx, logger)

	start := time.Now()
	rec, err := protect(func() error { return p.Run(ctx, event) })
	duration := time.Since(start)

	switch {
	case rec != nil:
		err = NewRunPanicError(p.Name(), rec.value)
		h.metrics.RecordRun(p.Name(), ResultPanic, duration)
		logger.Error("Piece panicked while handling event",
			"event", event.ID,
			"panic", rec.value,
			"stack", string(rec.stack))
	case err != nil:
		err = NewRunFailedError(p.Name(), err)
		h.metrics.RecordRun(p.Name(), ResultFailure, duration)
		logger.Error("Piece failed to handle event", "event", event.ID, "error", err)
	default:
		h.metrics.RecordRun(p.Name(), ResultSuccess, duration)
		h.breakerFor(p.Name()).RecordSuccess()
		return nil
	}

	if h.breakerFor(p.Name()).RecordFailure() {
		logger.Warn("Run breaker opened", "recovery_timeout", h.config.Breaker.RecoveryTimeout)
	}

	if h.errorHandler != nil {
		h.errorHandler(p, event, err)
	}
	return err
}
