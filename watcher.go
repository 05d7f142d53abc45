// watcher.go: Argus-powered hot reload of installed pieces
//
// Every installed piece whose manifest lives on the local file system is
// watched. A modified manifest reloads the piece; a deleted one unloads it.
// Reloads go through the host, so they are serialized with dispatch and a
// failed reload leaves the current instance in place.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/time/rate"
)

// maxWatchedManifests caps the argus watch list.
const maxWatchedManifests = 1000

type watchTarget struct {
	kind Kind
	name string
}

// Watcher reloads pieces when their manifests change.
type Watcher struct {
	host        *Host
	logger      Logger
	config      HotReloadConfig
	watcher     *argus.Watcher
	auditLogger *argus.AuditLogger

	targets  cmap.ConcurrentMap[string, watchTarget]
	watched  cmap.ConcurrentMap[string, bool]
	limiters cmap.ConcurrentMap[string, *rate.Limiter]

	mu      sync.Mutex
	running atomic.Bool
	stopped atomic.Bool
}

// NewWatcher creates a watcher for h. It does nothing until Start.
func NewWatcher(h *Host, config HotReloadConfig, logger Logger) (*Watcher, error) {
	logger = NewLogger(logger).With("component", "manifest_watcher")

	audit := argus.AuditConfig{Enabled: false}
	if config.AuditFile != "" {
		audit = argus.AuditConfig{
			Enabled:       true,
			OutputFile:    config.AuditFile,
			MinLevel:      argus.AuditInfo,
			BufferSize:    1000,
			FlushInterval: 5 * time.Second,
		}
	}

	w := &Watcher{
		host:     h,
		logger:   logger,
		config:   config,
		targets:  cmap.New[watchTarget](),
		watched:  cmap.New[bool](),
		limiters: cmap.New[*rate.Limiter](),
	}

	w.watcher = argus.New(argus.Config{
		PollInterval:         config.PollInterval,
		CacheTTL:             config.PollInterval / 2,
		MaxWatchedFiles:      maxWatchedManifests,
		Audit:                audit,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			logger.Error("Manifest watching error", "error", err, "file", filepath)
		},
	})

	if audit.Enabled {
		auditLogger, err := argus.NewAuditLogger(audit)
		if err != nil {
			return nil, NewConfigWatcherError("failed to create audit logger", err)
		}
		w.auditLogger = auditLogger
	}
	return w, nil
}

// Start begins polling. It cannot be restarted after Stop.
func (w *Watcher) Start() error {
	if w.stopped.Load() {
		return NewConfigWatcherError("manifest watcher has been stopped and cannot be restarted", nil)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running.CompareAndSwap(false, true) {
		return NewConfigWatcherError("manifest watcher is already running", nil)
	}
	if err := w.watcher.Start(); err != nil {
		w.running.Store(false)
		return NewConfigWatcherError("failed to start argus watcher", err)
	}
	w.logger.Info("Manifest watcher started", "poll_interval", w.config.PollInterval, "watched", w.watched.Count())
	w.audit("manifest_watcher_started", map[string]interface{}{
		"poll_interval": w.config.PollInterval.String(),
		"watched":       w.watched.Count(),
	})
	return nil
}

// Stop stops polling permanently.
func (w *Watcher) Stop() error {
	if !w.stopped.CompareAndSwap(false, true) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var stopErr error
	if w.running.CompareAndSwap(true, false) {
		if err := w.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop argus watcher", err)
		}
	}
	w.audit("manifest_watcher_stopped", map[string]interface{}{"clean_shutdown": stopErr == nil})
	if w.auditLogger != nil {
		if err := w.auditLogger.Close(); err != nil {
			w.logger.Warn("Failed to close audit logger during shutdown", "error", err)
		}
	}
	w.logger.Info("Manifest watcher stopped")
	return stopErr
}

// IsRunning reports whether the watcher is polling.
func (w *Watcher) IsRunning() bool {
	return w.running.Load() && !w.stopped.Load()
}

// Track starts watching p's manifest. Non-local manifests are ignored.
func (w *Watcher) Track(p Piece) {
	path := LocalPath(ManifestURL(p.Dir(), p.File()))
	if path == "" {
		return
	}
	w.targets.Set(path, watchTarget{kind: p.Kind(), name: p.Name()})

	if !w.watched.SetIfAbsent(path, true) {
		return
	}
	err := w.watcher.Watch(path, func(event argus.ChangeEvent) {
		SafeGo(w.logger, func() { w.handleChange(event) })
	})
	if err != nil {
		w.watched.Remove(path)
		w.logger.Warn("Failed to watch manifest", "path", path, "error", err)
		return
	}
	w.logger.Debug("Watching manifest", "path", path, "piece", p.Name())
}

// Untrack stops reacting to p's manifest. The argus watch stays registered
// so a later Track of the same path is free.
func (w *Watcher) Untrack(p Piece) {
	path := LocalPath(ManifestURL(p.Dir(), p.File()))
	if path == "" {
		return
	}
	w.targets.RemoveCb(path, func(key string, t watchTarget, exists bool) bool {
		return exists && t.kind == p.Kind() && t.name == p.Name()
	})
}

// Tracked reports whether a manifest path is mapped to a piece.
func (w *Watcher) Tracked(path string) bool {
	return w.targets.Has(path)
}

func (w *Watcher) handleChange(event argus.ChangeEvent) {
	target, ok := w.targets.Get(event.Path)
	if !ok {
		return
	}
	if !w.allow(event.Path) {
		w.logger.Debug("Manifest change throttled", "path", event.Path)
		return
	}

	w.logger.Info("Manifest change detected",
		"path", event.Path,
		"piece", target.name,
		"is_delete", event.IsDelete,
		"is_modify", event.IsModify)

	if event.IsDelete {
		removed, err := w.host.Unload(target.kind, target.name)
		if err != nil {
			w.logger.Warn("Failed to unload piece after manifest removal", "piece", target.name, "error", err)
		}
		w.audit("piece_unloaded", map[string]interface{}{
			"path":    event.Path,
			"kind":    target.kind.String(),
			"piece":   target.name,
			"removed": removed,
		})
		return
	}

	if _, err := w.host.Reload(context.Background(), target.kind, target.name); err != nil {
		w.logger.Error("Hot reload failed, keeping current instance", "piece", target.name, "error", err)
		w.audit("piece_reload_failed", map[string]interface{}{
			"path":  event.Path,
			"kind":  target.kind.String(),
			"piece": target.name,
			"error": err.Error(),
		})
		return
	}
	w.audit("piece_reloaded", map[string]interface{}{
		"path":  event.Path,
		"kind":  target.kind.String(),
		"piece": target.name,
	})
}

// allow applies the per-manifest minimum interval between reloads.
func (w *Watcher) allow(path string) bool {
	if w.config.MinInterval <= 0 {
		return true
	}
	limiter := w.limiters.Upsert(path, nil, func(exists bool, current, _ *rate.Limiter) *rate.Limiter {
		if exists {
			return current
		}
		return rate.NewLimiter(rate.Every(w.config.MinInterval), 1)
	})
	return limiter.Allow()
}

func (w *Watcher) audit(eventType string, context map[string]interface{}) {
	if w.auditLogger == nil {
		return
	}
	context["component"] = "manifest_watcher"
	context["pid"] = os.Getpid()
	w.auditLogger.LogSecurityEvent(eventType, "Piece manifest change", context)
}
