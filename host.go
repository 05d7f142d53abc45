// host.go: Host owning one store per kind and driving piece code
//
// The Host is the only caller of Run. All piece code it drives (Init, Run,
// host-initiated reload and unload) executes under a single execution lock,
// so two pieces never run concurrently. Events can be dispatched
// synchronously with Dispatch or queued with Publish and drained by Serve.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.opentelemetry.io/otel/trace"
)

// ErrorHandler receives errors returned or panics raised by a piece's Run.
type ErrorHandler func(p Piece, event *Event, err error)

// HostOption customizes a Host.
type HostOption func(*Host)

// WithLogger sets the host logger. Registries and pieces get scoped children.
func WithLogger(logger Logger) HostOption {
	return func(h *Host) { h.logger = NewLogger(logger) }
}

// WithLoader replaces the afs-backed manifest loader.
func WithLoader(loader Loader) HostOption {
	return func(h *Host) { h.loader = loader }
}

// WithMetrics uses an existing metrics collector.
func WithMetrics(metrics *Metrics) HostOption {
	return func(h *Host) { h.metrics = metrics }
}

// WithTracer sets the tracer used for lifecycle and dispatch spans.
func WithTracer(tracer trace.Tracer) HostOption {
	return func(h *Host) { h.tracer = tracer }
}

// WithErrorHandler installs a callback for Run failures.
func WithErrorHandler(handler ErrorHandler) HostOption {
	return func(h *Host) { h.errorHandler = handler }
}

// Host owns the registries and dispatches events to monitors.
type Host struct {
	config       HostConfig
	logger       Logger
	loader       Loader
	manifests    *manifestCache
	metrics      *Metrics
	tracer       trace.Tracer
	errorHandler ErrorHandler

	stores map[Kind]*Store

	// execMu serializes all piece code driven by the host.
	execMu sync.Mutex

	events   *queue.Queue
	health   *Health
	watcher  *Watcher
	breakers cmap.ConcurrentMap[string, *CircuitBreaker]

	loaded    atomic.Bool
	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewHost creates a host with an empty store for every kind.
func NewHost(config HostConfig, opts ...HostOption) (*Host, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	h := &Host{
		config: config,
		logger: DefaultLogger(),
		tracer: DefaultTracer(),
		stores:   make(map[Kind]*Store, len(Kinds())),
		breakers: cmap.New[*CircuitBreaker](),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.loader == nil {
		h.loader = NewManifestLoader()
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(config.Metrics.Namespace)
	}
	h.manifests = newManifestCache(h.loader)
	h.events = queue.New(int64(config.QueueSize))
	h.health = newHealth(h)

	for _, kind := range Kinds() {
		store, err := NewStore(StoreConfig{
			Kind:        kind,
			Owner:       h,
			Loader:      h.manifests,
			Logger:      h.logger,
			Metrics:     h.metrics,
			Tracer:      h.tracer,
			InitTimeout: config.InitTimeout,
			OnInstall:   h.pieceInstalled,
			OnRemove:    h.pieceRemoved,
		})
		if err != nil {
			return nil, err
		}
		h.stores[kind] = store
	}

	if config.HotReload.Enabled {
		watcher, err := NewWatcher(h, config.HotReload, h.logger)
		if err != nil {
			return nil, err
		}
		h.watcher = watcher
	}

	h.logger.Info("Piece host created",
		"self_id", config.SelfID,
		"init_timeout", config.InitTimeout,
		"hot_reload", config.HotReload.Enabled)
	return h, nil
}

// Registry implements Owner.
func (h *Host) Registry(kind Kind) (Registry, error) {
	return h.Store(kind)
}

// Store returns the concrete store for kind.
func (h *Host) Store(kind Kind) (*Store, error) {
	store, ok := h.stores[kind]
	if !ok {
		return nil, NewUnknownKindError(string(kind))
	}
	return store, nil
}

// Config returns the configuration the host was built with.
func (h *Host) Config() HostConfig { return h.config }

// Logger returns the host logger.
func (h *Host) Logger() Logger { return h.logger }

// Metrics returns the host metrics collector.
func (h *Host) Metrics() *Metrics { return h.metrics }

// Health returns the host health probes.
func (h *Host) Health() *Health { return h.health }

// Watcher returns the manifest watcher, or nil when hot reload is off.
func (h *Host) Watcher() *Watcher { return h.watcher }

// Breaker returns the run breaker of the named monitor. Breakers are created
// on first dispatch, so a monitor that has not run yet has none.
func (h *Host) Breaker(name string) (*CircuitBreaker, bool) {
	return h.breakers.Get(name)
}

func (h *Host) breakerFor(name string) *CircuitBreaker {
	return h.breakers.Upsert(name, nil, func(exists bool, current, _ *CircuitBreaker) *CircuitBreaker {
		if exists {
			return current
		}
		return NewCircuitBreaker(h.config.Breaker)
	})
}

// RegisterConstructor registers ctor for manifests of the given kind.
func (h *Host) RegisterConstructor(kind Kind, name string, ctor Constructor) error {
	store, err := h.Store(kind)
	if err != nil {
		return err
	}
	return store.RegisterConstructor(name, ctor)
}

// Add loads, initializes and installs a new piece.
func (h *Host) Add(ctx context.Context, kind Kind, dir, file string) (Piece, error) {
	store, err := h.Store(kind)
	if err != nil {
		return nil, err
	}
	h.execMu.Lock()
	defer h.execMu.Unlock()
	return store.Add(ctx, dir, file)
}

// Get returns the current piece for kind/name.
func (h *Host) Get(kind Kind, name string) (Piece, error) {
	store, err := h.Store(kind)
	if err != nil {
		return nil, err
	}
	p, ok := store.Get(name)
	if !ok {
		return nil, NewPieceNotFoundError(kind, name)
	}
	return p, nil
}

// Enable enables the current piece for kind/name.
func (h *Host) Enable(kind Kind, name string) (Piece, error) {
	p, err := h.Get(kind, name)
	if err != nil {
		return nil, err
	}
	h.metrics.RecordLifecycle(kind, OpEnable, nil)
	h.logger.Info("Piece enabled", "kind", kind.String(), "piece", name)
	return p.Enable(), nil
}

// Disable disables the current piece for kind/name.
func (h *Host) Disable(kind Kind, name string) (Piece, error) {
	p, err := h.Get(kind, name)
	if err != nil {
		return nil, err
	}
	h.metrics.RecordLifecycle(kind, OpDisable, nil)
	h.logger.Info("Piece disabled", "kind", kind.String(), "piece", name)
	return p.Disable(), nil
}

// Reload reloads the current piece for kind/name. Pieces reloading
// themselves from inside Run must call their own Reload instead, since the
// execution lock is already held.
func (h *Host) Reload(ctx context.Context, kind Kind, name string) (Piece, error) {
	store, err := h.Store(kind)
	if err != nil {
		return nil, err
	}
	h.execMu.Lock()
	defer h.execMu.Unlock()
	return store.Reload(ctx, name)
}

// ReloadAll reloads every piece of every kind, providers first.
func (h *Host) ReloadAll(ctx context.Context) error {
	h.execMu.Lock()
	defer h.execMu.Unlock()

	var errs []error
	for _, kind := range loadOrder {
		if err := h.stores[kind].ReloadAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Unload removes the current piece for kind/name.
func (h *Host) Unload(kind Kind, name string) (bool, error) {
	p, err := h.Get(kind, name)
	if err != nil {
		return false, err
	}
	h.execMu.Lock()
	defer h.execMu.Unlock()
	return p.Unload(), nil
}

// Describe returns a snapshot of the current piece for kind/name.
func (h *Host) Describe(kind Kind, name string) (Info, error) {
	p, err := h.Get(kind, name)
	if err != nil {
		return Info{}, err
	}
	return Describe(p), nil
}

// Snapshot describes every current piece of kind, in registration order.
func (h *Host) Snapshot(kind Kind) ([]Info, error) {
	store, err := h.Store(kind)
	if err != nil {
		return nil, err
	}
	pieces := store.Pieces()
	out := make([]Info, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, Describe(p))
	}
	return out, nil
}

// SnapshotAll describes every current piece, grouped by kind.
func (h *Host) SnapshotAll() map[Kind][]Info {
	out := make(map[Kind][]Info, len(h.stores))
	for _, kind := range Kinds() {
		infos, _ := h.Snapshot(kind)
		out[kind] = infos
	}
	return out
}

// Publish queues an event for Serve.
func (h *Host) Publish(event *Event) error {
	if event == nil {
		return NewRegistryError("cannot publish a nil event", nil)
	}
	if h.closed.Load() {
		return NewQueueClosedError(nil)
	}
	event.stamp()
	if err := h.events.Put(event); err != nil {
		return NewQueueClosedError(err)
	}
	h.metrics.SetQueueDepth(h.events.Len())
	return nil
}

// Serve drains published events one at a time until ctx is done or the
// host is closed.
func (h *Host) Serve(ctx context.Context) error {
	h.logger.Info("Dispatch loop started")
	defer h.logger.Info("Dispatch loop stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := h.events.Poll(1, 100*time.Millisecond)
		if err != nil {
			if stderrors.Is(err, queue.ErrTimeout) {
				continue
			}
			if stderrors.Is(err, queue.ErrDisposed) {
				return nil
			}
			return NewQueueClosedError(err)
		}
		h.metrics.SetQueueDepth(h.events.Len())
		for _, item := range items {
			if event, ok := item.(*Event); ok {
				h.Dispatch(ctx, event)
			}
		}
	}
}

// Start loads the configured directories, starts the manifest watcher and
// runs Serve in the background.
func (h *Host) Start(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return NewRegistryError("host already started", nil)
	}
	if err := h.LoadAll(ctx); err != nil {
		h.logger.Warn("Some pieces failed to load", "error", err)
	}
	if h.watcher != nil {
		if err := h.watcher.Start(); err != nil {
			return err
		}
	}
	SafeGo(h.logger, func() {
		if err := h.Serve(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
			h.logger.Error("Dispatch loop exited", "error", err)
		}
	})
	return nil
}

// Close stops accepting events, stops the watcher and marks the host not
// serving. Pieces are left in place.
func (h *Host) Close() error {
	var closeErr error
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.events.Dispose()
		if h.watcher != nil {
			if err := h.watcher.Stop(); err != nil {
				closeErr = err
			}
		}
		h.health.shutdown()
		h.logger.Info("Piece host closed")
	})
	return closeErr
}

func (h *Host) pieceInstalled(current, previous Piece) {
	h.health.pieceInstalled(current)
	if current.Kind() == KindMonitor {
		h.breakers.Remove(current.Name())
	}
	if h.watcher != nil {
		h.watcher.Track(current)
	}
	if previous != nil {
		h.retire(previous)
	}
}

func (h *Host) pieceRemoved(removed Piece) {
	h.health.pieceRemoved(removed)
	if removed.Kind() == KindMonitor {
		h.breakers.Remove(removed.Name())
	}
	if h.watcher != nil {
		h.watcher.Untrack(removed)
	}
	h.retire(removed)
}

// retire closes an orphaned piece that holds resources, when configured to.
func (h *Host) retire(p Piece) {
	if !h.config.TeardownOrphans {
		return
	}
	closer, ok := p.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		h.logger.Warn("Failed to close orphaned piece", "kind", p.Kind().String(), "piece", p.Name(), "error", err)
		return
	}
	h.logger.Debug("Orphaned piece closed", "kind", p.Kind().String(), "piece", p.Name())
}

