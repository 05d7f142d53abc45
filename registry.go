// registry.go: Keyed store of the pieces of one kind
//
// A Store owns the name -> instance map for a single kind. It is the only
// component that mutates that map: Install swaps in a ready instance and
// Delete removes an exact instance. Load and Initialize build and prepare a
// candidate without touching the map, which is what makes reload
// all-or-nothing.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Constructor builds a piece from a resolved manifest. Implementations
// usually call NewMonitor or NewProvider and embed the result.
type Constructor func(owner Owner, dir, file, name string, opts Options) (Piece, error)

// StoreConfig configures a Store.
type StoreConfig struct {
	Kind        Kind
	Owner       Owner
	Loader      Loader
	Logger      Logger
	Metrics     *Metrics
	Tracer      trace.Tracer
	InitTimeout time.Duration

	// OnInstall runs after a piece becomes current. previous is nil on a
	// fresh load.
	OnInstall func(current, previous Piece)

	// OnRemove runs after a piece is unloaded.
	OnRemove func(removed Piece)
}

// Store is the Registry implementation used by the Host.
type Store struct {
	kind        Kind
	owner       Owner
	loader      Loader
	logger      Logger
	metrics     *Metrics
	tracer      trace.Tracer
	initTimeout time.Duration
	onInstall   func(current, previous Piece)
	onRemove    func(removed Piece)

	ctorMu       sync.RWMutex
	constructors map[string]Constructor

	mu      sync.RWMutex
	entries map[string]Piece
	order   []string
}

// NewStore creates an empty store for cfg.Kind.
func NewStore(cfg StoreConfig) (*Store, error) {
	if !cfg.Kind.Valid() {
		return nil, NewUnknownKindError(string(cfg.Kind))
	}
	if cfg.Loader == nil {
		cfg.Loader = NewManifestLoader()
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = DefaultTracer()
	}

	return &Store{
		kind:         cfg.Kind,
		owner:        cfg.Owner,
		loader:       cfg.Loader,
		logger:       cfg.Logger.With("kind", cfg.Kind.String()),
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		initTimeout:  cfg.InitTimeout,
		onInstall:    cfg.OnInstall,
		onRemove:     cfg.OnRemove,
		constructors: make(map[string]Constructor),
		entries:      make(map[string]Piece),
	}, nil
}

// Kind returns the kind of piece this store holds.
func (s *Store) Kind() Kind { return s.kind }

// RegisterConstructor makes ctor available to manifests under name.
func (s *Store) RegisterConstructor(name string, ctor Constructor) error {
	if name == "" {
		return NewRegistryError("constructor name cannot be empty", nil)
	}
	if ctor == nil {
		return NewRegistryError(fmt.Sprintf("constructor %s is nil", name), nil)
	}

	s.ctorMu.Lock()
	defer s.ctorMu.Unlock()
	if _, exists := s.constructors[name]; exists {
		return NewDuplicateConstructorError(s.kind, name)
	}
	s.constructors[name] = ctor

	s.logger.Debug("Constructor registered", "constructor", name)
	return nil
}

// Constructors lists registered constructor names.
func (s *Store) Constructors() []string {
	s.ctorMu.RLock()
	defer s.ctorMu.RUnlock()
	names := make([]string, 0, len(s.constructors))
	for name := range s.constructors {
		names = append(names, name)
	}
	return names
}

// Load resolves dir/file and constructs the piece it describes. The piece
// is not reachable until it is initialized and installed.
func (s *Store) Load(ctx context.Context, dir, file string) (Piece, error) {
	ctx, span := startSpan(ctx, s.tracer, OpLoad, s.kind, file)
	p, err := s.load(ctx, dir, file)
	endSpan(span, err)
	s.metrics.RecordLifecycle(s.kind, OpLoad, err)
	if err != nil {
		s.logger.Warn("Piece load failed", "dir", dir, "file", file, "error", err)
		return nil, err
	}
	return p, nil
}

func (s *Store) load(ctx context.Context, dir, file string) (Piece, error) {
	manifest, err := s.loader.Resolve(ctx, dir, file)
	if err != nil {
		return nil, err
	}
	if manifest.Kind != "" && manifest.Kind != s.kind {
		return nil, NewKindMismatchError(s.kind, manifest.Kind)
	}

	s.ctorMu.RLock()
	ctor, ok := s.constructors[manifest.Constructor]
	s.ctorMu.RUnlock()
	if !ok {
		return nil, NewUnknownConstructorError(s.kind, manifest.Constructor)
	}

	var p Piece
	rec, err := protect(func() error {
		var cerr error
		p, cerr = ctor(s.owner, dir, file, manifest.Name, manifest.Options.Clone())
		return cerr
	})
	if rec != nil {
		return nil, NewConstructionError(manifest.Name, rec)
	}
	if err != nil {
		if ErrorCode(err) != "" {
			return nil, err
		}
		return nil, NewConstructionError(manifest.Name, err)
	}
	if p == nil {
		return nil, NewConstructionError(manifest.Name, nil)
	}
	if p.Kind() != s.kind {
		return nil, NewKindMismatchError(s.kind, p.Kind())
	}
	if p.Name() != manifest.Name {
		return nil, NewIdentityMismatchError(manifest.Name, p.Name())
	}

	p.base().bind(p)
	return p, nil
}

// Initialize runs Init on a freshly loaded piece, at most once per
// instance, bounded by the store's init timeout. On success the piece is
// ready; on failure it is marked failed and can never be installed.
func (s *Store) Initialize(ctx context.Context, p Piece) error {
	b := p.base()
	if !b.beginInit() {
		return NewAlreadyInitializedError(p.Name())
	}

	if s.initTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.initTimeout)
		defer cancel()
	}
	logger := s.logger.With("piece", p.Name())
	ctx = ContextWithLogger(ctx, logger)
	ctx, span := startSpan(ctx, s.tracer, OpInit, s.kind, p.Name())

	start := time.Now()
	rec, err := protect(func() error { return p.Init(ctx) })
	if rec != nil {
		logger.Error("Piece panicked during init", "panic", rec.value, "stack", string(rec.stack))
		err = rec
	}
	if err != nil {
		err = NewInitFailedError(p.Name(), err)
		b.setState(StateFailed)
	} else {
		b.setState(StateReady)
	}

	endSpan(span, err)
	s.metrics.RecordInit(s.kind, time.Since(start), err)
	s.metrics.RecordLifecycle(s.kind, OpInit, err)
	if err != nil {
		logger.Error("Piece initialization failed", "error", err)
		return err
	}
	logger.Debug("Piece initialized", "duration", time.Since(start))
	return nil
}

// Install makes p current for its name, replacing and orphaning any
// previous instance. Registration order is kept across replacements.
func (s *Store) Install(p Piece) (Piece, error) {
	return s.install(p, false)
}

func (s *Store) install(p Piece, fresh bool) (Piece, error) {
	if p == nil {
		return nil, NewRegistryError("cannot install a nil piece", nil)
	}
	if p.Kind() != s.kind {
		return nil, NewKindMismatchError(s.kind, p.Kind())
	}
	if p.State() != StateReady {
		return nil, NewNotReadyError(p.Name(), p.State())
	}

	s.mu.Lock()
	previous, existed := s.entries[p.Name()]
	if existed && fresh {
		s.mu.Unlock()
		return nil, NewDuplicatePieceError(s.kind, p.Name())
	}
	if existed && previous.base() == p.base() {
		s.mu.Unlock()
		return nil, nil
	}
	s.entries[p.Name()] = p
	if !existed {
		s.order = append(s.order, p.Name())
	}
	count := len(s.entries)
	s.mu.Unlock()

	if existed {
		previous.base().setState(StateOrphaned)
	}
	s.metrics.SetPieces(s.kind, count)
	s.metrics.RecordLifecycle(s.kind, OpInstall, nil)

	if existed {
		s.logger.Info("Piece replaced", "piece", p.Name(), "file", p.File())
	} else {
		s.logger.Info("Piece installed successfully", "piece", p.Name(), "file", p.File())
	}
	if s.onInstall != nil {
		s.onInstall(p, previous)
	}
	return previous, nil
}

// Delete removes p if it is the current instance for its name. A stale or
// unknown instance yields false.
func (s *Store) Delete(p Piece) bool {
	if p == nil {
		return false
	}

	s.mu.Lock()
	current, ok := s.entries[p.Name()]
	if !ok || current.base() != p.base() {
		s.mu.Unlock()
		s.metrics.RecordLifecycle(s.kind, OpUnload, NewPieceNotFoundError(s.kind, p.Name()))
		s.logger.Debug("Unload ignored, piece is not current", "piece", p.Name())
		return false
	}
	delete(s.entries, p.Name())
	for i, name := range s.order {
		if name == p.Name() {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	count := len(s.entries)
	s.mu.Unlock()

	p.base().setState(StateOrphaned)
	s.metrics.SetPieces(s.kind, count)
	s.metrics.RecordLifecycle(s.kind, OpUnload, nil)
	s.logger.Info("Piece unloaded", "piece", p.Name())
	if s.onRemove != nil {
		s.onRemove(p)
	}
	return true
}

// Add performs a fresh load: load, initialize, then install. A name that is
// already current is rejected before Init runs.
func (s *Store) Add(ctx context.Context, dir, file string) (Piece, error) {
	p, err := s.Load(ctx, dir, file)
	if err != nil {
		return nil, err
	}
	if _, exists := s.Get(p.Name()); exists {
		return nil, NewDuplicatePieceError(s.kind, p.Name())
	}
	if err := s.Initialize(ctx, p); err != nil {
		return nil, err
	}
	if _, err := s.install(p, true); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload reloads the named piece through the piece's own Reload.
func (s *Store) Reload(ctx context.Context, name string) (Piece, error) {
	p, ok := s.Get(name)
	if !ok {
		return nil, NewPieceNotFoundError(s.kind, name)
	}
	ctx, span := startSpan(ctx, s.tracer, OpReload, s.kind, name)
	fresh, err := p.Reload(ctx)
	endSpan(span, err)
	s.metrics.RecordLifecycle(s.kind, OpReload, err)
	if err != nil {
		s.logger.Warn("Piece reload failed, keeping current instance", "piece", name, "error", err)
		return nil, err
	}
	s.logger.Info("Piece reloaded successfully", "piece", name)
	return fresh, nil
}

// ReloadAll reloads every current piece in order. Failures are collected;
// a failed piece keeps its current instance.
func (s *Store) ReloadAll(ctx context.Context) error {
	var errs []error
	for _, name := range s.Names() {
		if _, err := s.Reload(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns the current instance for name.
func (s *Store) Get(name string) (Piece, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.entries[name]
	return p, ok
}

// Pieces returns the current instances in registration order.
func (s *Store) Pieces() []Piece {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Piece, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name])
	}
	return out
}

// Names returns the current names in registration order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of current pieces.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IsCurrent reports whether p is the instance currently registered under its name.
func (s *Store) IsCurrent(p Piece) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	current, ok := s.entries[p.Name()]
	return ok && current.base() == p.base()
}
