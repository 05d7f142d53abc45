// piece.go: Core piece contract and the shared Base every piece embeds
//
// A piece is an independently authored unit of behavior with a stable
// identity (name, kind, dir, file), an enabled flag and a lifecycle driven
// by the registry that owns it. Concrete pieces embed *Monitor or *Provider,
// which in turn embed *Base; the Piece interface is sealed through an
// unexported method promoted from Base.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	timecache "github.com/agilira/go-timecache"
)

// Piece is the lifecycle contract shared by every piece kind.
//
// Only the Host calls Run, and only after the owning registry has initialized
// the instance. Enable and Disable never fail and return the piece itself so
// calls can be chained. Reload and Unload round-trip through the owning
// registry, which is looked up on every call.
type Piece interface {
	Name() string
	Kind() Kind
	Dir() string
	File() string
	Enabled() bool
	State() State
	LoadedAt() time.Time

	Enable() Piece
	Disable() Piece

	// Init runs once per instance before any event is delivered.
	Init(ctx context.Context) error

	// Run handles one event. Returned errors are isolated to this piece and event.
	Run(ctx context.Context, event *Event) error

	// Reload replaces this piece with a freshly loaded and initialized
	// instance built from the same dir and file. On failure the current
	// registry entry is left untouched.
	Reload(ctx context.Context) (Piece, error)

	// Unload removes this exact instance from its registry and reports
	// whether anything was removed.
	Unload() bool

	base() *Base
}

// Owner is the non-owning back-reference a piece keeps to its host.
type Owner interface {
	Registry(kind Kind) (Registry, error)
}

// Registry is what a piece needs from the store that owns it.
type Registry interface {
	Kind() Kind

	// Load resolves dir/file and constructs a piece. The result is not
	// reachable until Install.
	Load(ctx context.Context, dir, file string) (Piece, error)

	// Initialize calls Init on a freshly loaded piece and marks it ready or failed.
	Initialize(ctx context.Context, p Piece) error

	// Install makes a ready piece current for its name and returns the
	// instance it replaced, if any.
	Install(p Piece) (Piece, error)

	// Delete removes p if and only if p is the current instance for its name.
	Delete(p Piece) bool
}

// Base carries the identity and lifecycle state common to all pieces.
type Base struct {
	owner    Owner
	dir      string
	file     string
	name     string
	kind     Kind
	loadedAt time.Time

	enabled atomic.Bool
	state   atomic.Int32
	initRun atomic.Bool

	// self is the outermost concrete value, returned from Enable/Disable.
	self Piece
}

// NewBase validates identity and reads the shared "enabled" option.
// Concrete kinds call it from their own constructors.
func NewBase(owner Owner, kind Kind, dir, file, name string, opts Options) (*Base, error) {
	if !kind.Valid() {
		return nil, NewUnknownKindError(string(kind))
	}
	if name == "" {
		return nil, NewInvalidPieceNameError(name)
	}
	if dir == "" || file == "" {
		return nil, NewMissingLocatorError(dir, file)
	}
	enabled, err := opts.Bool(OptionEnabled, true)
	if err != nil {
		return nil, err
	}

	b := &Base{
		owner:    owner,
		dir:      dir,
		file:     file,
		name:     name,
		kind:     kind,
		loadedAt: timecache.CachedTime(),
	}
	b.enabled.Store(enabled)
	b.state.Store(int32(StateConstructed))
	return b, nil
}

func (b *Base) Name() string        { return b.name }
func (b *Base) Kind() Kind          { return b.kind }
func (b *Base) Dir() string         { return b.dir }
func (b *Base) File() string        { return b.file }
func (b *Base) LoadedAt() time.Time { return b.loadedAt }
func (b *Base) Enabled() bool       { return b.enabled.Load() }
func (b *Base) State() State        { return State(b.state.Load()) }

// Owner returns the host this piece was constructed for, or nil.
func (b *Base) Owner() Owner { return b.owner }

// Enable marks the piece as eligible for dispatch.
func (b *Base) Enable() Piece {
	b.enabled.Store(true)
	return b.outer()
}

// Disable makes the host skip this piece. Registry membership is unchanged.
func (b *Base) Disable() Piece {
	b.enabled.Store(false)
	return b.outer()
}

// Init is a no-op by default.
func (b *Base) Init(ctx context.Context) error { return nil }

// Run is a no-op by default.
func (b *Base) Run(ctx context.Context, event *Event) error { return nil }

func (b *Base) Reload(ctx context.Context) (Piece, error) {
	reg, err := b.registry()
	if err != nil {
		return nil, err
	}
	return reloadPiece(ctx, reg, b.outer())
}

func (b *Base) Unload() bool {
	reg, err := b.registry()
	if err != nil {
		return false
	}
	return reg.Delete(b.outer())
}

func (b *Base) String() string {
	return fmt.Sprintf("%s:%s", b.kind, b.name)
}

func (b *Base) base() *Base { return b }

func (b *Base) registry() (Registry, error) {
	if b.owner == nil {
		return nil, NewNoOwnerError(b.name)
	}
	return b.owner.Registry(b.kind)
}

func (b *Base) outer() Piece {
	if b.self != nil {
		return b.self
	}
	return b
}

// bind records the outermost value so chained calls return it.
func (b *Base) bind(p Piece) {
	b.self = p
}

// beginInit claims the single Init slot for this instance.
func (b *Base) beginInit() bool {
	return b.initRun.CompareAndSwap(false, true)
}

func (b *Base) setState(s State) {
	b.state.Store(int32(s))
}

// reloadPiece loads a replacement for old, checks it kept its identity,
// initializes it and installs it. Nothing is committed until every step
// succeeds.
func reloadPiece(ctx context.Context, reg Registry, old Piece) (Piece, error) {
	fresh, err := reg.Load(ctx, old.Dir(), old.File())
	if err != nil {
		return nil, err
	}
	if fresh.Name() != old.Name() || fresh.Kind() != old.Kind() {
		return nil, NewIdentityMismatchError(
			fmt.Sprintf("%s:%s", old.Kind(), old.Name()),
			fmt.Sprintf("%s:%s", fresh.Kind(), fresh.Name()))
	}
	if err := reg.Initialize(ctx, fresh); err != nil {
		return nil, err
	}
	if _, err := reg.Install(fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}
