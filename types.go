// types.go: Common data types shared by pieces, registries and the host
//
// This file holds the closed set of piece kinds, the per-instance lifecycle
// state and the read-only snapshot used by the admin API and tests.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"time"
)

// Kind is the closed tag naming which registry a piece belongs to.
type Kind string

const (
	KindMonitor  Kind = "monitor"
	KindProvider Kind = "provider"
)

// Kinds returns every kind in dispatch order.
func Kinds() []Kind {
	return []Kind{KindMonitor, KindProvider}
}

// ParseKind converts a string to a Kind, rejecting anything outside the set.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", NewUnknownKindError(s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindMonitor || k == KindProvider
}

func (k Kind) String() string {
	return string(k)
}

// State is the lifecycle state of one piece instance.
//
// An instance moves constructed -> ready -> orphaned, or constructed ->
// failed when Init returns an error. Enabled/disabled is tracked separately.
type State int32

const (
	StateConstructed State = iota
	StateReady
	StateFailed
	StateOrphaned
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateOrphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear by name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Info is a point-in-time snapshot of a piece.
type Info struct {
	Name     string         `json:"name" yaml:"name"`
	Kind     Kind           `json:"kind" yaml:"kind"`
	Dir      string         `json:"dir" yaml:"dir"`
	File     string         `json:"file" yaml:"file"`
	Enabled  bool           `json:"enabled" yaml:"enabled"`
	State    State          `json:"state" yaml:"state"`
	LoadedAt time.Time      `json:"loaded_at" yaml:"loaded_at"`
	Details  map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// Describe builds an Info for p, including the kind-specific settings of
// monitors and providers.
func Describe(p Piece) Info {
	info := Info{
		Name:     p.Name(),
		Kind:     p.Kind(),
		Dir:      p.Dir(),
		File:     p.File(),
		Enabled:  p.Enabled(),
		State:    p.State(),
		LoadedAt: p.LoadedAt(),
	}
	switch v := p.(type) {
	case Observer:
		info.Details = map[string]any{
			OptionIgnoreBots: v.IgnoreBots(),
			OptionIgnoreSelf: v.IgnoreSelf(),
		}
	case Storage:
		info.Details = map[string]any{
			OptionDescription: v.Description(),
			OptionSQL:         v.SQL(),
		}
	}
	return info
}
