// monitor.go: Event-observing piece kind
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

// Observer is a piece that receives dispatched events.
type Observer interface {
	Piece
	IgnoreBots() bool
	IgnoreSelf() bool
}

// Monitor is the base for event observers. Concrete monitors embed *Monitor
// and override Run.
//
// The ignore flags are read by the host before each Run; a monitor never has
// to check them itself.
type Monitor struct {
	*Base
	ignoreBots bool
	ignoreSelf bool
}

// NewMonitor builds a monitor from its options.
//
// Recognized options: "enabled" (default true), "ignoreBots" (default true),
// "ignoreSelf" (default true).
func NewMonitor(owner Owner, dir, file, name string, opts Options) (*Monitor, error) {
	base, err := NewBase(owner, KindMonitor, dir, file, name, opts)
	if err != nil {
		return nil, err
	}
	ignoreBots, err := opts.Bool(OptionIgnoreBots, true)
	if err != nil {
		return nil, err
	}
	ignoreSelf, err := opts.Bool(OptionIgnoreSelf, true)
	if err != nil {
		return nil, err
	}

	m := &Monitor{Base: base, ignoreBots: ignoreBots, ignoreSelf: ignoreSelf}
	m.bind(m)
	return m, nil
}

// IgnoreBots reports whether events authored by bots are skipped.
func (m *Monitor) IgnoreBots() bool { return m.ignoreBots }

// IgnoreSelf reports whether events authored by the host itself are skipped.
func (m *Monitor) IgnoreSelf() bool { return m.ignoreSelf }

// MonitorConstructor adapts NewMonitor to a Constructor, for manifests that
// only need the default no-op behavior.
func MonitorConstructor(owner Owner, dir, file, name string, opts Options) (Piece, error) {
	p, err := NewMonitor(owner, dir, file, name, opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}
