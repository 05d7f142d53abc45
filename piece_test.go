// piece_test.go: tests for piece construction and the per-instance contract
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorDefaults(t *testing.T) {
	m, err := NewMonitor(nil, "monitors", "greeter.yaml", "greeter", Options{})
	require.NoError(t, err)

	assert.True(t, m.Enabled())
	assert.True(t, m.IgnoreBots())
	assert.True(t, m.IgnoreSelf())
	assert.Equal(t, "greeter", m.Name())
	assert.Equal(t, KindMonitor, m.Kind())
	assert.Equal(t, "monitors", m.Dir())
	assert.Equal(t, "greeter.yaml", m.File())
	assert.Equal(t, StateConstructed, m.State())
	assert.False(t, m.LoadedAt().IsZero())
}

func TestMonitorExplicitFalseOverridesDefaults(t *testing.T) {
	m, err := NewMonitor(nil, "monitors", "m.yaml", "m", Options{
		OptionEnabled:    false,
		OptionIgnoreBots: false,
		OptionIgnoreSelf: false,
	})
	require.NoError(t, err)

	assert.False(t, m.Enabled())
	assert.False(t, m.IgnoreBots())
	assert.False(t, m.IgnoreSelf())
}

func TestProviderFields(t *testing.T) {
	p, err := NewProvider(nil, "providers", "json.yaml", "json", Options{
		OptionDescription: "flatfile",
		OptionSQL:         false,
	})
	require.NoError(t, err)

	assert.Equal(t, "flatfile", p.Description())
	assert.False(t, p.SQL())
	assert.True(t, p.Enabled())
	assert.Equal(t, KindProvider, p.Kind())
}

func TestProviderDefaults(t *testing.T) {
	p, err := NewProvider(nil, "providers", "p.yaml", "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "", p.Description())
	assert.False(t, p.SQL())
	assert.True(t, p.Enabled())
}

// A zero that is not a boolean is rejected instead of being read as "unset".
func TestFalsyNonBoolEnabledIsRejected(t *testing.T) {
	_, err := NewMonitor(nil, "monitors", "m.yaml", "m", Options{OptionEnabled: 0})
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeMalformedOption))

	_, err = NewProvider(nil, "providers", "p.yaml", "p", Options{OptionSQL: "no"})
	assert.True(t, HasErrorCode(err, ErrCodeMalformedOption))
}

func TestNewBaseValidatesIdentity(t *testing.T) {
	tests := []struct {
		name       string
		kind       Kind
		dir, file  string
		pieceName  string
		expectCode string
	}{
		{"empty name", KindMonitor, "d", "f.yaml", "", ErrCodeInvalidPieceName},
		{"empty dir", KindMonitor, "", "f.yaml", "n", ErrCodeMissingLocator},
		{"empty file", KindProvider, "d", "", "n", ErrCodeMissingLocator},
		{"unknown kind", Kind("widget"), "d", "f.yaml", "n", ErrCodeUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBase(nil, tt.kind, tt.dir, tt.file, tt.pieceName, nil)
			assert.Nil(t, b)
			assert.True(t, HasErrorCode(err, tt.expectCode), "got %v", err)
		})
	}
}

func TestEnableDisableAreIdempotentAndChain(t *testing.T) {
	m, err := NewMonitor(nil, "monitors", "m.yaml", "m", nil)
	require.NoError(t, err)

	assert.Same(t, m, m.Disable())
	assert.False(t, m.Enabled())
	m.Disable()
	assert.False(t, m.Enabled())

	assert.Same(t, m, m.Enable())
	m.Enable()
	assert.True(t, m.Enabled())

	m.Enable().Disable().Enable()
	assert.True(t, m.Enabled())
}

func TestEnableReturnsOutermostPiece(t *testing.T) {
	factory := &monitorFactory{}
	p, err := factory.construct(nil, "monitors", "m.yaml", "m", nil)
	require.NoError(t, err)
	p.base().bind(p)

	got := p.Disable()
	_, ok := got.(*testMonitor)
	assert.True(t, ok, "Disable must return the concrete piece, got %T", got)
}

func TestDefaultInitAndRunAreNoOps(t *testing.T) {
	m, err := NewMonitor(nil, "monitors", "m.yaml", "m", nil)
	require.NoError(t, err)

	assert.NoError(t, m.Init(context.Background()))
	assert.NoError(t, m.Run(context.Background(), NewEvent("u", "hello")))
	assert.True(t, m.Enabled(), "Init must not change the enabled flag")
}

func TestUnattachedPieceCannotReloadOrUnload(t *testing.T) {
	m, err := NewMonitor(nil, "monitors", "m.yaml", "m", nil)
	require.NoError(t, err)

	assert.False(t, m.Unload())
	_, err = m.Reload(context.Background())
	assert.True(t, HasErrorCode(err, ErrCodeNoOwner))
}

func TestDescribe(t *testing.T) {
	m, err := NewMonitor(nil, "monitors", "m.yaml", "m", Options{OptionIgnoreBots: false})
	require.NoError(t, err)
	info := Describe(m)
	assert.Equal(t, "m", info.Name)
	assert.Equal(t, KindMonitor, info.Kind)
	assert.Equal(t, false, info.Details[OptionIgnoreBots])
	assert.Equal(t, true, info.Details[OptionIgnoreSelf])

	p, err := NewProvider(nil, "providers", "p.yaml", "p", Options{OptionDescription: "kv"})
	require.NoError(t, err)
	info = Describe(p)
	assert.Equal(t, "kv", info.Details[OptionDescription])
	assert.Equal(t, false, info.Details[OptionSQL])
}

func TestKindAndState(t *testing.T) {
	k, err := ParseKind("provider")
	require.NoError(t, err)
	assert.Equal(t, KindProvider, k)

	_, err = ParseKind("widget")
	assert.True(t, HasErrorCode(err, ErrCodeUnknownKind))

	assert.Equal(t, []Kind{KindMonitor, KindProvider}, Kinds())

	text, err := StateOrphaned.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "orphaned", string(text))
	assert.Equal(t, "unknown", State(42).String())
}
