// provider.go: Storage-backend piece kind
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import "context"

// Storage is a piece that fronts a data store.
type Storage interface {
	Piece
	Description() string
	SQL() bool
}

// HealthReporter is implemented by providers that can check their backend.
// The host's readiness probe calls it for every current provider.
type HealthReporter interface {
	Health(ctx context.Context) error
}

// Provider is the base for storage backends. Concrete providers embed
// *Provider and connect in Init; a failed Init means the provider never
// becomes available.
type Provider struct {
	*Base
	description string
	sql         bool
}

// NewProvider builds a provider from its options.
//
// Recognized options: "enabled" (default true), "description" (default ""),
// "sql" (default false).
func NewProvider(owner Owner, dir, file, name string, opts Options) (*Provider, error) {
	base, err := NewBase(owner, KindProvider, dir, file, name, opts)
	if err != nil {
		return nil, err
	}
	description, err := opts.String(OptionDescription, "")
	if err != nil {
		return nil, err
	}
	sql, err := opts.Bool(OptionSQL, false)
	if err != nil {
		return nil, err
	}

	p := &Provider{Base: base, description: description, sql: sql}
	p.bind(p)
	return p, nil
}

// Description is free-form text supplied by the author.
func (p *Provider) Description() string { return p.description }

// SQL reports whether the backend speaks SQL.
func (p *Provider) SQL() bool { return p.sql }

// ProviderConstructor adapts NewProvider to a Constructor.
func ProviderConstructor(owner Owner, dir, file, name string, opts Options) (Piece, error) {
	p, err := NewProvider(owner, dir, file, name, opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}
