// register.go: Registration of the built-in constructors with a host
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package builtin ships ready-made pieces: SQL, Redis and file providers,
// and JavaScript monitors. Register makes them available to manifests by
// constructor name.
package builtin

import (
	gopieces "github.com/agilira/go-pieces"
)

// Constructor names used in manifests.
const (
	ConstructorScript  = "script"
	ConstructorSQL     = "sql"
	ConstructorRedis   = "redis"
	ConstructorFile    = "file"
	ConstructorMonitor = "monitor"
	ConstructorStorage = "provider"
)

type registration struct {
	kind gopieces.Kind
	name string
	ctor gopieces.Constructor
}

var registrations = []registration{
	{gopieces.KindMonitor, ConstructorMonitor, gopieces.MonitorConstructor},
	{gopieces.KindMonitor, ConstructorScript, NewScriptMonitor},
	{gopieces.KindProvider, ConstructorStorage, gopieces.ProviderConstructor},
	{gopieces.KindProvider, ConstructorSQL, NewSQLProvider},
	{gopieces.KindProvider, ConstructorRedis, NewRedisProvider},
	{gopieces.KindProvider, ConstructorFile, NewFileProvider},
}

// Register adds every built-in constructor to h.
func Register(h *gopieces.Host) error {
	for _, r := range registrations {
		if err := h.RegisterConstructor(r.kind, r.name, r.ctor); err != nil {
			return err
		}
	}
	h.Logger().Debug("Built-in constructors registered", "count", len(registrations))
	return nil
}
