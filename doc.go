// Package gopieces is the extensibility core of a modular runtime: units of
// behavior called pieces are declared in manifests, registered per kind,
// enabled or disabled, and hot-swapped while the host keeps running.
//
// Two kinds ship with the package:
//   - Monitor: observes dispatched events, with ignoreBots/ignoreSelf filters
//   - Provider: fronts a storage backend and connects in Init
//
// Key Features:
//   - One registry (Store) per kind with atomic replace-on-reload
//   - Reload is all-or-nothing: a failed load or Init keeps the old instance
//   - Serialized execution of piece code with panic isolation per piece
//   - Manifests in YAML, JSON, TOML or HCL read through viant/afs
//   - Hot reload of changed manifests via argus
//   - Prometheus metrics, OpenTelemetry spans, HTTP and gRPC health
//
// Basic Usage:
//
//	type Greeter struct{ *gopieces.Monitor }
//
//	func (g *Greeter) Run(ctx context.Context, e *gopieces.Event) error {
//		gopieces.LoggerFromContext(ctx).Info("hello", "author", e.AuthorID)
//		return nil
//	}
//
//	host, _ := gopieces.NewHost(gopieces.DefaultHostConfig())
//	_ = host.RegisterConstructor(gopieces.KindMonitor, "greeter",
//		func(o gopieces.Owner, dir, file, name string, opts gopieces.Options) (gopieces.Piece, error) {
//			m, err := gopieces.NewMonitor(o, dir, file, name, opts)
//			if err != nil {
//				return nil, err
//			}
//			return &Greeter{Monitor: m}, nil
//		})
//
//	greeter, err := host.Add(ctx, gopieces.KindMonitor, "./monitors", "greeter.yaml")
//	host.Dispatch(ctx, gopieces.NewEvent("user-1", "hi"))
//	greeter.Disable()
//	greeter, err = greeter.Reload(ctx)
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package gopieces
