// health.go: HTTP and gRPC health reporting for the host
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// providerCheckTimeout bounds the readiness probe of all providers together.
const providerCheckTimeout = 5 * time.Second

// Health exposes liveness and readiness over HTTP (/live, /ready) and a
// gRPC health server with one service per current piece, named
// "<kind>/<name>". The empty service name reflects the host as a whole.
type Health struct {
	host    *Host
	handler healthcheck.Handler
	grpc    *health.Server
}

func newHealth(h *Host) *Health {
	hc := &Health{
		host:    h,
		handler: healthcheck.NewHandler(),
		grpc:    health.NewServer(),
	}
	hc.handler.AddLivenessCheck("dispatch-queue", hc.checkQueue)
	hc.handler.AddReadinessCheck("pieces-loaded", hc.checkLoaded)
	hc.handler.AddReadinessCheck("providers", healthcheck.Timeout(hc.checkProviders, providerCheckTimeout))
	hc.grpc.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return hc
}

// Handler serves /live and /ready.
func (hc *Health) Handler() http.Handler { return hc.handler }

// GRPCServer returns the gRPC health service for registration with
// healthpb.RegisterHealthServer.
func (hc *Health) GRPCServer() *health.Server { return hc.grpc }

// ServiceName is the gRPC health service name for a piece.
func ServiceName(kind Kind, name string) string {
	return kind.String() + "/" + name
}

func (hc *Health) checkQueue() error {
	if hc.host.closed.Load() {
		return stderrors.New("host is closed")
	}
	return nil
}

func (hc *Health) checkLoaded() error {
	if !hc.host.loaded.Load() {
		return stderrors.New("pieces have not been loaded yet")
	}
	return nil
}

// checkProviders calls Health on every current provider that reports it.
func (hc *Health) checkProviders() error {
	store := hc.host.stores[KindProvider]
	ctx, cancel := context.WithTimeout(context.Background(), providerCheckTimeout)
	defer cancel()

	var errs []error
	for _, p := range store.Pieces() {
		reporter, ok := p.(HealthReporter)
		if !ok {
			continue
		}
		if err := reporter.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", p.Name(), err))
		}
	}
	return stderrors.Join(errs...)
}

func (hc *Health) pieceInstalled(p Piece) {
	hc.grpc.SetServingStatus(ServiceName(p.Kind(), p.Name()), healthpb.HealthCheckResponse_SERVING)
}

func (hc *Health) pieceRemoved(p Piece) {
	hc.grpc.SetServingStatus(ServiceName(p.Kind(), p.Name()), healthpb.HealthCheckResponse_NOT_SERVING)
}

func (hc *Health) shutdown() {
	hc.grpc.Shutdown()
}
