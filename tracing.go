// tracing.go: OpenTelemetry spans around lifecycle operations
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/agilira/go-pieces"

// DefaultTracer returns a tracer that records nothing.
func DefaultTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(tracerName)
}

func startSpan(ctx context.Context, tracer trace.Tracer, op string, kind Kind, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "piece."+op, trace.WithAttributes(
		attribute.String("piece.kind", kind.String()),
		attribute.String("piece.name", name),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
