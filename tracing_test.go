// tracing_test.go: tests for lifecycle and dispatch spans
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
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanNames(spans []sdktrace.ReadOnlySpan) []string {
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name())
	}
	return names
}

func TestLifecycleSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	th := newTestHost(t, HostConfig{}, WithTracer(provider.Tracer("test")))
	th.addMonitor(t, "greeter", nil)
	th.loader.put("monitors", "broken.yaml", Manifest{Constructor: "test", Options: Options{"fail_init": true}})
	_, err := th.Add(context.Background(), KindMonitor, "monitors", "broken.yaml")
	require.Error(t, err)

	th.Dispatch(context.Background(), NewEvent("user-1", "hi"))

	names := spanNames(recorder.Ended())
	assert.Contains(t, names, "piece.load")
	assert.Contains(t, names, "piece.init")
	assert.Contains(t, names, "piece.dispatch")

	var failed int
	for _, s := range recorder.Ended() {
		if s.Name() == "piece.init" && s.Status().Code == codes.Error {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestDefaultTracerRecordsNothing(t *testing.T) {
	_, span := startSpan(context.Background(), DefaultTracer(), OpLoad, KindMonitor, "greeter")
	assert.False(t, span.IsRecording())
	endSpan(span, nil)
}
