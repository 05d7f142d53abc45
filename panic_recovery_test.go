// panic_recovery_test.go: tests for panic isolation helpers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestProtect(t *testing.T) {
	rec, err := protect(func() error { return nil })
	if rec != nil || err != nil {
		t.Fatalf("expected clean call, got rec=%v err=%v", rec, err)
	}

	want := errors.New("plain failure")
	rec, err = protect(func() error { return want })
	if rec != nil || err != want {
		t.Fatalf("expected error to pass through, got rec=%v err=%v", rec, err)
	}

	rec, err = protect(func() error { panic("boom") })
	if err != nil {
		t.Fatalf("expected nil error after panic, got %v", err)
	}
	if rec == nil {
		t.Fatal("expected panic to be recovered")
	}
	if rec.Error() != "panic: boom" {
		t.Errorf("unexpected message %q", rec.Error())
	}
	if len(rec.stack) == 0 {
		t.Error("expected a captured stack")
	}
}

func TestSafeGoLogsPanic(t *testing.T) {
	logger := NewTestLogger()
	done := make(chan struct{})

	SafeGo(logger, func() {
		defer close(done)
		panic("background failure")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}

	deadline := time.Now().Add(time.Second)
	for !logger.HasMessage("ERROR", "Panic recovered in goroutine") {
		if time.Now().After(deadline) {
			t.Fatal("panic was not logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSafeGoWithHandler(t *testing.T) {
	type recovered struct {
		value any
		stack []byte
	}
	got := make(chan recovered, 1)

	SafeGoWithHandler(func(r interface{}, stack []byte) {
		got <- recovered{value: r, stack: stack}
	}, func() {
		panic("handled")
	})

	select {
	case r := <-got:
		if r.value != "handled" {
			t.Errorf("unexpected panic value %v", r.value)
		}
		if !strings.Contains(string(r.stack), "goroutine") {
			t.Error("expected a goroutine stack")
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}
}
