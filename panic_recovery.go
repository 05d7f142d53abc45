// panic_recovery.go: Panic isolation for piece code and background goroutines
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"fmt"
	"runtime"
)

// RecoveryHandler receives a recovered panic value and its stack.
type RecoveryHandler func(recovered interface{}, stack []byte)

// recoveredPanic describes a panic caught by protect.
type recoveredPanic struct {
	value any
	stack []byte
}

func (p *recoveredPanic) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// withStackRecover returns a function to defer that logs any panic together
// with its stack trace.
//
//	go func() {
//	    defer withStackRecover(logger)()
//	    ...
//	}()
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", string(captureStack()))
		}
	}
}

// withCustomRecoveryHandler is withStackRecover for callers that want the
// panic delivered somewhere other than the log.
func withCustomRecoveryHandler(handler RecoveryHandler) func() {
	return func() {
		if r := recover(); r != nil {
			handler(r, captureStack())
		}
	}
}

// SafeGo runs fn in a new goroutine; a panic is logged instead of crashing
// the process.
func SafeGo(logger Logger, fn func()) {
	go func() {
		defer withStackRecover(logger)()
		fn()
	}()
}

// SafeGoWithHandler runs fn in a new goroutine and passes any panic to handler.
func SafeGoWithHandler(handler RecoveryHandler, fn func()) {
	go func() {
		defer withCustomRecoveryHandler(handler)()
		fn()
	}()
}

// protect calls fn and converts a panic into a *recoveredPanic.
// The error returned by fn is passed through untouched.
func protect(fn func() error) (rec *recoveredPanic, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = &recoveredPanic{value: r, stack: captureStack()}
		}
	}()
	err = fn()
	return nil, err
}

func captureStack() []byte {
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, false)
	return buf[:n]
}
