// errors.go: structured errors raised by the built-in pieces
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package builtin

import (
	"github.com/agilira/go-errors"
)

// Error codes for the built-in pieces
const (
	ErrCodeInvalidKey        = "BUILTIN_2101"
	ErrCodeKeyNotFound       = "BUILTIN_2102"
	ErrCodeStorageFailure    = "BUILTIN_2103"
	ErrCodeScriptCompile     = "BUILTIN_2201"
	ErrCodeScriptContract    = "BUILTIN_2202"
	ErrCodeScriptExecution   = "BUILTIN_2203"
	ErrCodeUnsupportedDriver = "BUILTIN_2301"
)

func NewInvalidKeyError(key string) *errors.Error {
	return errors.New(ErrCodeInvalidKey, "Invalid storage key").
		WithUserMessage("Keys must be non-empty and cannot contain path separators").
		WithContext("key", key).
		WithSeverity("error")
}

func NewKeyNotFoundError(key string) *errors.Error {
	return errors.New(ErrCodeKeyNotFound, "Key not found").
		WithUserMessage("No document is stored under this key").
		WithContext("key", key).
		WithSeverity("warning")
}

func NewStorageFailureError(op, key string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStorageFailure, "Storage operation failed").
		WithUserMessage("The storage backend rejected the operation").
		WithContext("operation", op).
		WithContext("key", key).
		WithSeverity("error").
		AsRetryable()
}

func NewScriptCompileError(source string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeScriptCompile, "Script compilation failed").
		WithUserMessage("The monitor script has a syntax error").
		WithContext("source", source).
		WithSeverity("error")
}

func NewScriptContractError(source, message string) *errors.Error {
	return errors.New(ErrCodeScriptContract, message).
		WithUserMessage("The monitor script must define a run(event) function").
		WithContext("source", source).
		WithSeverity("error")
}

func NewScriptExecutionError(source string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeScriptExecution, "Script execution failed").
		WithUserMessage("The monitor script raised an error").
		WithContext("source", source).
		WithSeverity("error")
}

func NewUnsupportedDriverError(driver string) *errors.Error {
	return errors.New(ErrCodeUnsupportedDriver, "Unsupported SQL driver").
		WithUserMessage("SQL providers support the sqlite and postgres drivers").
		WithContext("driver", driver).
		WithSeverity("error")
}
