// errors.go: structured error definitions for the go-pieces runtime
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	stderrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for the go-pieces runtime
const (
	// Construction errors (1000-1099)
	ErrCodeInvalidPieceName   = "PIECE_1001"
	ErrCodeMissingLocator     = "PIECE_1002"
	ErrCodeMalformedOption    = "PIECE_1003"
	ErrCodeMissingOption      = "PIECE_1004"
	ErrCodeConstructionFailed = "PIECE_1005"
	ErrCodeIdentityMismatch   = "PIECE_1006"

	// Initialization errors (1200-1299)
	ErrCodeInitFailed         = "PIECE_1201"
	ErrCodeAlreadyInitialized = "PIECE_1202"
	ErrCodeNotReady           = "PIECE_1203"
	ErrCodeProviderConnection = "PIECE_1204"
	ErrCodeNoOwner            = "PIECE_1205"

	// Resolution errors (1300-1399)
	ErrCodeManifestNotFound    = "REGISTRY_1301"
	ErrCodeManifestRead        = "REGISTRY_1302"
	ErrCodeManifestParse       = "REGISTRY_1303"
	ErrCodeUnsupportedManifest = "REGISTRY_1304"
	ErrCodeUnknownConstructor  = "REGISTRY_1305"
	ErrCodeKindMismatch        = "REGISTRY_1306"

	// Dispatch errors (1400-1499)
	ErrCodeRunFailed   = "DISPATCH_1401"
	ErrCodeRunPanic    = "DISPATCH_1402"
	ErrCodeQueueClosed = "DISPATCH_1403"

	// Configuration errors (1700-1799)
	ErrCodeConfigNotFound        = "CONFIG_1701"
	ErrCodeConfigParseError      = "CONFIG_1702"
	ErrCodeConfigValidationError = "CONFIG_1703"
	ErrCodeConfigWatcherError    = "CONFIG_1704"

	// Registry errors (1900-1999)
	ErrCodeRegistryError        = "REGISTRY_1901"
	ErrCodeDuplicatePiece       = "REGISTRY_1902"
	ErrCodePieceNotFound        = "REGISTRY_1903"
	ErrCodeUnknownKind          = "REGISTRY_1904"
	ErrCodeDuplicateConstructor = "REGISTRY_1905"
)

// Construction error constructors

func NewInvalidPieceNameError(name string) *errors.Error {
	return errors.New(ErrCodeInvalidPieceName, "Invalid piece name").
		WithUserMessage("Piece name is required and cannot be empty").
		WithContext("provided_name", name).
		WithSeverity("error")
}

func NewMissingLocatorError(dir, file string) *errors.Error {
	return errors.New(ErrCodeMissingLocator, "Missing piece locator").
		WithUserMessage("Piece directory and file are both required").
		WithContext("dir", dir).
		WithContext("file", file).
		WithSeverity("error")
}

func NewMalformedOptionError(key string, value any, expected string) *errors.Error {
	return errors.New(ErrCodeMalformedOption, "Malformed piece option").
		WithUserMessage("A piece option has the wrong type").
		WithContext("option", key).
		WithContext("value", value).
		WithContext("expected", expected).
		WithSeverity("error")
}

func NewMissingOptionError(key string) *errors.Error {
	return errors.New(ErrCodeMissingOption, "Missing piece option").
		WithUserMessage("A required piece option was not provided").
		WithContext("option", key).
		WithSeverity("error")
}

func NewConstructionError(name string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeConstructionFailed, "Piece construction failed").
			WithUserMessage("The piece could not be constructed").
			WithContext("piece", name).
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeConstructionFailed, "Piece construction failed").
		WithUserMessage("The piece could not be constructed").
		WithContext("piece", name).
		WithSeverity("error")
}

func NewIdentityMismatchError(want, got string) *errors.Error {
	return errors.New(ErrCodeIdentityMismatch, "Reloaded piece changed identity").
		WithUserMessage("A reload must produce a piece with the same name and kind").
		WithContext("expected", want).
		WithContext("actual", got).
		WithSeverity("error")
}

// Initialization error constructors

func NewInitFailedError(name string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeInitFailed, "Piece initialization failed").
			WithUserMessage("The piece failed to initialize").
			WithContext("piece", name).
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeInitFailed, "Piece initialization failed").
		WithUserMessage("The piece failed to initialize").
		WithContext("piece", name).
		WithSeverity("error")
}

func NewAlreadyInitializedError(name string) *errors.Error {
	return errors.New(ErrCodeAlreadyInitialized, "Piece already initialized").
		WithUserMessage("Init may only run once per piece instance").
		WithContext("piece", name).
		WithSeverity("warning")
}

func NewNotReadyError(name string, state State) *errors.Error {
	return errors.New(ErrCodeNotReady, "Piece not ready").
		WithUserMessage("The piece must be initialized before it can be installed").
		WithContext("piece", name).
		WithContext("state", state.String()).
		WithSeverity("error")
}

func NewProviderConnectionError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeProviderConnection, "Provider connection failed").
		WithUserMessage("Failed to establish connection to the storage backend").
		WithContext("piece", name).
		WithSeverity("error").
		AsRetryable()
}

func NewNoOwnerError(name string) *errors.Error {
	return errors.New(ErrCodeNoOwner, "Piece has no owner").
		WithUserMessage("The piece is not attached to a host").
		WithContext("piece", name).
		WithSeverity("error")
}

// Resolution error constructors

func NewManifestNotFoundError(location string) *errors.Error {
	return errors.New(ErrCodeManifestNotFound, "Piece manifest not found").
		WithUserMessage("No manifest exists at the given location").
		WithContext("location", location).
		WithSeverity("error")
}

func NewManifestReadError(location string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeManifestRead, "Failed to read piece manifest").
		WithUserMessage("The manifest could not be read").
		WithContext("location", location).
		WithSeverity("error").
		AsRetryable()
}

func NewManifestParseError(location string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeManifestParse, "Failed to parse piece manifest").
		WithUserMessage("The manifest is not valid").
		WithContext("location", location).
		WithSeverity("error")
}

func NewUnsupportedManifestError(location string) *errors.Error {
	return errors.New(ErrCodeUnsupportedManifest, "Unsupported manifest format").
		WithUserMessage("Manifests must be YAML, JSON or HCL").
		WithContext("location", location).
		WithSeverity("error")
}

func NewUnknownConstructorError(kind Kind, constructor string) *errors.Error {
	return errors.New(ErrCodeUnknownConstructor, "Unknown piece constructor").
		WithUserMessage("No constructor with this name is registered for the kind").
		WithContext("kind", kind.String()).
		WithContext("constructor", constructor).
		WithSeverity("error")
}

func NewKindMismatchError(expected, actual Kind) *errors.Error {
	return errors.New(ErrCodeKindMismatch, "Piece kind mismatch").
		WithUserMessage("The manifest or constructor produced a piece of another kind").
		WithContext("expected", expected.String()).
		WithContext("actual", actual.String()).
		WithSeverity("error")
}

// Dispatch error constructors

func NewRunFailedError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeRunFailed, "Piece run failed").
		WithUserMessage("The piece failed while handling an event").
		WithContext("piece", name).
		WithSeverity("error")
}

func NewRunPanicError(name string, recovered any) *errors.Error {
	return errors.New(ErrCodeRunPanic, "Piece panicked").
		WithUserMessage("The piece panicked while handling an event").
		WithContext("piece", name).
		WithContext("panic", recovered).
		WithSeverity("critical")
}

func NewQueueClosedError(cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeQueueClosed, "Event queue closed").
			WithUserMessage("The host is no longer accepting events").
			WithSeverity("warning")
	}
	return errors.Wrap(cause, ErrCodeQueueClosed, "Event queue closed").
		WithUserMessage("The host is no longer accepting events").
		WithSeverity("warning")
}

// Configuration error constructors

func NewConfigNotFoundError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigNotFound, "Configuration file not found").
		WithUserMessage("The host configuration file could not be opened").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParseError, "Configuration parse error").
		WithUserMessage("Failed to parse the host configuration").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeConfigValidationError, message).
			WithUserMessage("Host configuration validation failed").
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeConfigValidationError, message).
		WithUserMessage("Host configuration validation failed").
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeConfigWatcherError, message).
			WithUserMessage("Manifest watcher operation failed").
			WithSeverity("warning")
	}
	return errors.Wrap(cause, ErrCodeConfigWatcherError, message).
		WithUserMessage("Manifest watcher operation failed").
		WithSeverity("warning")
}

// Registry error constructors

func NewRegistryError(message string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeRegistryError, message).
			WithUserMessage("Piece registry operation failed").
			WithSeverity("error")
	}
	return errors.Wrap(cause, ErrCodeRegistryError, message).
		WithUserMessage("Piece registry operation failed").
		WithSeverity("error")
}

func NewDuplicatePieceError(kind Kind, name string) *errors.Error {
	return errors.New(ErrCodeDuplicatePiece, "Duplicate piece name").
		WithUserMessage("A piece with this name is already loaded").
		WithContext("kind", kind.String()).
		WithContext("piece", name).
		WithSeverity("error")
}

func NewPieceNotFoundError(kind Kind, name string) *errors.Error {
	return errors.New(ErrCodePieceNotFound, "Piece not found").
		WithUserMessage("No piece with this name is loaded").
		WithContext("kind", kind.String()).
		WithContext("piece", name).
		WithSeverity("warning")
}

func NewUnknownKindError(kind string) *errors.Error {
	return errors.New(ErrCodeUnknownKind, "Unknown piece kind").
		WithUserMessage("Piece kind must be monitor or provider").
		WithContext("kind", kind).
		WithSeverity("error")
}

func NewDuplicateConstructorError(kind Kind, name string) *errors.Error {
	return errors.New(ErrCodeDuplicateConstructor, "Duplicate constructor").
		WithUserMessage("A constructor with this name is already registered").
		WithContext("kind", kind.String()).
		WithContext("constructor", name).
		WithSeverity("error")
}

// ErrorCode returns the go-errors code carried by err or anything it wraps,
// or an empty string.
func ErrorCode(err error) string {
	var pieceErr *errors.Error
	if stderrors.As(err, &pieceErr) {
		return string(pieceErr.Code)
	}
	return ""
}

// HasErrorCode reports whether err carries the given code.
func HasErrorCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
