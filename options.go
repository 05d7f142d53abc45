// options.go: presence-checked option bag passed to piece constructors
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"math"
	"time"
)

// Option keys understood by the built-in kinds.
const (
	OptionEnabled     = "enabled"
	OptionIgnoreBots  = "ignoreBots"
	OptionIgnoreSelf  = "ignoreSelf"
	OptionDescription = "description"
	OptionSQL         = "sql"
)

// Options is the configuration bag handed to a piece constructor.
//
// Lookups distinguish "absent" from "present with a zero value": an explicit
// false overrides a true default. A present key of the wrong type is a
// construction error rather than a silent fallback. Unknown keys are ignored.
type Options map[string]any

// Has reports whether key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Bool returns the boolean under key, or def when absent.
func (o Options) Bool(key string, def bool) (bool, error) {
	raw, ok := o[key]
	if !ok {
		return def, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return def, NewMalformedOptionError(key, raw, "bool")
	}
	return b, nil
}

// String returns the string under key, or def when absent.
func (o Options) String(key, def string) (string, error) {
	raw, ok := o[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return def, NewMalformedOptionError(key, raw, "string")
	}
	return s, nil
}

// RequiredString returns the non-empty string under key.
func (o Options) RequiredString(key string) (string, error) {
	if !o.Has(key) {
		return "", NewMissingOptionError(key)
	}
	s, err := o.String(key, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", NewMissingOptionError(key)
	}
	return s, nil
}

// Int returns the integer under key, or def when absent. Decoders hand back
// numbers as int, int64 or float64; floats are accepted only when integral.
func (o Options) Int(key string, def int) (int, error) {
	raw, ok := o[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	}
	return def, NewMalformedOptionError(key, raw, "integer")
}

// Duration returns the duration under key, or def when absent. Strings are
// parsed with time.ParseDuration; bare integers are taken as milliseconds.
func (o Options) Duration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := o[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return def, NewMalformedOptionError(key, raw, "duration")
		}
		return d, nil
	}
	ms, err := o.Int(key, 0)
	if err != nil {
		return def, NewMalformedOptionError(key, raw, "duration")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Map returns the nested object under key, or nil when absent.
func (o Options) Map(key string) (Options, error) {
	raw, ok := o[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return Options(v), nil
	case Options:
		return v, nil
	}
	return nil, NewMalformedOptionError(key, raw, "object")
}

// Clone returns a shallow copy, so constructors may not mutate the bag
// shared with a manifest.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// WithDefault returns a copy of o with key set to value only when absent.
func (o Options) WithDefault(key string, value any) Options {
	out := o.Clone()
	if _, ok := out[key]; !ok {
		out[key] = value
	}
	return out
}
