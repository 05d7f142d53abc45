// register_test.go: end-to-end tests for the built-in constructors on a host
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gopieces "github.com/agilira/go-pieces"
)

func writeScript(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestRegisterEndToEnd(t *testing.T) {
	root := t.TempDir()
	providers := filepath.Join(root, "providers")
	monitors := filepath.Join(root, "monitors")
	require.NoError(t, os.MkdirAll(providers, 0o755))
	require.NoError(t, os.MkdirAll(monitors, 0o755))

	writeScript(t, providers, "settings.yaml", "constructor: file\noptions:\n  path: data\n")
	writeScript(t, providers, "db.yaml", "constructor: sql\noptions:\n  dsn: \":memory:\"\n")
	writeScript(t, monitors, "echo.yaml", "constructor: script\noptions:\n  source: |\n    function run(event) { return event.content; }\n")
	writeScript(t, monitors, "plain.yaml", "constructor: monitor\n")

	logger := gopieces.NewTestLogger()
	h, err := gopieces.NewHost(gopieces.HostConfig{
		Directories: map[gopieces.Kind][]string{
			gopieces.KindProvider: {providers},
			gopieces.KindMonitor:  {monitors},
		},
	}, gopieces.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, Register(h))
	assert.True(t, logger.HasMessage("DEBUG", "Built-in constructors registered"))
	assert.Error(t, Register(h), "constructors register once")

	require.NoError(t, h.LoadAll(context.Background()))

	settings, err := h.Get(gopieces.KindProvider, "settings")
	require.NoError(t, err)
	require.NoError(t, settings.(*FileProvider).Set(context.Background(), "k", "v"))

	db, err := h.Get(gopieces.KindProvider, "db")
	require.NoError(t, err)
	assert.True(t, db.(*SQLProvider).SQL())

	result := h.Dispatch(context.Background(), gopieces.NewEvent("user-1", "hello"))
	assert.Empty(t, result.Errors)
	assert.Contains(t, result.Delivered, "echo")

	echo, err := h.Get(gopieces.KindMonitor, "echo")
	require.NoError(t, err)
	assert.Equal(t, "hello", echo.(*ScriptMonitor).LastResult())
	assert.Equal(t, int64(1), echo.(*ScriptMonitor).Runs())
}
