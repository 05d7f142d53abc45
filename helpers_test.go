// helpers_test.go: shared fixtures for the go-pieces tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// memoryLoader serves manifests from a map so most tests avoid the file system.
type memoryLoader struct {
	mu        sync.Mutex
	manifests map[string]Manifest
	resolves  atomic.Int32
}

func newMemoryLoader() *memoryLoader {
	return &memoryLoader{manifests: make(map[string]Manifest)}
}

func (l *memoryLoader) put(dir, file string, m Manifest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.manifests[dir+"/"+file] = m
}

func (l *memoryLoader) remove(dir, file string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.manifests, dir+"/"+file)
}

func (l *memoryLoader) Resolve(ctx context.Context, dir, file string) (*Manifest, error) {
	l.resolves.Add(1)
	l.mu.Lock()
	m, ok := l.manifests[dir+"/"+file]
	l.mu.Unlock()
	if !ok {
		return nil, NewManifestNotFoundError(dir + "/" + file)
	}
	if m.Name == "" {
		m.Name = manifestBaseName(file)
	}
	if m.Constructor == "" {
		m.Constructor = m.Name
	}
	m.Options = m.Options.Clone()
	return &m, nil
}

func (l *memoryLoader) List(ctx context.Context, dir string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var files []string
	prefix := dir + "/"
	for key := range l.manifests {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			files = append(files, key[len(prefix):])
		}
	}
	sort.Strings(files)
	return files, nil
}

// testMonitor is a monitor whose behavior is driven by its options:
// "fail_init" (bool), "fail_run" (bool) and "panic" (string).
type testMonitor struct {
	*Monitor
	failInit bool
	failRun  bool
	panicMsg string

	inits atomic.Int32
	mu    sync.Mutex
	seen  []string
}

var errTestRun = errors.New("monitor failed on purpose")

func (m *testMonitor) Init(ctx context.Context) error {
	m.inits.Add(1)
	if m.failInit {
		return errors.New("init failed on purpose")
	}
	return nil
}

func (m *testMonitor) Run(ctx context.Context, event *Event) error {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.mu.Lock()
	m.seen = append(m.seen, event.ID)
	m.mu.Unlock()
	if m.failRun {
		return errTestRun
	}
	return nil
}

func (m *testMonitor) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.seen))
	copy(out, m.seen)
	return out
}

// monitorFactory builds testMonitors and remembers every instance.
type monitorFactory struct {
	mu    sync.Mutex
	built []*testMonitor
}

func (f *monitorFactory) construct(owner Owner, dir, file, name string, opts Options) (Piece, error) {
	base, err := NewMonitor(owner, dir, file, name, opts)
	if err != nil {
		return nil, err
	}
	failInit, err := opts.Bool("fail_init", false)
	if err != nil {
		return nil, err
	}
	failRun, err := opts.Bool("fail_run", false)
	if err != nil {
		return nil, err
	}
	panicMsg, err := opts.String("panic", "")
	if err != nil {
		return nil, err
	}
	m := &testMonitor{Monitor: base, failInit: failInit, failRun: failRun, panicMsg: panicMsg}

	f.mu.Lock()
	f.built = append(f.built, m)
	f.mu.Unlock()
	return m, nil
}

func (f *monitorFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

// closingProvider records Close calls for teardown tests.
type closingProvider struct {
	*Provider
	closed    atomic.Int32
	healthErr error
}

func (p *closingProvider) Close() error {
	p.closed.Add(1)
	return nil
}

func (p *closingProvider) Health(ctx context.Context) error { return p.healthErr }

type testHost struct {
	*Host
	loader   *memoryLoader
	logger   *TestLogger
	monitors *monitorFactory
}

// newTestHost builds a host over a memoryLoader with the "test" monitor
// constructor and the stock "provider" constructor registered.
func newTestHost(t *testing.T, config HostConfig, opts ...HostOption) *testHost {
	t.Helper()

	loader := newMemoryLoader()
	logger := NewTestLogger()
	all := append([]HostOption{WithLogger(logger), WithLoader(loader)}, opts...)

	h, err := NewHost(config, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	factory := &monitorFactory{}
	require.NoError(t, h.RegisterConstructor(KindMonitor, "test", factory.construct))
	require.NoError(t, h.RegisterConstructor(KindProvider, "provider", ProviderConstructor))

	return &testHost{Host: h, loader: loader, logger: logger, monitors: factory}
}

// addMonitor puts a manifest for name in "monitors" and loads it.
func (th *testHost) addMonitor(t *testing.T, name string, opts Options) Piece {
	t.Helper()
	th.loader.put("monitors", name+".yaml", Manifest{Name: name, Kind: KindMonitor, Constructor: "test", Options: opts})
	p, err := th.Add(context.Background(), KindMonitor, "monitors", name+".yaml")
	require.NoError(t, err)
	return p
}

// writeFile creates dir/name with content and returns the full path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
