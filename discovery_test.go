// discovery_test.go: tests for directory discovery and bulk loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDirectoryLoadsInFileOrder(t *testing.T) {
	th := newTestHost(t, HostConfig{})
	for _, name := range []string{"c", "a", "b"} {
		th.loader.put("monitors", name+".yaml", Manifest{Constructor: "test"})
	}
	th.loader.put("monitors", "broken.yaml", Manifest{Constructor: "test", Options: Options{"fail_init": true}})

	report, err := th.LoadDirectory(context.Background(), KindMonitor, "monitors")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, report.Loaded)
	require.Contains(t, report.Failed, "broken.yaml")
	assert.True(t, HasErrorCode(report.Failed["broken.yaml"], ErrCodeInitFailed))
	assert.Error(t, report.Err())
	assert.Equal(t, []string{"a", "b", "c"}, mustStore(t, th.Host, KindMonitor).Names())
	assert.True(t, th.logger.HasMessage("INFO", "Directory loaded"))
}

func TestLoadDirectoryReadsEachManifestOnce(t *testing.T) {
	th := newTestHost(t, HostConfig{})
	for i := 0; i < 20; i++ {
		th.loader.put("monitors", fmt.Sprintf("m%02d.yaml", i), Manifest{Constructor: "test"})
	}

	report, err := th.LoadDirectory(context.Background(), KindMonitor, "monitors")
	require.NoError(t, err)
	assert.Len(t, report.Loaded, 20)
	assert.Equal(t, int32(20), th.loader.resolves.Load(), "prefetched manifests must not be read again")
}

func TestLoadDirectoryEmpty(t *testing.T) {
	th := newTestHost(t, HostConfig{})
	report, err := th.LoadDirectory(context.Background(), KindMonitor, "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, report.Loaded)
	assert.NoError(t, report.Err())
}

func TestLoadDirectoryRequiresLister(t *testing.T) {
	h, err := NewHost(HostConfig{}, WithLoader(resolveOnly{}))
	require.NoError(t, err)
	defer h.Close()

	_, err = h.LoadDirectory(context.Background(), KindMonitor, "monitors")
	assert.True(t, HasErrorCode(err, ErrCodeRegistryError))
}

type resolveOnly struct{}

func (resolveOnly) Resolve(ctx context.Context, dir, file string) (*Manifest, error) {
	return nil, NewManifestNotFoundError(file)
}

// Providers load before monitors so a monitor's Init can find its storage.
func TestLoadAllLoadsProvidersFirst(t *testing.T) {
	config := HostConfig{Directories: map[Kind][]string{
		KindMonitor:  {"monitors"},
		KindProvider: {"providers"},
	}}
	th := newTestHost(t, config)

	var sawProvider bool
	require.NoError(t, th.RegisterConstructor(KindMonitor, "needs-storage", func(o Owner, dir, file, name string, opts Options) (Piece, error) {
		m, err := NewMonitor(o, dir, file, name, opts)
		if err != nil {
			return nil, err
		}
		return &storageUser{Monitor: m, found: &sawProvider}, nil
	}))
	th.loader.put("monitors", "user.yaml", Manifest{Constructor: "needs-storage"})
	th.loader.put("providers", "kv.yaml", Manifest{Constructor: "provider"})

	require.NoError(t, th.LoadAll(context.Background()))
	assert.True(t, sawProvider)
	assert.True(t, th.loaded.Load())
}

type storageUser struct {
	*Monitor
	found *bool
}

func (s *storageUser) Init(ctx context.Context) error {
	reg, err := s.Owner().Registry(KindProvider)
	if err != nil {
		return err
	}
	store := reg.(*Store)
	_, *s.found = store.Get("kv")
	return nil
}

func TestStartLoadsAndServes(t *testing.T) {
	th := newTestHost(t, HostConfig{Directories: map[Kind][]string{KindMonitor: {"monitors"}}})
	th.loader.put("monitors", "listener.yaml", Manifest{Constructor: "test"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, th.Start(ctx))
	assert.Error(t, th.Start(ctx), "a host starts once")

	p, err := th.Get(KindMonitor, "listener")
	require.NoError(t, err)

	require.NoError(t, th.Publish(NewEvent("user-1", "hi")))
	assert.Eventually(t, func() bool {
		return len(p.(*testMonitor).events()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
