// discovery.go: Directory discovery and bulk loading of pieces
//
// Manifests in a directory are fetched concurrently on an ants pool, then
// constructed, initialized and installed one by one in file name order so
// registration order is deterministic and piece code stays serialized.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
)

// loadOrder puts providers first so monitors can rely on storage during Init.
var loadOrder = []Kind{KindProvider, KindMonitor}

// maxDiscoveryWorkers bounds concurrent manifest reads per directory.
const maxDiscoveryWorkers = 8

// LoadReport lists the outcome of loading one directory.
type LoadReport struct {
	Kind   Kind             `json:"kind"`
	Dir    string           `json:"dir"`
	Loaded []string         `json:"loaded"`
	Failed map[string]error `json:"-"`
}

// Err joins every per-file failure.
func (r LoadReport) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for file, err := range r.Failed {
		errs = append(errs, fmt.Errorf("%s/%s: %w", r.Dir, file, err))
	}
	return errors.Join(errs...)
}

// manifestCache sits between the stores and the real loader. Discovery
// prefetches manifests into it; the next Resolve for that locator takes the
// prefetched copy instead of reading again.
type manifestCache struct {
	inner      Loader
	prefetched cmap.ConcurrentMap[string, *Manifest]
}

func newManifestCache(inner Loader) *manifestCache {
	return &manifestCache{inner: inner, prefetched: cmap.New[*Manifest]()}
}

func (c *manifestCache) Resolve(ctx context.Context, dir, file string) (*Manifest, error) {
	if m, ok := c.prefetched.Pop(ManifestURL(dir, file)); ok {
		return m, nil
	}
	return c.inner.Resolve(ctx, dir, file)
}

func (c *manifestCache) prefetch(ctx context.Context, dir, file string) error {
	m, err := c.inner.Resolve(ctx, dir, file)
	if err != nil {
		return err
	}
	c.prefetched.Set(ManifestURL(dir, file), m)
	return nil
}

func (c *manifestCache) forget(dir, file string) {
	c.prefetched.Remove(ManifestURL(dir, file))
}

// LoadDirectory adds every manifest found directly inside dir to the store
// for kind. Files that fail are reported and skipped.
func (h *Host) LoadDirectory(ctx context.Context, kind Kind, dir string) (LoadReport, error) {
	report := LoadReport{Kind: kind, Dir: dir, Failed: make(map[string]error)}

	store, err := h.Store(kind)
	if err != nil {
		return report, err
	}
	lister, ok := h.loader.(Lister)
	if !ok {
		return report, NewRegistryError("loader cannot list directories", nil)
	}
	files, err := lister.List(ctx, dir)
	if err != nil {
		return report, err
	}
	if len(files) == 0 {
		h.logger.Debug("No manifests found", "kind", kind.String(), "dir", dir)
		return report, nil
	}

	fetchErrs := h.prefetchManifests(ctx, dir, files)

	h.execMu.Lock()
	defer h.execMu.Unlock()
	for i, file := range files {
		if fetchErrs[i] != nil {
			report.Failed[file] = fetchErrs[i]
			continue
		}
		p, err := store.Add(ctx, dir, file)
		if err != nil {
			h.manifests.forget(dir, file)
			report.Failed[file] = err
			continue
		}
		report.Loaded = append(report.Loaded, p.Name())
	}

	h.logger.Info("Directory loaded",
		"kind", kind.String(),
		"dir", dir,
		"loaded", len(report.Loaded),
		"failed", len(report.Failed))
	return report, nil
}

// prefetchManifests reads all manifests concurrently and returns one error
// slot per file.
func (h *Host) prefetchManifests(ctx context.Context, dir string, files []string) []error {
	errs := make([]error, len(files))

	workers := len(files)
	if workers > maxDiscoveryWorkers {
		workers = maxDiscoveryWorkers
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		h.logger.Error("Panic recovered while reading manifest", "dir", dir, "panic", p)
	}))
	if err != nil {
		for i, file := range files {
			errs[i] = h.manifests.prefetch(ctx, dir, file)
		}
		return errs
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, file := range files {
		i, file := i, file
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			// Stays set only if prefetch panics.
			errs[i] = NewRegistryError(fmt.Sprintf("manifest %s was not read", file), nil)
			errs[i] = h.manifests.prefetch(ctx, dir, file)
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = NewRegistryError("discovery pool rejected task", submitErr)
		}
	}
	wg.Wait()
	return errs
}

// LoadAll loads every directory listed in the host configuration,
// providers first, and marks the host as loaded for readiness checks.
func (h *Host) LoadAll(ctx context.Context) error {
	var errs []error
	for _, kind := range loadOrder {
		for _, dir := range h.config.Directories[kind] {
			report, err := h.LoadDirectory(ctx, kind, dir)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := report.Err(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	h.loaded.Store(true)
	return errors.Join(errs...)
}
