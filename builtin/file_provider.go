// file_provider.go: JSON document store on any afs-backed location
//
// Each key is one "<key>.json" object under the provider's root. The root
// may be a local path, relative to the manifest directory, or any URL afs
// understands (mem://, s3://, gs://).
//
// Manifest options:
//
//	path:  document root (required)
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valyala/bytebufferpool"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	afsurl "github.com/viant/afs/url"

	gopieces "github.com/agilira/go-pieces"
)

const documentExt = ".json"

// FileProvider stores JSON documents as files.
type FileProvider struct {
	*gopieces.Provider

	fs   afs.Service
	root string
}

// NewFileProvider is the "file" provider constructor.
func NewFileProvider(owner gopieces.Owner, dir, fileName, name string, opts gopieces.Options) (gopieces.Piece, error) {
	p, err := newFileProvider(owner, dir, fileName, name, opts, afs.New())
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newFileProvider(owner gopieces.Owner, dir, fileName, name string, opts gopieces.Options, fs afs.Service) (*FileProvider, error) {
	base, err := gopieces.NewProvider(owner, dir, fileName, name, opts)
	if err != nil {
		return nil, err
	}
	root, err := opts.RequiredString("path")
	if err != nil {
		return nil, err
	}
	return &FileProvider{Provider: base, fs: fs, root: resolveLocation(dir, root)}, nil
}

// resolveLocation anchors a relative local path at the manifest directory and
// turns local paths into file:// URLs.
func resolveLocation(dir, root string) string {
	if afsurl.Scheme(root, "") != "" {
		return root
	}
	if !filepath.IsAbs(root) {
		if afsurl.Scheme(dir, "") != "" {
			return afsurl.Join(dir, root)
		}
		root = filepath.Join(dir, root)
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return file.Scheme + "://" + filepath.ToSlash(root)
}

// Init creates the root when missing.
func (p *FileProvider) Init(ctx context.Context) error {
	exists, err := p.fs.Exists(ctx, p.root)
	if err != nil {
		return gopieces.NewProviderConnectionError(p.Name(), err)
	}
	if !exists {
		if err := p.fs.Create(ctx, p.root, file.DefaultDirOsMode, true); err != nil {
			return gopieces.NewProviderConnectionError(p.Name(), err)
		}
	}
	gopieces.LoggerFromContext(ctx).Info("File provider ready", "root", p.root, "created", !exists)
	return nil
}

// Root returns the document root.
func (p *FileProvider) Root() string { return p.root }

// Get decodes the document stored under key into v.
func (p *FileProvider) Get(ctx context.Context, key string, v any) error {
	location, err := p.location(key)
	if err != nil {
		return err
	}
	exists, err := p.fs.Exists(ctx, location)
	if err != nil {
		return NewStorageFailureError("get", key, err)
	}
	if !exists {
		return NewKeyNotFoundError(key)
	}
	data, err := p.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return NewStorageFailureError("get", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewStorageFailureError("decode", key, err)
	}
	return nil
}

// Set stores v as JSON under key, replacing any previous document.
func (p *FileProvider) Set(ctx context.Context, key string, v any) error {
	location, err := p.location(key)
	if err != nil {
		return err
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return NewStorageFailureError("encode", key, err)
	}
	if err := p.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(buf.B)); err != nil {
		return NewStorageFailureError("set", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (p *FileProvider) Delete(ctx context.Context, key string) error {
	location, err := p.location(key)
	if err != nil {
		return err
	}
	exists, err := p.fs.Exists(ctx, location)
	if err != nil {
		return NewStorageFailureError("delete", key, err)
	}
	if !exists {
		return nil
	}
	if err := p.fs.Delete(ctx, location); err != nil {
		return NewStorageFailureError("delete", key, err)
	}
	return nil
}

// Keys lists stored keys in lexical order.
func (p *FileProvider) Keys(ctx context.Context) ([]string, error) {
	objects, err := p.fs.List(ctx, p.root)
	if err != nil {
		return nil, NewStorageFailureError("list", "", err)
	}
	var keys []string
	for _, obj := range objects {
		if obj.IsDir() || path.Ext(obj.Name()) != documentExt {
			continue
		}
		keys = append(keys, strings.TrimSuffix(obj.Name(), documentExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Health checks that the root is still reachable.
func (p *FileProvider) Health(ctx context.Context) error {
	exists, err := p.fs.Exists(ctx, p.root)
	if err != nil {
		return err
	}
	if !exists {
		return NewKeyNotFoundError(p.root)
	}
	return nil
}

func (p *FileProvider) location(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", NewInvalidKeyError(key)
	}
	return afsurl.Join(p.root, key+documentExt), nil
}
