// loader.go: Manifest resolution for piece locators
//
// A piece locator is a directory plus a file name. The file is a manifest
// naming the piece, its kind, the registered constructor that builds it and
// the options bag handed to that constructor. Manifests are read through
// viant/afs so a directory may be a local path or any URL afs can serve.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agilira/argus"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	afsurl "github.com/viant/afs/url"
	"gopkg.in/yaml.v3"
)

// Manifest describes how to build one piece.
//
// Example YAML manifest (monitors/greeter.yaml):
//
//	kind: monitor
//	constructor: script
//	options:
//	  ignoreBots: false
//	  script: greeter.js
//
// Name defaults to the file name without extension and Constructor
// defaults to Name.
type Manifest struct {
	Name        string  `json:"name,omitempty" yaml:"name,omitempty"`
	Kind        Kind    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Constructor string  `json:"constructor,omitempty" yaml:"constructor,omitempty"`
	Options     Options `json:"options,omitempty" yaml:"options,omitempty"`

	// Location is the resolved URL the manifest was read from.
	Location string `json:"-" yaml:"-"`
}

// Loader resolves a locator into a manifest.
type Loader interface {
	Resolve(ctx context.Context, dir, file string) (*Manifest, error)
}

// Lister is implemented by loaders that can enumerate a directory.
type Lister interface {
	List(ctx context.Context, dir string) ([]string, error)
}

// ManifestLoader reads manifests through an afs.Service.
type ManifestLoader struct {
	fs afs.Service
}

// NewManifestLoader creates a loader backed by afs.New().
func NewManifestLoader() *ManifestLoader {
	return &ManifestLoader{fs: afs.New()}
}

// NewManifestLoaderWithFS creates a loader over an existing afs service,
// e.g. one with memory or cloud storage registered.
func NewManifestLoaderWithFS(fs afs.Service) *ManifestLoader {
	return &ManifestLoader{fs: fs}
}

// Resolve reads and decodes dir/file.
func (l *ManifestLoader) Resolve(ctx context.Context, dir, file string) (*Manifest, error) {
	if dir == "" || file == "" {
		return nil, NewMissingLocatorError(dir, file)
	}
	location := ManifestURL(dir, file)

	exists, err := l.fs.Exists(ctx, location)
	if err != nil {
		return nil, NewManifestReadError(location, err)
	}
	if !exists {
		return nil, NewManifestNotFoundError(location)
	}
	data, err := l.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, NewManifestReadError(location, err)
	}

	manifest, err := decodeManifest(location, file, data)
	if err != nil {
		return nil, err
	}
	manifest.Location = location
	if manifest.Name == "" {
		manifest.Name = manifestBaseName(file)
	}
	if manifest.Constructor == "" {
		manifest.Constructor = manifest.Name
	}
	if manifest.Options == nil {
		manifest.Options = Options{}
	}
	return manifest, nil
}

// List returns the manifest file names directly inside dir, sorted.
func (l *ManifestLoader) List(ctx context.Context, dir string) ([]string, error) {
	location := dirURL(dir)
	objects, err := l.fs.List(ctx, location)
	if err != nil {
		return nil, NewManifestReadError(location, err)
	}
	var names []string
	for _, obj := range objects {
		// afs lists the directory itself as the first entry.
		if obj.IsDir() {
			continue
		}
		if IsManifestFile(obj.Name()) {
			names = append(names, obj.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// IsManifestFile reports whether name has a supported manifest extension.
func IsManifestFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml", ".json", ".toml", ".hcl":
		return true
	}
	return false
}

// ManifestURL joins dir and file into an afs URL. Plain paths become
// absolute file:// URLs.
func ManifestURL(dir, name string) string {
	return afsurl.Join(dirURL(dir), name)
}

// LocalPath returns the file system path behind a file:// URL, or "" when
// the URL points elsewhere.
func LocalPath(location string) string {
	if afsurl.Scheme(location, file.Scheme) != file.Scheme {
		return ""
	}
	return afsurl.Path(location)
}

func dirURL(dir string) string {
	if afsurl.Scheme(dir, "") != "" {
		return dir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	return "file://" + filepath.ToSlash(abs)
}

func manifestBaseName(name string) string {
	base := path.Base(filepath.ToSlash(name))
	return strings.TrimSuffix(base, path.Ext(base))
}

// decodeManifest picks a decoder by extension: yaml.v3 for YAML, encoding/json
// for JSON, argus for TOML and hcl/v2 for HCL.
func decodeManifest(location, name string, data []byte) (*Manifest, error) {
	var manifest Manifest
	switch argus.DetectFormat(name) {
	case argus.FormatYAML:
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, NewManifestParseError(location, err)
		}
	case argus.FormatJSON:
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, NewManifestParseError(location, err)
		}
	case argus.FormatTOML:
		raw, err := argus.ParseConfig(data, argus.FormatTOML)
		if err != nil {
			return nil, NewManifestParseError(location, err)
		}
		if err := manifestFromMap(raw, &manifest); err != nil {
			return nil, NewManifestParseError(location, err)
		}
	case argus.FormatHCL:
		if err := decodeHCLManifest(name, data, &manifest); err != nil {
			return nil, NewManifestParseError(location, err)
		}
	default:
		return nil, NewUnsupportedManifestError(location)
	}
	return &manifest, nil
}

// manifestFromMap binds a generic map produced by argus.ParseConfig.
func manifestFromMap(raw map[string]interface{}, m *Manifest) error {
	str := func(key string) (string, error) {
		v, ok := raw[key]
		if !ok || v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("manifest field %q must be a string, got %T", key, v)
		}
		return s, nil
	}

	var err error
	if m.Name, err = str("name"); err != nil {
		return err
	}
	kind, err := str("kind")
	if err != nil {
		return err
	}
	m.Kind = Kind(kind)
	if m.Constructor, err = str("constructor"); err != nil {
		return err
	}
	if opts, ok := raw["options"]; ok && opts != nil {
		om, ok := opts.(map[string]interface{})
		if !ok {
			return fmt.Errorf("manifest field \"options\" must be a table, got %T", opts)
		}
		m.Options = Options(om)
	}
	return nil
}
