// Package extensions discovers, loads, and validates extension modules.
// An extension lives in a directory with an extension.yaml manifest pointing
// at a compiled plugin; loaded extensions contribute tools, hooks, and model
// providers to the session.
package extensions

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFilename is the manifest file looked for during discovery.
const ManifestFilename = "extension.yaml"

// Manifest describes an extension on disk.
type Manifest struct {
	Name         string         `yaml:"name"`
	Version      string         `yaml:"version"`
	Description  string         `yaml:"description,omitempty"`
	Module       string         `yaml:"module"`
	Capabilities []string       `yaml:"capabilities,omitempty"`
	ConfigSchema map[string]any `yaml:"config_schema,omitempty"`
}

// ManifestInfo pairs a decoded manifest with its location.
type ManifestInfo struct {
	Manifest *Manifest
	Path     string
}

// ModulePath resolves the manifest's module reference relative to the
// manifest location.
func (m ManifestInfo) ModulePath() string {
	if filepath.IsAbs(m.Manifest.Module) {
		return m.Manifest.Module
	}
	return filepath.Join(filepath.Dir(m.Path), m.Manifest.Module)
}

// DecodeManifestFile reads and decodes one manifest.
func DecodeManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}

// DiscoverManifests scans directories for extension manifests. Missing
// directories are skipped; duplicate extension names are an error. Results
// are keyed by extension name.
func DiscoverManifests(paths []string) (map[string]ManifestInfo, error) {
	manifests := make(map[string]ManifestInfo)
	for _, root := range normalizePaths(paths) {
		info, err := os.Stat(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat extension path: %w", err)
		}
		if !info.IsDir() {
			manifest, err := DecodeManifestFile(root)
			if err != nil {
				return nil, err
			}
			if err := registerManifest(manifests, ManifestInfo{Manifest: manifest, Path: root}); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || d.Name() != ManifestFilename {
				return nil
			}
			manifest, err := DecodeManifestFile(path)
			if err != nil {
				return err
			}
			return registerManifest(manifests, ManifestInfo{Manifest: manifest, Path: path})
		})
		if err != nil {
			return nil, fmt.Errorf("walk extension path: %w", err)
		}
	}
	return manifests, nil
}

func registerManifest(manifests map[string]ManifestInfo, entry ManifestInfo) error {
	name := strings.TrimSpace(entry.Manifest.Name)
	if name == "" {
		return fmt.Errorf("manifest %s missing name", entry.Path)
	}
	if existing, ok := manifests[name]; ok {
		return fmt.Errorf("duplicate extension %q (%s, %s)", name, existing.Path, entry.Path)
	}
	manifests[name] = entry
	return nil
}

func normalizePaths(paths []string) []string {
	seen := make(map[string]struct{})
	normalized := make([]string, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		cleaned := filepath.Clean(trimmed)
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		normalized = append(normalized, cleaned)
	}
	sort.Strings(normalized)
	return normalized
}
