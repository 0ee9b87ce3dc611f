// Package pluginmanifest discovers lazily loadable shell plugins on disk.
package pluginmanifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind describes the type of plugin represented by the manifest.
type Kind string

const (
	// KindModule identifies a JS extension module evaluated on demand.
	KindModule Kind = "ShellPlugin"

	manifestYAML = "plugin.yaml"
	manifestYML  = "plugin.yml"
)

// Metadata captures descriptive fields of a plugin.
type Metadata struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Catalog     string `yaml:"catalog"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

// ModuleSpec defines how the module is loaded.
type ModuleSpec struct {
	Main string `yaml:"main"`
	// Override lets the loaded module replace a static plugin of the same name.
	Override bool `yaml:"override"`
}

// Manifest represents a parsed plugin manifest residing within a directory.
type Manifest struct {
	Dir        string
	File       string
	APIVersion string
	Kind       Kind
	Metadata   Metadata
	Module     ModuleSpec
}

// PluginName is the name the shell configuration refers to.
func (m *Manifest) PluginName() string {
	if name := strings.TrimSpace(m.Metadata.Name); name != "" {
		return name
	}
	return m.Metadata.Slug
}

// MainPath returns the absolute path to the module script.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.Dir, m.Module.Main)
}

// Discover scans root for plugin manifests, either directly below root or
// one catalog level deeper (root/<catalog>/<slug>/plugin.yaml).
func Discover(root string) ([]*Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plugin root: %w", err)
	}

	var manifests []*Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())

		manifest, err := LoadFromDir(dir)
		if err == nil {
			manifests = append(manifests, manifest)
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load manifest in %s: %w", dir, err)
		}

		subEntries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read catalog dir %s: %w", dir, err)
		}
		for _, sub := range subEntries {
			if !sub.IsDir() {
				continue
			}
			slugDir := filepath.Join(dir, sub.Name())
			manifest, err := LoadFromDir(slugDir)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load manifest in %s: %w", slugDir, err)
			}
			if manifest.Metadata.Catalog == "" {
				manifest.Metadata.Catalog = entry.Name()
			}
			manifests = append(manifests, manifest)
		}
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].Dir < manifests[j].Dir
	})
	return manifests, nil
}

// LoadFromDir loads the plugin manifest of dir. It returns an error wrapping
// fs.ErrNotExist when dir holds no manifest.
func LoadFromDir(dir string) (*Manifest, error) {
	file, err := locateManifestFile(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", file, err)
	}

	var doc struct {
		APIVersion string    `yaml:"apiVersion"`
		Kind       string    `yaml:"kind"`
		Metadata   Metadata  `yaml:"metadata"`
		Spec       yaml.Node `yaml:"spec"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", file, err)
	}

	kind := Kind(strings.TrimSpace(doc.Kind))
	if kind != KindModule {
		return nil, fmt.Errorf("unsupported manifest kind %q in %s", doc.Kind, file)
	}

	manifest := &Manifest{
		Dir:        dir,
		File:       file,
		APIVersion: strings.TrimSpace(doc.APIVersion),
		Kind:       kind,
		Metadata:   doc.Metadata,
	}
	if manifest.Metadata.Slug == "" {
		manifest.Metadata.Slug = filepath.Base(dir)
	}

	if !doc.Spec.IsZero() {
		if err := doc.Spec.Decode(&manifest.Module); err != nil {
			return nil, fmt.Errorf("decode module spec %s: %w", file, err)
		}
	}
	if strings.TrimSpace(manifest.Module.Main) == "" {
		manifest.Module.Main = "main.js"
	}
	if filepath.IsAbs(manifest.Module.Main) || strings.HasPrefix(filepath.Clean(manifest.Module.Main), "..") {
		return nil, fmt.Errorf("manifest %s: main must stay inside the plugin directory", file)
	}

	return manifest, nil
}

func locateManifestFile(dir string) (string, error) {
	for _, candidate := range []string{
		filepath.Join(dir, manifestYAML),
		filepath.Join(dir, manifestYML),
	} {
		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("stat manifest %s: %w", candidate, err)
		}
		if info.IsDir() {
			continue
		}
		return candidate, nil
	}
	return "", fs.ErrNotExist
}
