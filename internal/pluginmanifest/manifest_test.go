package pluginmanifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestDiscoverFlatAndCatalogLayouts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "share"), `apiVersion: shell/v1
kind: ShellPlugin
metadata:
  name: Share
spec:
  main: share.js
  override: true
`)
	writeManifest(t, filepath.Join(root, "geonode", "fullscreen"), `apiVersion: shell/v1
kind: ShellPlugin
metadata:
  name: FullScreen
`)
	if err := os.MkdirAll(filepath.Join(root, "empty", "nothing"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	manifests, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(manifests))
	}

	full, share := manifests[0], manifests[1]
	if full.PluginName() != "FullScreen" || full.Metadata.Catalog != "geonode" || full.Metadata.Slug != "fullscreen" {
		t.Fatalf("unexpected catalog manifest: %+v", full.Metadata)
	}
	if full.Module.Main != "main.js" {
		t.Fatalf("expected default main.js, got %q", full.Module.Main)
	}
	if share.PluginName() != "Share" || !share.Module.Override {
		t.Fatalf("unexpected flat manifest: %+v %+v", share.Metadata, share.Module)
	}
	if share.MainPath() != filepath.Join(root, "share", "share.js") {
		t.Fatalf("unexpected main path %q", share.MainPath())
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	t.Parallel()

	manifests, err := Discover(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("expected nil error for missing root, got %v", err)
	}
	if manifests != nil {
		t.Fatalf("expected no manifests, got %d", len(manifests))
	}
}

func TestLoadFromDirRejectsInvalid(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	if _, err := LoadFromDir(root); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}

	wrongKind := filepath.Join(root, "kind")
	writeManifest(t, wrongKind, "kind: Detector\nmetadata:\n  name: x\n")
	if _, err := LoadFromDir(wrongKind); err == nil {
		t.Fatal("expected unsupported kind error")
	}

	escape := filepath.Join(root, "escape")
	writeManifest(t, escape, "kind: ShellPlugin\nspec:\n  main: ../../etc/passwd\n")
	if _, err := LoadFromDir(escape); err == nil {
		t.Fatal("expected error for main outside plugin dir")
	}

	broken := filepath.Join(root, "broken")
	writeManifest(t, broken, "kind: [unterminated\n")
	if _, err := LoadFromDir(broken); err == nil {
		t.Fatal("expected parse error")
	}
}
