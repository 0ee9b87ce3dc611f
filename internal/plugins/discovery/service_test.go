package discovery_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nupi-ai/shellboot/internal/plugins"
	"github.com/nupi-ai/shellboot/internal/plugins/discovery"
)

func writePlugin(t *testing.T, root, slug, manifest, script string) {
	t.Helper()
	dir := filepath.Join(root, slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir plugin dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if script != "" {
		if err := os.WriteFile(filepath.Join(dir, "main.js"), []byte(script), 0o644); err != nil {
			t.Fatalf("write script: %v", err)
		}
	}
}

func TestServiceStartExtractsBuiltins(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "plugins")
	catalog := plugins.NewCatalog()
	svc := discovery.NewService(root, catalog)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Shutdown(context.Background())

	if got, want := svc.Modules(), []string{"FullScreen", "Share"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("modules = %v, want %v", got, want)
	}

	d, ok := catalog.Lookup("Share")
	if !ok || d.Kind() != plugins.KindLazy {
		t.Fatalf("expected lazy Share descriptor, got %+v (ok=%v)", d, ok)
	}

	r := plugins.NewResolver()
	r.Resolve(context.Background(), catalog.Descriptors([]plugins.Entry{{Name: "Share"}}))
	st, err := r.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	share, ok := st.Loaded["Share"].(plugins.Renderer)
	if !ok {
		t.Fatalf("expected renderable Share plugin, got %#v", st.Loaded)
	}
	out, err := share.Render(map[string]any{"resourceUrl": "/catalogue/#/dashboard/1"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "<div class='gn-share' data-embed='true'>/catalogue/#/dashboard/1</div>" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestServiceLoadModulesRecordsWarnings(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writePlugin(t, root, "valid", "kind: ShellPlugin\nmetadata:\n  name: Valid\nspec:\n  override: true\n",
		`module.exports = { name: "Valid" };`)
	writePlugin(t, root, "noscript", "kind: ShellPlugin\nmetadata:\n  name: NoScript\n", "")

	catalog := plugins.NewCatalog()
	svc := discovery.NewService(root, catalog, discovery.WithExtractor(nil))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start should succeed despite invalid plugins: %v", err)
	}

	if got := svc.Modules(); !reflect.DeepEqual(got, []string{"Valid"}) {
		t.Fatalf("modules = %v", got)
	}
	if len(svc.Warnings()) != 1 {
		t.Fatalf("expected one warning, got %v", svc.Warnings())
	}
	d, ok := catalog.Lookup("Valid")
	if !ok || !d.Overrides() {
		t.Fatalf("expected override flag from manifest, got %+v", d)
	}
}

func TestServiceStartRequiresCatalog(t *testing.T) {
	t.Parallel()

	svc := discovery.NewService(t.TempDir(), nil, discovery.WithExtractor(nil))
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected error without catalog")
	}
}
