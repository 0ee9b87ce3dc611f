package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nupi-ai/shellboot/internal/config"
	"github.com/nupi-ai/shellboot/internal/version"
)

const localConfig = `{
  "plugins": {
    "dashboard": {
      "viewer": ["Dashboard", {"name": "Share", "cfg": {"embedPanel": false}}, "Ghost"],
      "viewer_mobile": ["Dashboard"]
    }
  },
  "pluginsConfigOverride": {
    "viewer": [{"name": "Dashboard", "cfg": {"columns": 2}}]
  }
}`

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeLocalConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "localConfig.json")
	if err := os.WriteFile(path, []byte(localConfig), 0o600); err != nil {
		t.Fatalf("write local config: %v", err)
	}
	return path
}

func TestPluginsSelect(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	path := writeLocalConfig(t)

	stdout, _, err := execute(t, "", "plugins", "select", "--local-config", path)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got := strings.Fields(stdout); !reflect.DeepEqual(got, []string{"Dashboard", "Share", "Ghost"}) {
		t.Fatalf("desktop selection = %v", got)
	}

	stdout, _, err = execute(t, "", "plugins", "select", "--local-config", path, "--mode", "mobile", "--plugins", "FullScreen")
	if err != nil {
		t.Fatalf("select mobile: %v", err)
	}
	if got := strings.Fields(stdout); !reflect.DeepEqual(got, []string{"Dashboard", "FullScreen"}) {
		t.Fatalf("mobile selection = %v", got)
	}

	stdout, _, err = execute(t, "", "plugins", "select", "--local-config", path, "--json")
	if err != nil {
		t.Fatalf("select json: %v", err)
	}
	var sel selection
	if err := json.Unmarshal([]byte(stdout), &sel); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if sel.Entries[0].Cfg["columns"] != float64(2) {
		t.Fatalf("override not applied: %+v", sel.Entries[0])
	}
}

func TestPluginsSelectRejectsUnknownMode(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())

	if _, _, err := execute(t, "", "plugins", "select", "--local-config", writeLocalConfig(t), "--mode", "tablet"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestPluginsResolveLoadsModules(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	path := writeLocalConfig(t)
	pluginDir := filepath.Join(t.TempDir(), "plugins")

	stdout, _, err := execute(t, "", "plugins", "resolve", "--local-config", path, "--plugin-dir", pluginDir, "--render", "--json")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var res resolution
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if !reflect.DeepEqual(res.Loaded, []string{"Dashboard", "Share"}) {
		t.Fatalf("loaded = %v", res.Loaded)
	}
	if !reflect.DeepEqual(res.Missing, []string{"Ghost"}) {
		t.Fatalf("missing = %v", res.Missing)
	}
	if got := res.Markup["Share"]; got != "<div class='gn-share'></div>" {
		t.Fatalf("share markup = %q", got)
	}
}

func TestResourcesRoundTrip(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	db := filepath.Join(t.TempDir(), "resources.db")

	if _, _, err := execute(t, `{"widgets":[{"id":"w1"}]}`, "resources", "put", "dashboard", "7", "-", "--db", db); err != nil {
		t.Fatalf("put: %v", err)
	}

	stdout, _, err := execute(t, "", "resources", "get", "dashboard", "7", "--db", db)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(stdout), &data); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if widgets, _ := data["widgets"].([]any); len(widgets) != 1 {
		t.Fatalf("data = %v", data)
	}

	stdout, _, err = execute(t, "", "resources", "list", "dashboard", "--db", db)
	if err != nil || !strings.Contains(stdout, "7") {
		t.Fatalf("list = %q err=%v", stdout, err)
	}

	if _, _, err := execute(t, "", "resources", "delete", "dashboard", "7", "--db", db); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := execute(t, "", "resources", "get", "dashboard", "7", "--db", db); err == nil {
		t.Fatal("expected not found after delete")
	}
}

func TestResourcesPutRejectsNonObject(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	db := filepath.Join(t.TempDir(), "resources.db")

	if _, _, err := execute(t, `[1,2]`, "resources", "put", "dashboard", "7", "-", "--db", db); err == nil {
		t.Fatal("expected error for array payload")
	}
}

func TestVersionComparesServer(t *testing.T) {
	t.Cleanup(version.ForTesting("0.5.0"))

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"0.4.0","bootstrap":"mounted"}`))
	}))
	defer ts.Close()

	stdout, _, err := execute(t, "", "version", "--server", ts.URL, "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(stdout), &data); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if data["client"] != "0.5.0" || data["server"] != "0.4.0" || data["mismatch"] != true {
		t.Fatalf("data = %v", data)
	}

	stdout, _, err = execute(t, "", "version")
	if err != nil || strings.TrimSpace(stdout) != "Client: v0.5.0" {
		t.Fatalf("plain version = %q err=%v", stdout, err)
	}
}
