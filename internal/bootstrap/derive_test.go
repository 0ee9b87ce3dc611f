package bootstrap_test

import (
	"encoding/json"
	"testing"

	"github.com/nupi-ai/shellboot/internal/actions"
	"github.com/nupi-ai/shellboot/internal/bootstrap"
	"github.com/nupi-ai/shellboot/internal/mode"
)

func TestDeriveKeysAndTarget(t *testing.T) {
	t.Parallel()

	cfg := bootstrap.LocalConfig{PageConfig: bootstrap.PageConfig{PluginsConfigKey: "dashboard_embed", TargetID: "app"}}

	rc, err := bootstrap.Derive(navigation(t, "/?mode=embedded"), cfg, nil)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if rc.PluginsConfigKey != "dashboard_embed" || rc.TargetID != "app" || rc.Mode != mode.Embedded {
		t.Fatalf("unexpected runtime configuration %+v", rc)
	}

	rc, err = bootstrap.Derive(navigation(t, "/?config=map_viewer"), cfg, nil)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if rc.PluginsConfigKey != "map_viewer" {
		t.Fatalf("query key should win, got %q", rc.PluginsConfigKey)
	}

	if _, err := bootstrap.Derive(navigation(t, "/?config=../etc"), cfg, nil); err == nil {
		t.Fatal("expected invalid key error")
	}
}

func TestDeriveRequestsDefinedEmptyResourceID(t *testing.T) {
	t.Parallel()

	var cfg bootstrap.LocalConfig
	if err := json.Unmarshal([]byte(`{"geoNodePageConfig":{"resourceId":"","isEmbed":true}}`), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rc, err := bootstrap.Derive(navigation(t, "/"), cfg, nil)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if rc.ResourceID == nil || *rc.ResourceID != "" {
		t.Fatalf("expected defined empty id, got %v", rc.ResourceID)
	}
	if len(rc.InitialActions) != 2 {
		t.Fatalf("expected settings and resource request, got %d actions", len(rc.InitialActions))
	}
	req, ok := rc.InitialActions[1].Payload.(actions.ResourceRequest)
	if !ok || rc.InitialActions[1].Type != actions.TypeRequestResourceConfig {
		t.Fatalf("unexpected second action %+v", rc.InitialActions[1])
	}
	if req.ResourceID != "" || !req.ReadOnly {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestDeriveNullResourceIDSkipsRequest(t *testing.T) {
	t.Parallel()

	var cfg bootstrap.LocalConfig
	if err := json.Unmarshal([]byte(`{"geoNodePageConfig":{"resourceId":null}}`), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rc, err := bootstrap.Derive(navigation(t, "/"), cfg, nil)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if rc.ResourceID != nil || len(rc.InitialActions) != 1 {
		t.Fatalf("null id should not request a resource: %v, %d actions", rc.ResourceID, len(rc.InitialActions))
	}
}

func TestDeriveDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	settings := map[string]any{"nested": map[string]any{"a": 1}}
	nav := navigation(t, "/?x=1")
	rc, err := bootstrap.Derive(nav, bootstrap.LocalConfig{Settings: settings}, nil)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	rc.Settings["nested"].(map[string]any)["a"] = 2
	rc.Query.Set("x", "2")

	if settings["nested"].(map[string]any)["a"] != 1 || nav.Query.Get("x") != "1" {
		t.Fatalf("runtime configuration aliases its inputs")
	}
}

func TestDeriveOnStoreInit(t *testing.T) {
	t.Parallel()

	rc, err := bootstrap.Derive(navigation(t, "/"), bootstrap.LocalConfig{}, nil)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	var got []string
	rc.OnStoreInit(func(a actions.Action) { got = append(got, string(a.Type)) })
	if len(got) != 1 || got[0] != string(actions.TypeStoreInit) {
		t.Fatalf("store init dispatched %v", got)
	}
}

func TestPageConfigResourceID(t *testing.T) {
	t.Parallel()

	tests := map[string]*string{
		`{"resourceId": 12}`:   strPtr("12"),
		`{"resourceId": "ab"}`: strPtr("ab"),
		`{"resourceId": null}`: nil,
		`{}`:                   nil,
	}
	for raw, want := range tests {
		var page bootstrap.PageConfig
		if err := json.Unmarshal([]byte(raw), &page); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		switch {
		case want == nil && page.ResourceID != nil:
			t.Fatalf("%s: expected nil id, got %q", raw, *page.ResourceID)
		case want != nil && (page.ResourceID == nil || *page.ResourceID != *want):
			t.Fatalf("%s: id = %v, want %q", raw, page.ResourceID, *want)
		}
	}

	var page bootstrap.PageConfig
	if err := json.Unmarshal([]byte(`{"resourceId": true}`), &page); err == nil {
		t.Fatal("expected error for boolean id")
	}
}
