package plugins_test

import (
	"reflect"
	"testing"

	"github.com/nupi-ai/shellboot/internal/mode"
	"github.com/nupi-ai/shellboot/internal/plugins"
)

func names(entries []plugins.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestSelectorSelect(t *testing.T) {
	t.Parallel()

	paged := plugins.Paged(map[string][]plugins.Entry{
		"dashboard":        {{Name: "Toolbar"}, {Name: "Share"}},
		"dashboard_mobile": {{Name: "Toolbar"}},
		"map":              {{Name: "Map"}},
	})
	flat := plugins.Flat(plugins.Entry{Name: "A"}, plugins.Entry{Name: "B"})

	tests := []struct {
		name     string
		selector plugins.Selector
		page     string
		cfg      plugins.ConfigMap
		mode     mode.Mode
		want     []string
	}{
		{name: "absent", page: "dashboard", cfg: plugins.ConfigMap{}, mode: mode.Desktop, want: []string{}},
		{name: "flat ignores page", page: "anything", cfg: flat, mode: mode.Mobile, want: []string{"A", "B"}},
		{name: "desktop page", page: "dashboard", cfg: paged, mode: mode.Desktop, want: []string{"Toolbar", "Share"}},
		{name: "mobile not capable", page: "dashboard", cfg: paged, mode: mode.Mobile, want: []string{"Toolbar", "Share"}},
		{
			name:     "mobile variant",
			selector: plugins.Selector{MobileCapable: true},
			page:     "dashboard", cfg: paged, mode: mode.Mobile,
			want: []string{"Toolbar"},
		},
		{
			name:     "mobile falls back to page",
			selector: plugins.Selector{MobileCapable: true},
			page:     "map", cfg: paged, mode: mode.Mobile,
			want: []string{"Map"},
		},
		{
			name:     "embedded uses page",
			selector: plugins.Selector{MobileCapable: true},
			page:     "dashboard", cfg: paged, mode: mode.Embedded,
			want: []string{"Toolbar", "Share"},
		},
		{name: "unknown page", page: "geostory", cfg: paged, mode: mode.Desktop, want: []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.selector.Select(tt.page, tt.cfg, tt.mode)
			if got == nil {
				t.Fatalf("Select returned nil")
			}
			if !reflect.DeepEqual(names(got), tt.want) {
				t.Fatalf("Select = %v, want %v", names(got), tt.want)
			}
		})
	}
}

func TestSelectDoesNotAliasConfig(t *testing.T) {
	t.Parallel()

	cfg := plugins.Flat(plugins.Entry{Name: "A"})
	got := plugins.Selector{}.Select("x", cfg, mode.Desktop)
	got[0].Name = "mutated"

	if again := cfg.Entries(); again[0].Name != "A" {
		t.Fatalf("configuration was mutated: %v", again)
	}
}
