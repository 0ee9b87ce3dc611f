package validate

import (
	"strings"
	"testing"
)

func TestHTTPURL(t *testing.T) {
	valid := []string{
		"http://localhost:8000",
		"https://example.com/static/mapstore/configs/localConfig.json",
	}
	for _, u := range valid {
		if err := HTTPURL(u); err != nil {
			t.Errorf("HTTPURL(%q) = %v, want nil", u, err)
		}
	}

	tests := []struct {
		url    string
		errMsg string
	}{
		{"file:///etc/passwd", "not allowed"},
		{"javascript:alert(1)", "not allowed"},
		{"example.com/path", "missing scheme"},
		{"http://", "missing host"},
	}
	for _, tt := range tests {
		err := HTTPURL(tt.url)
		if err == nil {
			t.Errorf("HTTPURL(%q) = nil, want error containing %q", tt.url, tt.errMsg)
			continue
		}
		if !strings.Contains(err.Error(), tt.errMsg) {
			t.Errorf("HTTPURL(%q) = %v, want error containing %q", tt.url, err, tt.errMsg)
		}
	}
}

func TestIdent(t *testing.T) {
	for _, s := range []string{"ms-container", "dashboard_embed", "map.viewer", "a"} {
		if !Ident(s) {
			t.Errorf("Ident(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "-lead", "../etc", "has space", strings.Repeat("a", MaxIdentLen+1)} {
		if Ident(s) {
			t.Errorf("Ident(%q) = true, want false", s)
		}
	}
}
