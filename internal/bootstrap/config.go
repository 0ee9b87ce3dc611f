package bootstrap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/nupi-ai/shellboot/internal/mode"
	"github.com/nupi-ai/shellboot/internal/plugins"
)

// DefaultTargetID is the mount target used when the page names none.
const DefaultTargetID = "ms-container"

// DefaultPluginsConfigKey selects the plugin configuration when neither the
// page nor the query names one.
const DefaultPluginsConfigKey = "dashboard"

// Navigation is the read-only navigation context of one application load.
type Navigation struct {
	URL      *url.URL
	Query    url.Values
	Viewport mode.Viewport
}

// ParseNavigation builds a navigation context from a raw URL.
func ParseNavigation(raw string, viewport mode.Viewport) (Navigation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Navigation{}, fmt.Errorf("bootstrap: parse navigation url: %w", err)
	}
	return Navigation{URL: u, Query: u.Query(), Viewport: viewport}, nil
}

// PageConfig describes the page the shell is mounted on.
type PageConfig struct {
	ResourceID       *string `json:"resourceId,omitempty"`
	IsEmbed          bool    `json:"isEmbed"`
	PluginsConfigKey string  `json:"pluginsConfigKey,omitempty"`
	TargetID         string  `json:"targetId,omitempty"`
}

// UnmarshalJSON accepts numeric and string resource ids.
func (p *PageConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		ResourceID       json.RawMessage `json:"resourceId"`
		IsEmbed          bool            `json:"isEmbed"`
		PluginsConfigKey string          `json:"pluginsConfigKey"`
		TargetID         string          `json:"targetId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("page config: %w", err)
	}
	id, err := decodeResourceID(raw.ResourceID)
	if err != nil {
		return err
	}
	*p = PageConfig{
		ResourceID:       id,
		IsEmbed:          raw.IsEmbed,
		PluginsConfigKey: raw.PluginsConfigKey,
		TargetID:         raw.TargetID,
	}
	return nil
}

func decodeResourceID(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var id string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, fmt.Errorf("page config: resourceId: %w", err)
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("page config: resourceId must be a string or number")
		}
		id = n.String()
	}
	return &id, nil
}

// InitialState holds the state seed shipped with the configuration.
type InitialState struct {
	DefaultState map[string]any `json:"defaultState,omitempty"`
}

// LocalConfig is the configuration payload fetched at startup.
type LocalConfig struct {
	Plugins               map[string]plugins.ConfigMap `json:"plugins,omitempty"`
	PluginsConfigOverride map[string][]plugins.Entry   `json:"pluginsConfigOverride,omitempty"`
	Epics                 []string                     `json:"epics,omitempty"`
	InitialState          InitialState                 `json:"initialState"`
	Settings              map[string]any               `json:"geoNodeSettings,omitempty"`
	Configuration         map[string]any               `json:"geoNodeConfiguration,omitempty"`
	PageConfig            PageConfig                   `json:"geoNodePageConfig"`
}

// Account is the signed-in user. A nil *Account is the anonymous user.
type Account struct {
	PK          int64          `json:"pk"`
	Username    string         `json:"username"`
	FirstName   string         `json:"first_name,omitempty"`
	LastName    string         `json:"last_name,omitempty"`
	IsSuperuser bool           `json:"is_superuser"`
	IsStaff     bool           `json:"is_staff"`
	Perms       []string       `json:"perms,omitempty"`
	AccessToken string         `json:"access_token,omitempty"`
	Info        map[string]any `json:"info,omitempty"`
}

// Role returns the security role of the account.
func (a *Account) Role() string {
	switch {
	case a == nil:
		return "GUEST"
	case a.IsSuperuser:
		return "ADMIN"
	default:
		return "USER"
	}
}
