package bootstrap

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nupi-ai/shellboot/internal/actions"
	"github.com/nupi-ai/shellboot/internal/epics"
	"github.com/nupi-ai/shellboot/internal/mode"
	"github.com/nupi-ai/shellboot/internal/store"
	"github.com/nupi-ai/shellboot/internal/util/maps"
	"github.com/nupi-ai/shellboot/internal/validate"
)

// QueryConfigKey names the query parameter that selects the plugin
// configuration key.
const QueryConfigKey = "config"

const mobileSettingKey = "isMobile"

// RuntimeConfiguration is the application wiring derived from the fetched
// configuration. It is built once per load and not mutated afterwards.
type RuntimeConfiguration struct {
	TargetID         string
	InitialState     map[string]any
	InitialActions   []actions.Action
	PluginsConfigKey string
	IsEmbed          bool
	ResourceID       *string
	Query            url.Values
	Mode             mode.Mode
	MobileCapable    bool
	Settings         map[string]any
	Configuration    map[string]any
	ConfigEpics      []string
	OnStoreInit      func(dispatch epics.Dispatch)
}

// Derive turns the fetched payloads into the runtime configuration. It is
// deterministic apart from the ids of the initial actions.
func Derive(nav Navigation, cfg LocalConfig, account *Account) (RuntimeConfiguration, error) {
	query := cloneQuery(nav.Query)
	page := cfg.PageConfig

	key := DefaultPluginsConfigKey
	if k := strings.TrimSpace(page.PluginsConfigKey); k != "" {
		key = k
	}
	if k := strings.TrimSpace(query.Get(QueryConfigKey)); k != "" {
		key = k
	}
	if !validate.Ident(key) {
		return RuntimeConfiguration{}, fmt.Errorf("bootstrap: derive: invalid plugins config key %q", key)
	}

	target := DefaultTargetID
	if t := strings.TrimSpace(page.TargetID); t != "" {
		target = t
	}
	if !validate.Ident(target) {
		return RuntimeConfiguration{}, fmt.Errorf("bootstrap: derive: invalid mount target %q", target)
	}

	// A defined id is requested as is, even when empty; null counts as absent.
	var resourceID *string
	if page.ResourceID != nil {
		id := *page.ResourceID
		resourceID = &id
	}

	settings := maps.DeepClone(cfg.Settings)
	if settings == nil {
		settings = map[string]any{}
	}
	mobileCapable, _ := settings[mobileSettingKey].(bool)
	m := mode.Resolve(query, nav.Viewport)

	initialActions := []actions.Action{actions.UpdateSettings(maps.DeepClone(settings))}
	if resourceID != nil {
		initialActions = append(initialActions,
			actions.RequestResourceConfig(actions.ResourceDashboard, *resourceID, page.IsEmbed))
	}

	configuration := maps.DeepClone(cfg.Configuration)
	rc := RuntimeConfiguration{
		TargetID:         target,
		InitialState:     initialState(cfg.InitialState, account),
		InitialActions:   initialActions,
		PluginsConfigKey: key,
		IsEmbed:          page.IsEmbed,
		ResourceID:       resourceID,
		Query:            query,
		Mode:             m,
		MobileCapable:    mobileCapable,
		Settings:         settings,
		Configuration:    configuration,
		ConfigEpics:      uniqueNames(cfg.Epics),
	}
	rc.OnStoreInit = func(dispatch epics.Dispatch) {
		dispatch(actions.New(actions.TypeStoreInit, map[string]any{
			"targetId":      target,
			"mode":          string(m),
			"configuration": maps.DeepClone(configuration),
		}))
	}
	return rc, nil
}

func initialState(seed InitialState, account *Account) map[string]any {
	state := maps.DeepClone(seed.DefaultState)
	if state == nil {
		state = make(map[string]any)
	}
	if _, ok := state[store.SliceMapType]; !ok {
		state[store.SliceMapType] = map[string]any{"mapType": store.DefaultMapType}
	}
	if account != nil {
		state[store.SliceSecurity] = map[string]any{
			"user": map[string]any{
				"pk":        account.PK,
				"name":      account.Username,
				"role":      account.Role(),
				"superuser": account.IsSuperuser,
				"perms":     append([]string(nil), account.Perms...),
				"info":      maps.DeepClone(account.Info),
			},
			"token": account.AccessToken,
		}
	}
	return state
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func uniqueNames(names []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
