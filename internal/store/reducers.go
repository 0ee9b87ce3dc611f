package store

import (
	"github.com/nupi-ai/shellboot/internal/actions"
	"github.com/nupi-ai/shellboot/internal/util/maps"
)

// Slice names of the default registry.
const (
	SliceControls  = "controls"
	SliceDashboard = "dashboard"
	SliceResource  = "gnresource"
	SliceSettings  = "gnsettings"
	SliceSecurity  = "security"
	SliceMapType   = "maptype"
	SliceWidgets   = "widgets"
)

// DefaultMapType seeds the maptype slice.
const DefaultMapType = "openlayers"

const (
	mapTypeKey      = "mapType"
	widgetsKey      = "widgets"
	resourceDataKey = "data"
)

// DefaultReducers returns the slice registry of the dashboard shell.
func DefaultReducers() Reducers {
	return Reducers{
		SliceControls:  controls,
		SliceDashboard: dashboard,
		SliceResource:  gnresource,
		SliceSettings:  gnsettings,
		SliceSecurity:  keep,
		SliceMapType:   maptype,
		SliceWidgets:   widgets,
	}
}

func keep(slice any, _ actions.Action) any { return slice }

func asMap(slice any) map[string]any {
	m, _ := slice.(map[string]any)
	return m
}

// with returns a copy of m with key set to value.
func with(m map[string]any, key string, value any) map[string]any {
	out := maps.Clone(m)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out[key] = value
	return out
}

func controls(slice any, action actions.Action) any {
	p, ok := action.Payload.(actions.ControlProperty)
	if action.Type != actions.TypeSetControlProperty || !ok || p.Control == "" {
		return slice
	}
	state := asMap(slice)
	control := with(asMap(state[p.Control]), p.Property, p.Value)
	return with(state, p.Control, control)
}

func gnsettings(slice any, action actions.Action) any {
	if action.Type != actions.TypeUpdateSettings {
		return slice
	}
	settings, _ := action.Payload.(map[string]any)
	out := maps.Clone(settings)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func maptype(slice any, _ actions.Action) any {
	state := asMap(slice)
	if _, ok := state[mapTypeKey]; ok {
		return slice
	}
	return with(state, mapTypeKey, DefaultMapType)
}

func gnresource(slice any, action actions.Action) any {
	switch action.Type {
	case actions.TypeRequestResourceConfig:
		req, ok := action.Payload.(actions.ResourceRequest)
		if !ok {
			return slice
		}
		return map[string]any{
			"type":     string(req.ResourceType),
			"id":       req.ResourceID,
			"readOnly": req.ReadOnly,
			"loading":  true,
		}
	case actions.TypeResourceConfigLoaded:
		cfg, ok := action.Payload.(actions.ResourceConfig)
		if !ok {
			return slice
		}
		return map[string]any{
			"type":          string(cfg.ResourceType),
			"id":            cfg.ResourceID,
			"readOnly":      cfg.ReadOnly,
			"loading":       false,
			resourceDataKey: maps.Clone(cfg.Data),
		}
	case actions.TypeResourceConfigFailed:
		f, ok := action.Payload.(actions.ResourceFailure)
		if !ok {
			return slice
		}
		state := with(asMap(slice), "loading", false)
		state["error"] = f.Error
		return state
	}
	return slice
}

func dashboard(slice any, action actions.Action) any {
	cfg, ok := loadedDashboard(action)
	if !ok {
		return slice
	}
	state := with(asMap(slice), "resource", map[string]any{
		"id":       cfg.ResourceID,
		"canEdit":  !cfg.ReadOnly,
		"metadata": cfg.Data["metadata"],
	})
	return state
}

func widgets(slice any, action actions.Action) any {
	cfg, ok := loadedDashboard(action)
	if !ok {
		return slice
	}
	list, _ := cfg.Data[widgetsKey].([]any)
	if list == nil {
		list = []any{}
	}
	return with(asMap(slice), "containers", map[string]any{
		"floating": map[string]any{widgetsKey: list},
	})
}

func loadedDashboard(action actions.Action) (actions.ResourceConfig, bool) {
	if action.Type != actions.TypeResourceConfigLoaded {
		return actions.ResourceConfig{}, false
	}
	cfg, ok := action.Payload.(actions.ResourceConfig)
	if !ok || cfg.ResourceType != actions.ResourceDashboard {
		return actions.ResourceConfig{}, false
	}
	return cfg, true
}
