// Package actions defines the messages dispatched through the shell store.
package actions

import (
	"github.com/google/uuid"
)

// Type names an action.
type Type string

const (
	TypeUpdateSettings        Type = "GEONODE:UPDATE_SETTINGS"
	TypeRequestResourceConfig Type = "GEONODE:REQUEST_RESOURCE_CONFIG"
	TypeResourceConfigLoaded  Type = "GEONODE:RESOURCE_CONFIG_LOADED"
	TypeResourceConfigFailed  Type = "GEONODE:RESOURCE_CONFIG_FAILED"
	TypeSetControlProperty    Type = "SET_CONTROL_PROPERTY"
	TypeStoreInit             Type = "SHELL:STORE_INIT"
)

// ResourceType names a persisted resource family.
type ResourceType string

const (
	ResourceDashboard ResourceType = "dashboard"
	ResourceMap       ResourceType = "map"
	ResourceGeoStory  ResourceType = "geostory"
	ResourceDataset   ResourceType = "dataset"
)

// Action is one state transition request.
type Action struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ResourceRequest is the payload of TypeRequestResourceConfig.
type ResourceRequest struct {
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"pk"`
	ReadOnly     bool         `json:"readOnly"`
}

// ResourceConfig is the payload of TypeResourceConfigLoaded.
type ResourceConfig struct {
	ResourceType ResourceType   `json:"resourceType"`
	ResourceID   string         `json:"pk"`
	ReadOnly     bool           `json:"readOnly"`
	Data         map[string]any `json:"data"`
}

// ResourceFailure is the payload of TypeResourceConfigFailed.
type ResourceFailure struct {
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"pk"`
	Error        string       `json:"error"`
}

// ControlProperty is the payload of TypeSetControlProperty.
type ControlProperty struct {
	Control  string `json:"control"`
	Property string `json:"property"`
	Value    any    `json:"value"`
}

// New builds an action with a fresh correlation id.
func New(t Type, payload any) Action {
	return Action{ID: uuid.NewString(), Type: t, Payload: payload}
}

// UpdateSettings stores global application settings in the state.
func UpdateSettings(settings map[string]any) Action {
	return New(TypeUpdateSettings, settings)
}

// RequestResourceConfig asks the resource domain to load a resource.
func RequestResourceConfig(rt ResourceType, id string, readOnly bool) Action {
	return New(TypeRequestResourceConfig, ResourceRequest{
		ResourceType: rt,
		ResourceID:   id,
		ReadOnly:     readOnly,
	})
}

// ResourceConfigLoaded carries a loaded resource configuration.
func ResourceConfigLoaded(cfg ResourceConfig) Action {
	return New(TypeResourceConfigLoaded, cfg)
}

// ResourceConfigFailed reports a resource that could not be loaded.
func ResourceConfigFailed(rt ResourceType, id string, err error) Action {
	return New(TypeResourceConfigFailed, ResourceFailure{
		ResourceType: rt,
		ResourceID:   id,
		Error:        err.Error(),
	})
}

// SetControlProperty toggles a UI control flag.
func SetControlProperty(control, property string, value any) Action {
	return New(TypeSetControlProperty, ControlProperty{
		Control:  control,
		Property: property,
		Value:    value,
	})
}
