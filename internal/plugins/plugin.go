package plugins

import (
	"context"
	"errors"
)

// ErrNilPlugin is reported when a loader settles without a plugin.
var ErrNilPlugin = errors.New("plugins: loader returned nil plugin")

// Plugin is one extension unit of the shell.
type Plugin interface {
	Name() string
}

// Renderer is implemented by plugins that produce markup for a page.
type Renderer interface {
	Render(props map[string]any) (string, error)
}

// Loader produces a plugin asynchronously.
type Loader func(ctx context.Context) (Plugin, error)

// Kind tags the variant held by a Descriptor.
type Kind int

const (
	// KindStatic plugins are usable immediately.
	KindStatic Kind = iota
	// KindLazy plugins must be loaded before use.
	KindLazy
)

func (k Kind) String() string {
	if k == KindLazy {
		return "lazy"
	}
	return "static"
}

// Descriptor identifies one extension unit. It holds either a plugin that is
// already available or a loader that produces it. Descriptors are values;
// their identity is the name.
type Descriptor struct {
	name     string
	kind     Kind
	plugin   Plugin
	loader   Loader
	override bool
}

// LazyOption customises a lazy descriptor.
type LazyOption func(*Descriptor)

// WithOverride lets the loaded plugin replace a static plugin of the same name.
func WithOverride() LazyOption {
	return func(d *Descriptor) {
		d.override = true
	}
}

// Static describes a plugin that is available immediately.
func Static(name string, p Plugin) Descriptor {
	return Descriptor{name: name, kind: KindStatic, plugin: p}
}

// Lazy describes a plugin produced by loader on demand.
func Lazy(name string, loader Loader, opts ...LazyOption) Descriptor {
	d := Descriptor{name: name, kind: KindLazy, loader: loader}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Name returns the plugin name.
func (d Descriptor) Name() string { return d.name }

// Kind returns the descriptor variant.
func (d Descriptor) Kind() Kind { return d.kind }

// Plugin returns the static plugin, or nil for lazy descriptors.
func (d Descriptor) Plugin() Plugin { return d.plugin }

// Overrides reports whether a lazy result may replace a static plugin.
func (d Descriptor) Overrides() bool { return d.override }

// Component is a static plugin described only by its name and properties.
type Component struct {
	ID    string
	Props map[string]any
}

// Name implements Plugin.
func (c Component) Name() string { return c.ID }
