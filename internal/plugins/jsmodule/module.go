// Package jsmodule evaluates CommonJS plugin modules with goja.
package jsmodule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/nupi-ai/shellboot/internal/plugins"
)

// Plugin is a shell plugin backed by a JS module.
type Plugin struct {
	name     string
	path     string
	defaults map[string]any

	mu     sync.Mutex
	vm     *goja.Runtime
	render goja.Callable
}

// Name implements plugins.Plugin.
func (p *Plugin) Name() string { return p.name }

// Path returns the file the module was loaded from.
func (p *Plugin) Path() string { return p.path }

// Defaults returns the cfg block exported by the module.
func (p *Plugin) Defaults() map[string]any {
	out := make(map[string]any, len(p.defaults))
	for k, v := range p.defaults {
		out[k] = v
	}
	return out
}

// Render calls the exported render function with props merged over the
// module defaults. Modules without a render function render nothing.
func (p *Plugin) Render(props map[string]any) (string, error) {
	if p.render == nil {
		return "", nil
	}
	merged := p.Defaults()
	for k, v := range props {
		merged[k] = v
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out, err := p.render(goja.Undefined(), p.vm.ToValue(merged))
	if err != nil {
		return "", fmt.Errorf("jsmodule %s: render: %w", p.name, err)
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return "", nil
	}
	return out.String(), nil
}

// Load reads and evaluates the module at path. Evaluation is interrupted
// when ctx is done.
func Load(ctx context.Context, path string) (*Plugin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jsmodule: read %s: %w", path, err)
	}

	vm := goja.New()
	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("jsmodule: prepare %s: %w", path, err)
	}
	if err := vm.Set("module", module); err != nil {
		return nil, fmt.Errorf("jsmodule: prepare %s: %w", path, err)
	}
	if err := vm.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("jsmodule: prepare %s: %w", path, err)
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt("context done")
	})
	_, runErr := vm.RunString(string(data))
	stop()
	vm.ClearInterrupt()
	if runErr != nil {
		return nil, fmt.Errorf("jsmodule: execute %s: %w", path, runErr)
	}

	exported := module.Get("exports")
	if exported == nil || goja.IsUndefined(exported) || goja.IsNull(exported) {
		return nil, fmt.Errorf("jsmodule: %s: module.exports is empty", path)
	}
	obj := exported.ToObject(vm)

	plugin := &Plugin{
		path: path,
		vm:   vm,
		name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}
	if name := obj.Get("name"); present(name) {
		plugin.name = name.String()
	}
	if cfg := obj.Get("cfg"); present(cfg) {
		if m, ok := cfg.Export().(map[string]interface{}); ok {
			plugin.defaults = m
		}
	}
	if render := obj.Get("render"); present(render) {
		fn, ok := goja.AssertFunction(render)
		if !ok {
			return nil, fmt.Errorf("jsmodule %s: render must be a function", path)
		}
		plugin.render = fn
	}

	return plugin, nil
}

// Loader returns a lazy loader for the module at path. The module must
// declare the expected plugin name, or none at all.
func Loader(path, name string) plugins.Loader {
	return func(ctx context.Context) (plugins.Plugin, error) {
		p, err := Load(ctx, path)
		if err != nil {
			return nil, err
		}
		if p.name != name && p.name != strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) {
			return nil, fmt.Errorf("jsmodule %s: exports name %q, expected %q", path, p.name, name)
		}
		p.name = name
		return p, nil
	}
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
