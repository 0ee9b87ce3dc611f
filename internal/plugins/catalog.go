package plugins

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Catalog holds the plugin definitions known to the shell, static and lazy.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]Descriptor
}

// NewCatalog creates a catalog from descriptors. Later duplicates win.
func NewCatalog(descs ...Descriptor) *Catalog {
	c := &Catalog{defs: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if d.name != "" {
			c.defs[d.name] = d
		}
	}
	return c
}

// Register adds or replaces a definition.
func (c *Catalog) Register(d Descriptor) error {
	if strings.TrimSpace(d.name) == "" {
		return fmt.Errorf("plugins: descriptor name is required")
	}
	switch d.kind {
	case KindStatic:
		if d.plugin == nil {
			return fmt.Errorf("plugins: static descriptor %s has no plugin", d.name)
		}
	case KindLazy:
		if d.loader == nil {
			return fmt.Errorf("plugins: lazy descriptor %s has no loader", d.name)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.defs == nil {
		c.defs = make(map[string]Descriptor)
	}
	c.defs[d.name] = d
	return nil
}

// Lookup returns the definition registered under name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[name]
	return d, ok
}

// Names returns the registered names in lexical order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors binds configuration entries to definitions, in entry order.
// Entries without a definition are skipped; repeated names keep the first.
func (c *Catalog) Descriptors(entries []Entry) []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Descriptor, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Name]; dup {
			continue
		}
		d, ok := c.defs[e.Name]
		if !ok {
			continue
		}
		seen[e.Name] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Missing returns the entry names that have no definition.
func (c *Catalog) Missing(entries []Entry) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var missing []string
	for _, e := range entries {
		if _, ok := c.defs[e.Name]; !ok {
			missing = append(missing, e.Name)
		}
	}
	return missing
}
