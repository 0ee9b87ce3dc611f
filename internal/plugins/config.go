package plugins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Entry is one plugin configuration item. In JSON it is either a bare name
// or an object with a name and a cfg block.
type Entry struct {
	Name string         `json:"name"`
	Cfg  map[string]any `json:"cfg,omitempty"`
}

// UnmarshalJSON accepts "Name" and {"name": "Name", "cfg": {...}}.
func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*e = Entry{Name: name}
		return nil
	}
	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("plugin entry: %w", err)
	}
	*e = Entry(p)
	return nil
}

type layout int

const (
	layoutAbsent layout = iota
	layoutFlat
	layoutPaged
)

// ConfigMap is the plugin configuration of one configuration key. It is
// either a flat list that applies to every page, or a set of lists keyed by
// page name, where "{page}_mobile" holds the mobile variant.
type ConfigMap struct {
	layout layout
	flat   []Entry
	pages  map[string][]Entry
}

// Flat builds a flat configuration map.
func Flat(entries ...Entry) ConfigMap {
	return ConfigMap{layout: layoutFlat, flat: cloneEntries(entries)}
}

// Paged builds a page-keyed configuration map.
func Paged(pages map[string][]Entry) ConfigMap {
	out := ConfigMap{layout: layoutPaged, pages: make(map[string][]Entry, len(pages))}
	for name, entries := range pages {
		out.pages[name] = cloneEntries(entries)
	}
	return out
}

// Absent reports whether no configuration was provided.
func (m ConfigMap) Absent() bool { return m.layout == layoutAbsent }

// IsFlat reports whether the map is a global list.
func (m ConfigMap) IsFlat() bool { return m.layout == layoutFlat }

// Entries returns the flat list. It is nil for page-keyed maps.
func (m ConfigMap) Entries() []Entry { return cloneEntries(m.flat) }

// Page returns the entries stored under key.
func (m ConfigMap) Page(key string) ([]Entry, bool) {
	entries, ok := m.pages[key]
	if !ok {
		return nil, false
	}
	return cloneEntries(entries), true
}

// PageNames returns the page keys in lexical order.
func (m ConfigMap) PageNames() []string {
	names := make([]string, 0, len(m.pages))
	for name := range m.pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON decodes null, an array or an object.
func (m *ConfigMap) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*m = ConfigMap{}
	case data[0] == '[':
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("plugins config: %w", err)
		}
		*m = ConfigMap{layout: layoutFlat, flat: entries}
	case data[0] == '{':
		var pages map[string][]Entry
		if err := json.Unmarshal(data, &pages); err != nil {
			return fmt.Errorf("plugins config: %w", err)
		}
		*m = ConfigMap{layout: layoutPaged, pages: pages}
	default:
		return fmt.Errorf("plugins config: expected array or object")
	}
	return nil
}

// MarshalJSON mirrors UnmarshalJSON.
func (m ConfigMap) MarshalJSON() ([]byte, error) {
	switch m.layout {
	case layoutFlat:
		if m.flat == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(m.flat)
	case layoutPaged:
		return json.Marshal(m.pages)
	default:
		return []byte("null"), nil
	}
}

// ForKey returns the configuration stored under key, or an absent map.
func ForKey(sources map[string]ConfigMap, key string) ConfigMap {
	cfg, ok := sources[key]
	if !ok {
		return ConfigMap{}
	}
	return cfg
}

// OverrideAll is the override key that applies to every page.
const OverrideAll = "*"

// ApplyOverrides returns a copy of cfg where each override entry replaces the
// entry of the same name, or is appended when the page has none. Overrides
// keyed by OverrideAll apply to every page and to flat maps; other keys apply
// to the page of the same name.
func ApplyOverrides(cfg ConfigMap, overrides map[string][]Entry) ConfigMap {
	if len(overrides) == 0 || cfg.Absent() {
		return cfg
	}
	global := overrides[OverrideAll]
	if cfg.IsFlat() {
		return Flat(upsert(cfg.flat, global)...)
	}
	pages := make(map[string][]Entry, len(cfg.pages))
	for name, entries := range cfg.pages {
		merged := upsert(entries, global)
		pages[name] = upsert(merged, overrides[name])
	}
	return Paged(pages)
}

// AddQueryPlugins appends the plugins requested through the "plugins" query
// parameter to every list of cfg. The value is a JSON array of entries or a
// comma separated list of names. Entries already present are left alone.
func AddQueryPlugins(cfg ConfigMap, query url.Values) ConfigMap {
	if cfg.Absent() {
		return cfg
	}
	extra := QueryPlugins(query)
	if len(extra) == 0 {
		return cfg
	}
	if cfg.IsFlat() {
		return Flat(appendMissing(cfg.flat, extra)...)
	}
	pages := make(map[string][]Entry, len(cfg.pages))
	for name, entries := range cfg.pages {
		pages[name] = appendMissing(entries, extra)
	}
	return Paged(pages)
}

// QueryPlugins parses the "plugins" query parameter. Invalid values yield nil.
func QueryPlugins(query url.Values) []Entry {
	raw := strings.TrimSpace(query.Get("plugins"))
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var entries []Entry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil
		}
		return entries
	}
	var entries []Entry
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			entries = append(entries, Entry{Name: name})
		}
	}
	return entries
}

func upsert(entries, overrides []Entry) []Entry {
	out := cloneEntries(entries)
	if out == nil {
		out = []Entry{}
	}
	for _, o := range overrides {
		replaced := false
		for i := range out {
			if out[i].Name == o.Name {
				out[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}

func appendMissing(entries, extra []Entry) []Entry {
	out := cloneEntries(entries)
	if out == nil {
		out = []Entry{}
	}
	for _, e := range extra {
		if !containsEntry(out, e.Name) {
			out = append(out, e)
		}
	}
	return out
}

func containsEntry(entries []Entry, name string) bool {
	for _, e := range entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

func cloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
