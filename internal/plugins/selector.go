package plugins

import "github.com/nupi-ai/shellboot/internal/mode"

const mobileSuffix = "_mobile"

// Selector picks the plugin entries of a page.
type Selector struct {
	// MobileCapable is set when the configuration ships mobile variants.
	MobileCapable bool
}

// Select returns the ordered entries for page name. A flat map is returned
// as is. A missing page yields an empty list, never an error.
func (s Selector) Select(name string, cfg ConfigMap, m mode.Mode) []Entry {
	switch {
	case cfg.Absent():
		return []Entry{}
	case cfg.IsFlat():
		return nonNil(cfg.Entries())
	}
	if s.MobileCapable && m == mode.Mobile {
		if entries, ok := cfg.Page(name + mobileSuffix); ok {
			return nonNil(entries)
		}
	}
	if entries, ok := cfg.Page(name); ok {
		return nonNil(entries)
	}
	return []Entry{}
}

func nonNil(entries []Entry) []Entry {
	if entries == nil {
		return []Entry{}
	}
	return entries
}
