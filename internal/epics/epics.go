// Package epics holds the asynchronous processors that react to dispatched
// actions, and the bookkeeping that keeps each processor registered once.
package epics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nupi-ai/shellboot/internal/actions"
)

// Dispatch sends an action to the store.
type Dispatch func(actions.Action)

// StateGetter returns a snapshot of the store state.
type StateGetter func() map[string]any

// Epic reacts to one action. It may dispatch follow-up actions.
type Epic func(ctx context.Context, action actions.Action, state StateGetter, dispatch Dispatch)

// Set maps processor names to processors.
type Set map[string]Epic

// Names is a set of processor names.
type Names map[string]struct{}

// NewNames builds a name set.
func NewNames(names ...string) Names {
	out := make(Names, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// Has reports whether name is in the set.
func (n Names) Has(name string) bool {
	_, ok := n[name]
	return ok
}

// Sorted returns the names in lexical order.
func (n Names) Sorted() []string {
	out := make([]string, 0, len(n))
	for name := range n {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Names returns the sorted processor names of the set.
func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Merge combines two processor sources. On a name clash the incoming
// processor wins. Names already in excluded are dropped, and the returned
// exclusion set contains every merged name so a later merge cannot register
// them again. Inputs are not modified.
func Merge(existing, incoming Set, excluded Names) (Set, Names) {
	merged := make(Set, len(existing)+len(incoming))
	for name, epic := range existing {
		if epic != nil {
			merged[name] = epic
		}
	}
	for name, epic := range incoming {
		if epic != nil {
			merged[name] = epic
		}
	}
	for name := range merged {
		if excluded.Has(name) {
			delete(merged, name)
		}
	}

	updated := make(Names, len(excluded)+len(merged))
	for name := range excluded {
		updated[name] = struct{}{}
	}
	for name := range merged {
		updated[name] = struct{}{}
	}
	return merged, updated
}

// Registry holds the processors a fetched configuration may enable by name.
type Registry struct {
	mu    sync.RWMutex
	epics Set
}

// NewRegistry creates a registry seeded with set.
func NewRegistry(set Set) *Registry {
	r := &Registry{epics: make(Set, len(set))}
	for name, epic := range set {
		r.epics[name] = epic
	}
	return r
}

// Register adds or replaces a named processor.
func (r *Registry) Register(name string, epic Epic) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("epics: name is required")
	}
	if epic == nil {
		return fmt.Errorf("epics: %s: nil processor", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epics == nil {
		r.epics = make(Set)
	}
	r.epics[name] = epic
	return nil
}

// Resolve returns the processors named in names and the names it does not know.
func (r *Registry) Resolve(names []string) (Set, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(Set, len(names))
	var missing []string
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		epic, ok := r.epics[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		out[name] = epic
	}
	return out, missing
}
