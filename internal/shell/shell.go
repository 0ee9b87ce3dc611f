// Package shell is the headless mount target of the bootstrap: it owns the
// store, runs the processors and resolves the plugins of the current page.
package shell

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"sync"

	"github.com/nupi-ai/shellboot/internal/actions"
	"github.com/nupi-ai/shellboot/internal/bootstrap"
	"github.com/nupi-ai/shellboot/internal/epics"
	"github.com/nupi-ai/shellboot/internal/eventbus"
	"github.com/nupi-ai/shellboot/internal/mode"
	"github.com/nupi-ai/shellboot/internal/plugins"
	"github.com/nupi-ai/shellboot/internal/store"
	"github.com/nupi-ai/shellboot/internal/util/maps"
)

// DefaultPage is the page shown right after mount.
const DefaultPage = "viewer"

// ErrNotMounted is returned by operations that need a mounted shell.
var ErrNotMounted = errors.New("shell: not mounted")

// Page is the observable view of the current page.
type Page struct {
	Target     string            `json:"target"`
	Name       string            `json:"name"`
	Mode       mode.Mode         `json:"mode"`
	Ready      bool              `json:"ready"`
	Generation uint64            `json:"generation"`
	Plugins    []string          `json:"plugins"`
	Missing    []string          `json:"missing,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
	Controls   map[string]any    `json:"controls,omitempty"`
	Markup     string            `json:"markup,omitempty"`
}

// Shell implements bootstrap.Mounter.
type Shell struct {
	logger      *log.Logger
	bus         *eventbus.Bus
	defaultPage string

	navMu sync.Mutex

	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	wiring   bootstrap.Wiring
	store    *store.Store
	resolver *plugins.Resolver
	selector plugins.Selector
	page     string
	mode     mode.Mode
	entries  []plugins.Entry
	missing  []string
	// gen is the resolver generation serving entries. It is zero while
	// Navigate has swapped entries but not yet handed them to the resolver.
	gen uint64
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger overrides the shell logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Shell) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBus shares bus with the store and the resolver.
func WithBus(bus *eventbus.Bus) Option {
	return func(s *Shell) {
		s.bus = bus
	}
}

// WithDefaultPage overrides the page shown after mount.
func WithDefaultPage(page string) Option {
	return func(s *Shell) {
		if page = strings.TrimSpace(page); page != "" {
			s.defaultPage = page
		}
	}
}

// New creates an unmounted shell.
func New(opts ...Option) *Shell {
	s := &Shell{
		logger:      log.Default(),
		defaultPage: DefaultPage,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount builds the store from w, dispatches the initial actions in order and
// resolves the plugins of the default page. A shell mounts once.
func (s *Shell) Mount(ctx context.Context, w bootstrap.Wiring) error {
	s.mu.Lock()
	if s.store != nil {
		s.mu.Unlock()
		return fmt.Errorf("shell: already mounted at %s", s.wiring.Runtime.TargetID)
	}
	if w.Catalog == nil {
		w.Catalog = plugins.NewCatalog()
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.wiring = w
	s.selector = plugins.Selector{MobileCapable: w.Runtime.MobileCapable}
	s.store = store.New(w.Reducers, w.Runtime.InitialState, store.WithBus(s.bus), store.WithLogger(s.logger))
	s.resolver = plugins.NewResolver(
		plugins.WithBus(s.bus),
		plugins.WithLogger(s.logger),
		plugins.WithScope(w.Runtime.TargetID),
	)
	st := s.store
	shellCtx := s.ctx
	s.mu.Unlock()

	st.Run(shellCtx, w.Epics)
	dispatch := epics.Dispatch(func(a actions.Action) { st.Dispatch(shellCtx, a) })
	if w.Runtime.OnStoreInit != nil {
		w.Runtime.OnStoreInit(dispatch)
	}
	for _, a := range w.Runtime.InitialActions {
		dispatch(a)
	}

	s.logger.Printf("[Shell] mounted at %s (%d plugin definitions)", w.Runtime.TargetID, len(w.Catalog.Names()))
	_, err := s.Navigate(s.defaultPage, w.Runtime.Mode)
	return err
}

// Navigate selects the plugins of page for mode m and hands them to the
// resolver. It returns the page as committed by the request: ready when every
// plugin was available immediately, pending otherwise.
func (s *Shell) Navigate(page string, m mode.Mode) (Page, error) {
	s.navMu.Lock()
	defer s.navMu.Unlock()

	s.mu.Lock()
	if s.store == nil {
		s.mu.Unlock()
		return Page{}, ErrNotMounted
	}
	if _, ok := mode.Parse(string(m)); !ok {
		m = s.wiring.Runtime.Mode
	}
	entries := s.selector.Select(page, s.wiring.PluginsConfig, m)
	descs := s.wiring.Catalog.Descriptors(entries)
	missing := s.wiring.Catalog.Missing(entries)
	s.page, s.mode, s.entries, s.missing = page, m, entries, missing
	s.gen = 0
	resolver, ctx := s.resolver, s.ctx
	s.mu.Unlock()

	if len(missing) > 0 {
		s.logger.Printf("[Shell] page %s: no definition for %s", page, strings.Join(missing, ", "))
	}
	st := resolver.Resolve(ctx, descs)

	s.mu.Lock()
	s.gen = st.Generation
	s.mu.Unlock()
	return s.Snapshot(), nil
}

// Wait blocks until the plugins of the current page settled.
func (s *Shell) Wait(ctx context.Context) (Page, error) {
	s.mu.RLock()
	resolver := s.resolver
	s.mu.RUnlock()
	if resolver == nil {
		return Page{}, ErrNotMounted
	}
	if _, err := resolver.Wait(ctx); err != nil {
		return Page{}, err
	}
	return s.Snapshot(), nil
}

// Snapshot returns the current page. Markup is rendered only once the page
// is ready.
func (s *Shell) Snapshot() Page {
	s.mu.RLock()
	if s.store == nil {
		s.mu.RUnlock()
		return Page{}
	}
	target := s.wiring.Runtime.TargetID
	name, m := s.page, s.mode
	entries := s.entries
	missing := append([]string(nil), s.missing...)
	resolver, st := s.resolver, s.store
	gen := s.gen
	s.mu.RUnlock()

	state := resolver.State()
	if gen == 0 || state.Generation != gen {
		state = plugins.State{Pending: true, Generation: state.Generation}
	}
	controls, _ := st.Slice(store.SliceControls)
	page := Page{
		Target:     target,
		Name:       name,
		Mode:       m,
		Ready:      !state.Pending,
		Generation: state.Generation,
		Plugins:    []string{},
		Missing:    missing,
		Failed:     state.Failed,
		Controls:   maps.DeepClone(asMap(controls)),
	}
	for _, e := range entries {
		if _, ok := state.Loaded[e.Name]; ok {
			page.Plugins = append(page.Plugins, e.Name)
		}
	}
	if page.Ready {
		page.Markup = s.render(page, entries, state, st)
	}
	return page
}

// Store returns the mounted store, or nil.
func (s *Shell) Store() *store.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// Runtime returns the runtime configuration the shell was mounted with.
func (s *Shell) Runtime() (bootstrap.RuntimeConfiguration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wiring.Runtime, s.store != nil
}

// Shutdown stops the processors of the shell.
func (s *Shell) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, st := s.cancel, s.store
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	cancel()
	return st.Stop(ctx)
}

func (s *Shell) render(page Page, entries []plugins.Entry, state plugins.State, st *store.Store) string {
	resourceURL := resourceURL(st)

	var b strings.Builder
	fmt.Fprintf(&b, `<div id="%s" data-page="%s" data-mode="%s">`,
		html.EscapeString(page.Target), html.EscapeString(page.Name), html.EscapeString(string(page.Mode)))
	for _, e := range entries {
		p, ok := state.Loaded[e.Name]
		if !ok {
			continue
		}
		r, ok := p.(plugins.Renderer)
		if !ok {
			fmt.Fprintf(&b, `<div data-plugin="%s"></div>`, html.EscapeString(e.Name))
			continue
		}
		props := maps.DeepClone(e.Cfg)
		if props == nil {
			props = make(map[string]any)
		}
		props["mode"] = string(page.Mode)
		if resourceURL != "" {
			props["resourceUrl"] = resourceURL
		}
		if ctrl, ok := page.Controls[strings.ToLower(e.Name)]; ok {
			props["control"] = ctrl
		}
		out, err := r.Render(props)
		if err != nil {
			s.logger.Printf("[Shell] render %s failed: %v", e.Name, err)
			continue
		}
		b.WriteString(out)
	}
	b.WriteString("</div>")
	return b.String()
}

func resourceURL(st *store.Store) string {
	res, _ := st.Slice(store.SliceResource)
	m := asMap(res)
	id, _ := m["id"].(string)
	rt, _ := m["type"].(string)
	if id == "" || rt == "" {
		return ""
	}
	return fmt.Sprintf("/catalogue/#/%s/%s", rt, id)
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
