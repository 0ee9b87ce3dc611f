package plugins

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/nupi-ai/shellboot/internal/eventbus"
)

// State is the resolved plugin set of one resolver.
type State struct {
	Pending    bool
	Loaded     map[string]Plugin
	Failed     map[string]string
	Generation uint64
}

// Names returns the loaded plugin names in lexical order.
func (s State) Names() []string {
	names := make([]string, 0, len(s.Loaded))
	for name := range s.Loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s State) clone() State {
	out := State{Pending: s.Pending, Generation: s.Generation}
	out.Loaded = make(map[string]Plugin, len(s.Loaded))
	for k, v := range s.Loaded {
		out.Loaded[k] = v
	}
	if len(s.Failed) > 0 {
		out.Failed = make(map[string]string, len(s.Failed))
		for k, v := range s.Failed {
			out.Failed[k] = v
		}
	}
	return out
}

// Resolved is published on the bus after every commit.
type Resolved struct {
	Scope string
	State State
}

// TopicResolved carries resolver commits.
var TopicResolved = eventbus.NewTopicDef[Resolved](eventbus.TopicPluginsResolved)

// Resolver turns descriptor lists into a loaded plugin map. Static
// descriptors resolve synchronously; lazy ones load concurrently and commit
// together once all have settled. Only the batch of the most recent request
// is ever committed.
type Resolver struct {
	logger *log.Logger
	bus    *eventbus.Bus
	scope  string

	mu      sync.Mutex
	latest  uint64
	key     string
	state   State
	changed chan struct{}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger overrides the logger used for load failures.
func WithLogger(logger *log.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBus publishes every commit on bus.
func WithBus(bus *eventbus.Bus) ResolverOption {
	return func(r *Resolver) {
		r.bus = bus
	}
}

// WithScope names the resolver in published events, usually the mount target.
func WithScope(scope string) ResolverOption {
	return func(r *Resolver) {
		r.scope = scope
	}
}

// NewResolver creates an idle resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		logger:  log.Default(),
		state:   State{Loaded: map[string]Plugin{}},
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns a copy of the committed state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Updates subscribes to the resolver commits published on the bus of r.
// Resolvers sharing a bus are told apart by Resolved.Scope. Without a bus the
// returned subscription is already closed.
func (r *Resolver) Updates(opts ...eventbus.SubscriptionOption) *eventbus.TypedSubscription[Resolved] {
	return eventbus.SubscribeTo(r.bus, TopicResolved, opts...)
}

// Resolve requests the plugin set for descs and returns the state committed
// by the call: settled for static-only input, pending otherwise. A request
// equal to the latest one is a no-op.
func (r *Resolver) Resolve(ctx context.Context, descs []Descriptor) State {
	key := requestKey(descs)

	r.mu.Lock()
	if r.latest > 0 && key == r.key {
		st := r.state.clone()
		r.mu.Unlock()
		return st
	}
	r.latest++
	gen := r.latest
	r.key = key

	immediate := make(map[string]Plugin, len(descs))
	var lazy []Descriptor
	for _, d := range descs {
		switch d.kind {
		case KindLazy:
			lazy = append(lazy, d)
		default:
			if d.plugin != nil {
				immediate[d.name] = d.plugin
			}
		}
	}

	if len(lazy) == 0 {
		r.commitLocked(ctx, State{Loaded: immediate, Generation: gen})
		st := r.state.clone()
		r.mu.Unlock()
		return st
	}

	r.commitLocked(ctx, State{Pending: true, Loaded: immediate, Generation: gen})
	st := r.state.clone()
	r.mu.Unlock()

	go r.loadBatch(ctx, gen, immediate, lazy)
	return st
}

// Wait blocks until the committed state is no longer pending.
func (r *Resolver) Wait(ctx context.Context) (State, error) {
	for {
		r.mu.Lock()
		if !r.state.Pending {
			st := r.state.clone()
			r.mu.Unlock()
			return st, nil
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return State{}, ctx.Err()
		}
	}
}

type loadResult struct {
	desc   Descriptor
	plugin Plugin
	err    error
}

func (r *Resolver) loadBatch(ctx context.Context, gen uint64, immediate map[string]Plugin, lazy []Descriptor) {
	results := make([]loadResult, len(lazy))
	var wg sync.WaitGroup
	for i, d := range lazy {
		wg.Add(1)
		go func(i int, d Descriptor) {
			defer wg.Done()
			p, err := load(ctx, d)
			results[i] = loadResult{desc: d, plugin: p, err: err}
		}(i, d)
	}
	wg.Wait()

	loaded := make(map[string]Plugin, len(immediate)+len(lazy))
	for name, p := range immediate {
		loaded[name] = p
	}
	var failed map[string]string
	for _, res := range results {
		name := res.desc.name
		if res.err != nil {
			if failed == nil {
				failed = make(map[string]string)
			}
			failed[name] = res.err.Error()
			r.logger.Printf("[Plugins] load %s failed: %v", name, res.err)
			continue
		}
		if _, exists := immediate[name]; exists && !res.desc.override {
			continue
		}
		loaded[name] = res.plugin
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.latest {
		r.logger.Printf("[Plugins] discarding stale batch %d (latest %d)", gen, r.latest)
		return
	}
	r.commitLocked(ctx, State{Loaded: loaded, Failed: failed, Generation: gen})
}

// load runs the loader of d, turning panics and nil plugins into errors.
func load(ctx context.Context, d Descriptor) (p Plugin, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p, err = nil, fmt.Errorf("plugins: %s: loader panic: %v", d.name, rec)
		}
	}()
	if d.loader == nil {
		return nil, fmt.Errorf("plugins: %s: no loader", d.name)
	}
	p, err = d.loader(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilPlugin, d.name)
	}
	return p, nil
}

// commitLocked replaces the state and wakes waiters. r.mu must be held.
func (r *Resolver) commitLocked(ctx context.Context, st State) {
	if st.Loaded == nil {
		st.Loaded = map[string]Plugin{}
	}
	r.state = st
	close(r.changed)
	r.changed = make(chan struct{})
	eventbus.Publish(context.WithoutCancel(ctx), r.bus, TopicResolved, eventbus.SourceResolver, Resolved{
		Scope: r.scope,
		State: st.clone(),
	})
}

func requestKey(descs []Descriptor) string {
	var b strings.Builder
	for _, d := range descs {
		b.WriteString(d.name)
		b.WriteByte('|')
		b.WriteString(d.kind.String())
		if d.override {
			b.WriteString("|override")
		}
		b.WriteByte(';')
	}
	return b.String()
}
