// Package store keeps the shell state and runs the processors that react to
// dispatched actions.
package store

import (
	"context"
	"log"
	"reflect"
	"sort"
	"sync"

	"github.com/nupi-ai/shellboot/internal/actions"
	"github.com/nupi-ai/shellboot/internal/epics"
	"github.com/nupi-ai/shellboot/internal/eventbus"
	"github.com/nupi-ai/shellboot/internal/util/maps"
)

// Reducer computes the next value of one state slice.
type Reducer func(slice any, action actions.Action) any

// Reducers maps slice names to reducers.
type Reducers map[string]Reducer

// Names returns the slice names in lexical order.
func (r Reducers) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// StateChange is published after every dispatch that changed a slice.
type StateChange struct {
	Action  actions.Action
	Changed []string
}

var (
	// TopicActions carries every dispatched action, after reduction.
	TopicActions = eventbus.NewTopicDef[actions.Action](eventbus.TopicActionsDispatched)
	// TopicState carries state change notifications.
	TopicState = eventbus.NewTopicDef[StateChange](eventbus.TopicStateChanged)
)

// Store is a reducer driven state container.
type Store struct {
	logger   *log.Logger
	bus      *eventbus.Bus
	reducers Reducers

	mu    sync.RWMutex
	state map[string]any

	workers eventbus.Workers
	running bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the store logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBus publishes actions and state changes on bus.
func WithBus(bus *eventbus.Bus) Option {
	return func(s *Store) {
		s.bus = bus
	}
}

// New creates a store seeded with initial. Slices without a reducer are kept
// as seeded.
func New(reducers Reducers, initial map[string]any, opts ...Option) *Store {
	s := &Store{
		logger:   log.Default(),
		reducers: make(Reducers, len(reducers)),
		state:    make(map[string]any, len(initial)+len(reducers)),
	}
	for name, r := range reducers {
		if r != nil {
			s.reducers[name] = r
		}
	}
	for k, v := range initial {
		s.state[k] = v
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a shallow copy of the state.
func (s *Store) State() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := maps.Clone(s.state)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// Slice returns one state slice.
func (s *Store) Slice(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[name]
	return v, ok
}

// Dispatch reduces action into the state, then publishes it for processors.
func (s *Store) Dispatch(ctx context.Context, action actions.Action) {
	if action.Type == "" {
		return
	}

	s.mu.Lock()
	var changed []string
	for name, reduce := range s.reducers {
		prev := s.state[name]
		next := reduce(prev, action)
		if !sameSlice(prev, next) {
			s.state[name] = next
			changed = append(changed, name)
		}
	}
	s.mu.Unlock()

	sort.Strings(changed)
	if len(changed) > 0 {
		eventbus.Publish(ctx, s.bus, TopicState, eventbus.SourceStore, StateChange{Action: action, Changed: changed})
	}
	eventbus.Publish(ctx, s.bus, TopicActions, eventbus.SourceStore, action, eventbus.WithCorrelationID(action.ID))
}

// Run starts the processors of set. Each dispatched action is handed to
// every processor in name order. Run requires a bus.
func (s *Store) Run(ctx context.Context, set epics.Set) {
	s.mu.Lock()
	if s.running || s.bus == nil {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.workers.Start(ctx)
	sub := eventbus.SubscribeTo(s.bus, TopicActions, eventbus.WithSubscriptionName("store_epics"))
	s.workers.Track(sub)

	names := set.Names()
	dispatch := func(a actions.Action) { s.Dispatch(s.workers.Context(), a) }
	s.workers.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, sub, func(env eventbus.TypedEnvelope[actions.Action]) {
			for _, name := range names {
				s.runEpic(ctx, name, set[name], env.Payload, dispatch)
			}
		})
	})
	s.logger.Printf("[Store] running %d processors", len(names))
}

func (s *Store) runEpic(ctx context.Context, name string, epic epics.Epic, action actions.Action, dispatch epics.Dispatch) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Printf("[Store] processor %s panicked on %s: %v", name, action.Type, rec)
		}
	}()
	epic(ctx, action, s.State, dispatch)
}

// Stop stops the processors and waits for them to return.
func (s *Store) Stop(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running {
		return nil
	}
	s.workers.Stop()
	return s.workers.Wait(ctx)
}

// sameSlice reports whether a reducer returned its input unchanged. Reference
// values compare by identity.
func sameSlice(prev, next any) bool {
	pv, nv := reflect.ValueOf(prev), reflect.ValueOf(next)
	if !pv.IsValid() || !nv.IsValid() {
		return pv.IsValid() == nv.IsValid()
	}
	if pv.Type() != nv.Type() {
		return false
	}
	switch pv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan:
		return pv.Pointer() == nv.Pointer()
	case reflect.Slice:
		return pv.Pointer() == nv.Pointer() && pv.Len() == nv.Len()
	}
	if pv.Type().Comparable() {
		return prev == next
	}
	return false
}
