package eventbus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 64

// Bus orchestrates topic-based publish/subscribe messaging.
type Bus struct {
	logger       *log.Logger
	mu           sync.RWMutex
	subscribers  map[Topic]map[uint64]*Subscription
	topicBuffers map[Topic]int
	nextID       uint64

	publishTotal atomic.Uint64
	droppedTotal atomic.Uint64
}

// New constructs a bus with default topic buffer sizes.
func New(opts ...BusOption) *Bus {
	defaults := map[Topic]int{
		TopicActionsDispatched: 1024,
		TopicStateChanged:      64,
		TopicPluginsResolved:   16,
		TopicBootstrapStatus:   16,
	}

	bus := &Bus{
		logger:       log.Default(),
		subscribers:  make(map[Topic]map[uint64]*Subscription),
		topicBuffers: defaults,
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// BusOption customises bus behaviour.
type BusOption func(*Bus)

// WithLogger overrides the logger used for drop warnings.
func WithLogger(logger *log.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Publish sends the envelope to all subscribers of the topic.
// If b is nil the call is a no-op.
func (b *Bus) Publish(ctx context.Context, env Envelope) {
	if b == nil {
		return
	}
	b.publish(ctx, env)
}

func (b *Bus) publish(ctx context.Context, env Envelope) {
	if env.Topic == "" {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.Source == "" {
		env.Source = SourceUnknown
	}
	b.publishTotal.Add(1)

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subscribers[env.Topic]))
	for _, sub := range b.subscribers[env.Topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(ctx, env, b.logger)
	}
}

// Metrics returns the bus counters.
func (b *Bus) Metrics() Metrics {
	if b == nil {
		return Metrics{}
	}
	return Metrics{
		PublishTotal: b.publishTotal.Load(),
		DroppedTotal: b.droppedTotal.Load(),
	}
}

// Subscribe registers a subscriber for the given topic.
// If b is nil the returned Subscription has a closed channel and Close is a no-op.
func (b *Bus) Subscribe(topic Topic, opts ...SubscriptionOption) *Subscription {
	if b == nil {
		ch := make(chan Envelope)
		close(ch)
		done := make(chan struct{})
		close(done)
		sub := &Subscription{ch: ch, done: done}
		sub.closed.Store(true)
		return sub
	}
	cfg := subscriptionConfig{
		bufferSize: b.topicBuffers[topic],
	}
	if cfg.bufferSize <= 0 {
		cfg.bufferSize = defaultBufferSize
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := atomic.AddUint64(&b.nextID, 1)
	sub := &Subscription{
		topic:  topic,
		id:     id,
		name:   cfg.name,
		ch:     make(chan Envelope, cfg.bufferSize),
		done:   make(chan struct{}),
		bus:    b,
		policy: policyFor(topic),
	}

	b.mu.Lock()
	if _, exists := b.subscribers[topic]; !exists {
		b.subscribers[topic] = make(map[uint64]*Subscription)
	}
	b.subscribers[topic][id] = sub
	b.mu.Unlock()

	return sub
}

// Shutdown closes all subscriptions and empties routing tables.
// If b is nil the call is a no-op.
func (b *Bus) Shutdown() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscribers {
		for id, sub := range subs {
			sub.closeLocked()
			delete(subs, id)
		}
		delete(b.subscribers, topic)
	}
}

// SubscriptionOption customises individual subscriptions.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	bufferSize int
	name       string
}

// WithSubscriptionBuffer overrides the channel buffer for a subscription.
func WithSubscriptionBuffer(size int) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if size > 0 {
			cfg.bufferSize = size
		}
	}
}

// WithSubscriptionName records a human friendly identifier used in logs.
func WithSubscriptionName(name string) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		cfg.name = name
	}
}

// Subscription represents a consumer listening to a topic.
type Subscription struct {
	topic Topic
	id    uint64
	name  string
	ch    chan Envelope
	done  chan struct{}

	// sendMu serialises channel sends against close.
	sendMu  sync.Mutex
	bus     *Bus
	closed  atomic.Bool
	dropped atomic.Uint64
	policy  DeliveryPolicy
}

// C exposes the event channel.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Dropped reports how many events this subscription lost to backpressure.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close removes the subscription and closes the channel.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)

	if s.bus != nil {
		s.bus.mu.Lock()
		if subs, ok := s.bus.subscribers[s.topic]; ok {
			delete(subs, s.id)
		}
		s.bus.mu.Unlock()
	}

	s.sendMu.Lock()
	close(s.ch)
	s.sendMu.Unlock()
}

func (s *Subscription) closeLocked() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)
	s.sendMu.Lock()
	close(s.ch)
	s.sendMu.Unlock()
}

func (s *Subscription) deliver(ctx context.Context, env Envelope, logger *log.Logger) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed.Load() {
		return
	}

	select {
	case s.ch <- env:
		return
	default:
	}

	switch s.policy.Strategy {
	case StrategyBlock:
		select {
		case s.ch <- env:
		case <-s.done:
		case <-ctx.Done():
			s.recordDrop(logger, "context-done")
		}
	case StrategyDropNewest:
		s.recordDrop(logger, "drop-newest")
	default:
		s.dropOldestAndEnqueue(env, logger)
	}
}

func (s *Subscription) dropOldestAndEnqueue(env Envelope, logger *log.Logger) {
	select {
	case <-s.ch:
		s.recordDrop(logger, "drop-oldest")
	default:
	}

	select {
	case s.ch <- env:
	default:
		s.recordDrop(logger, "drop-current")
	}
}

func (s *Subscription) recordDrop(logger *log.Logger, reason string) {
	count := s.dropped.Add(1)
	if s.bus != nil {
		s.bus.droppedTotal.Add(1)
	}
	if logger != nil {
		name := s.name
		if name == "" {
			name = "subscription"
		}
		logger.Printf("[eventbus] dropped event #%d for %s on topic %s (%s)", count, name, s.topic, reason)
	}
}
