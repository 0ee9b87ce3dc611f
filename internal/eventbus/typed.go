package eventbus

import (
	"sync"
	"time"
)

// TypedEnvelope is an Envelope whose payload was asserted to T.
type TypedEnvelope[T any] struct {
	Topic         Topic
	Timestamp     time.Time
	Source        Source
	CorrelationID string
	Payload       T
}

// TypedSubscription forwards the T payloads of a raw subscription. Other
// payloads on the same topic are skipped.
type TypedSubscription[T any] struct {
	raw  *Subscription
	out  chan TypedEnvelope[T]
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func subscribeTyped[T any](bus *Bus, topic Topic, opts ...SubscriptionOption) *TypedSubscription[T] {
	ts := &TypedSubscription[T]{
		out:  make(chan TypedEnvelope[T]),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if bus == nil {
		close(ts.out)
		close(ts.done)
		return ts
	}
	ts.raw = bus.Subscribe(topic, opts...)
	go ts.forward()
	return ts
}

// C returns the typed event channel. It is closed once the subscription ends.
func (ts *TypedSubscription[T]) C() <-chan TypedEnvelope[T] {
	return ts.out
}

// Close ends the subscription and waits for the forwarder. Repeated calls
// are no-ops.
func (ts *TypedSubscription[T]) Close() {
	ts.once.Do(func() {
		close(ts.stop)
		if ts.raw != nil {
			ts.raw.Close()
		}
		<-ts.done
	})
}

func (ts *TypedSubscription[T]) forward() {
	defer close(ts.done)
	defer close(ts.out)

	for env := range ts.raw.C() {
		payload, ok := env.Payload.(T)
		if !ok {
			continue
		}
		select {
		case ts.out <- TypedEnvelope[T]{
			Topic:         env.Topic,
			Timestamp:     env.Timestamp,
			Source:        env.Source,
			CorrelationID: env.CorrelationID,
			Payload:       payload,
		}:
		case <-ts.stop:
			return
		}
	}
}
