package eventbus

import "context"

// TopicDef ties a topic to the payload type carried on it.
type TopicDef[T any] struct{ topic Topic }

// NewTopicDef declares topic as carrying T payloads.
func NewTopicDef[T any](topic Topic) TopicDef[T] { return TopicDef[T]{topic: topic} }

// PublishOption adjusts the envelope built by Publish.
type PublishOption func(*Envelope)

// WithCorrelationID tags the envelope with id.
func WithCorrelationID(id string) PublishOption {
	return func(env *Envelope) { env.CorrelationID = id }
}

// Publish wraps payload in an envelope for td and hands it to bus.
// A nil bus drops the payload.
func Publish[T any](ctx context.Context, bus *Bus, td TopicDef[T], source Source, payload T, opts ...PublishOption) {
	if bus == nil {
		return
	}
	env := Envelope{Topic: td.topic, Source: source, Payload: payload}
	for _, opt := range opts {
		opt(&env)
	}
	bus.publish(ctx, env)
}

// SubscribeTo opens a typed subscription on td.
func SubscribeTo[T any](bus *Bus, td TopicDef[T], opts ...SubscriptionOption) *TypedSubscription[T] {
	return subscribeTyped[T](bus, td.topic, opts...)
}
