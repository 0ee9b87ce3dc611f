package eventbus

// DeliveryStrategy determines behaviour when a subscriber's channel is full.
type DeliveryStrategy string

const (
	// StrategyDropOldest removes the oldest event from the channel and enqueues the new one.
	StrategyDropOldest DeliveryStrategy = "drop-oldest"
	// StrategyDropNewest discards the incoming event when the channel is full.
	StrategyDropNewest DeliveryStrategy = "drop-newest"
	// StrategyBlock waits for the subscriber until the publish context is done.
	StrategyBlock DeliveryStrategy = "block"
)

// DeliveryPolicy controls how a topic handles backpressure.
type DeliveryPolicy struct {
	Strategy DeliveryStrategy
}

var defaultPolicy = DeliveryPolicy{Strategy: StrategyDropOldest}

// Actions must reach every processor in order; plugin state only matters
// in its latest version.
var defaultPolicies = map[Topic]DeliveryPolicy{
	TopicActionsDispatched: {Strategy: StrategyBlock},
	TopicStateChanged:      {Strategy: StrategyDropOldest},
	TopicPluginsResolved:   {Strategy: StrategyDropOldest},
	TopicBootstrapStatus:   {Strategy: StrategyDropNewest},
}

// policyFor returns the delivery policy for a topic, falling back to defaultPolicy.
func policyFor(topic Topic) DeliveryPolicy {
	if p, ok := defaultPolicies[topic]; ok {
		return p
	}
	return defaultPolicy
}
