package eventbus

import "time"

// Topic identifies a logical channel on the bus.
type Topic string

// Topics used by the shell.
const (
	TopicActionsDispatched Topic = "actions.dispatched"
	TopicStateChanged      Topic = "store.state_changed"
	TopicPluginsResolved   Topic = "plugins.resolved"
	TopicBootstrapStatus   Topic = "bootstrap.status"
)

// Source describes which component produced an event.
type Source string

const (
	SourceStore     Source = "store"
	SourceResolver  Source = "plugin_resolver"
	SourceBootstrap Source = "bootstrap"
	SourceUnknown   Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic         Topic
	Timestamp     time.Time
	Source        Source
	CorrelationID string
	Payload       any
}

// Metrics is a point-in-time view of bus counters.
type Metrics struct {
	PublishTotal uint64
	DroppedTotal uint64
}
