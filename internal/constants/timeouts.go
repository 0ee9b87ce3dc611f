package constants

import "time"

// Shared duration vocabulary used by timeouts, polling and retry checks.
// Keep these centralized to simplify system-wide timing tuning.
const (
	Duration50Milliseconds  = 50 * time.Millisecond
	Duration100Milliseconds = 100 * time.Millisecond
	Duration250Milliseconds = 250 * time.Millisecond

	Duration1Second   = 1 * time.Second
	Duration2Seconds  = 2 * time.Second
	Duration5Seconds  = 5 * time.Second
	Duration10Seconds = 10 * time.Second
	Duration15Seconds = 15 * time.Second
	Duration30Seconds = 30 * time.Second
	Duration60Seconds = 60 * time.Second
)

// Domain-level timeout constants.
const (
	HTTPClientTimeout   = Duration10Seconds
	ResourceLoadTimeout = Duration5Seconds
	PluginLoadTimeout   = Duration15Seconds

	ServerReadHeaderTimeout = Duration5Seconds
	ServerShutdownTimeout   = Duration10Seconds

	WebSocketWriteWait  = Duration10Seconds
	WebSocketPongWait   = Duration60Seconds
	WebSocketPingPeriod = (WebSocketPongWait * 9) / 10
)
