package msgrelay

import "time"

// Metrics captures server-level telemetry.
type Metrics interface {
	// ObserveTickDuration records the time spent in one forwarder tick that found work.
	ObserveTickDuration(duration time.Duration)
	// AddReceived increments the count of messages appended to the queue.
	AddReceived(count int)
	// AddPersisted increments the count of messages written to the store.
	AddPersisted(count int)
	// AddDropped increments the count of poison or rejected messages.
	AddDropped(count int)
	// AddConnectFailures increments the count of failed store connections.
	AddConnectFailures(count int)
	// AddRespawns increments the count of listener slots restarted by the supervisor.
	AddRespawns(count int)
	// SetQueueLength updates the current queue length.
	SetQueueLength(length int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveTickDuration implements Metrics.
func (NopMetrics) ObserveTickDuration(time.Duration) {}

// AddReceived implements Metrics.
func (NopMetrics) AddReceived(int) {}

// AddPersisted implements Metrics.
func (NopMetrics) AddPersisted(int) {}

// AddDropped implements Metrics.
func (NopMetrics) AddDropped(int) {}

// AddConnectFailures implements Metrics.
func (NopMetrics) AddConnectFailures(int) {}

// AddRespawns implements Metrics.
func (NopMetrics) AddRespawns(int) {}

// SetQueueLength implements Metrics.
func (NopMetrics) SetQueueLength(int) {}
