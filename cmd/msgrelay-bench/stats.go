package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const (
	percentileP50 = 0.50
	percentileP99 = 0.99
	percentScale  = 100
)

// benchMetrics records server telemetry for the result.
type benchMetrics struct {
	received        atomic.Int64
	persisted       atomic.Int64
	dropped         atomic.Int64
	connectFailures atomic.Int64
	respawns        atomic.Int64
	maxQueue        atomic.Int64
	ticks           durationStats
}

func (m *benchMetrics) ObserveTickDuration(d time.Duration) {
	m.ticks.Add(d)
}

func (m *benchMetrics) AddReceived(n int) {
	m.received.Add(int64(n))
}

func (m *benchMetrics) AddPersisted(n int) {
	m.persisted.Add(int64(n))
}

func (m *benchMetrics) AddDropped(n int) {
	m.dropped.Add(int64(n))
}

func (m *benchMetrics) AddConnectFailures(n int) {
	m.connectFailures.Add(int64(n))
}

func (m *benchMetrics) AddRespawns(n int) {
	m.respawns.Add(int64(n))
}

func (m *benchMetrics) SetQueueLength(n int) {
	for {
		current := m.maxQueue.Load()
		if int64(n) <= current || m.maxQueue.CompareAndSwap(current, int64(n)) {
			return
		}
	}
}

// handled counts messages that left the queue, persisted or dropped.
func (m *benchMetrics) handled() int64 {
	return m.persisted.Load() + m.dropped.Load()
}

func (m *benchMetrics) fill(res *result) {
	ticks := m.ticks.Snapshot()
	res.Received = m.received.Load()
	res.Persisted = m.persisted.Load()
	res.Dropped = m.dropped.Load()
	res.ConnectFailures = m.connectFailures.Load()
	res.Respawns = m.respawns.Load()
	res.MaxQueueLength = m.maxQueue.Load()
	res.TickP50Ms = msFloat(ticks.P50)
	res.TickP99Ms = msFloat(ticks.P99)
	res.TickMaxMs = msFloat(ticks.Max)
	res.TickSamples = ticks.Count
}

// durationStats collects samples for the percentiles printed in the result.
type durationStats struct {
	mu      sync.Mutex
	samples []time.Duration
}

func (s *durationStats) Add(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.samples = append(s.samples, d)
	s.mu.Unlock()
}

func (s *durationStats) Snapshot() durationSnapshot {
	s.mu.Lock()
	samples := slices.Clone(s.samples)
	s.mu.Unlock()

	slices.Sort(samples)
	snap := durationSnapshot{Count: len(samples)}
	if snap.Count > 0 {
		snap.P50 = percentile(samples, percentileP50)
		snap.P99 = percentile(samples, percentileP99)
		snap.Max = samples[snap.Count-1]
	}

	return snap
}

type durationSnapshot struct {
	P50   time.Duration
	P99   time.Duration
	Max   time.Duration
	Count int
}

// percentile picks the nearest-rank sample from sorted samples.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(len(sorted))))

	return sorted[min(max(rank, 1), len(sorted))-1]
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// allocStats is the Go heap activity of a run.
type allocStats struct {
	Bytes uint64
	GC    uint32
}

func sampleAlloc() allocStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return allocStats{Bytes: ms.TotalAlloc, GC: ms.NumGC}
}

func (a allocStats) since(start allocStats) allocStats {
	return allocStats{Bytes: a.Bytes - start.Bytes, GC: a.GC - start.GC}
}

// reportProgress writes a submit progress line to w every cfg.progressInterval until ctx is done.
func reportProgress(ctx context.Context, w io.Writer, cfg benchConfig, stats *submitStats) {
	ticker := time.NewTicker(cfg.progressInterval)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			done := stats.done()
			fmt.Fprintf(w, "submit: %d/%d (%.1f%%) rate=%.0f/s timeouts=%d elapsed=%s\n",
				done,
				cfg.records,
				float64(done)/float64(cfg.records)*percentScale,
				float64(done)/elapsed.Seconds(),
				stats.timeouts.Load(),
				elapsed.Round(time.Second),
			)
		}
	}
}

func progressDoneLine(cfg benchConfig, stats *submitStats) string {
	return fmt.Sprintf(
		"submit: %d/%d done accepted=%d rejected=%d timeouts=%d producers=%d",
		stats.done(),
		cfg.records,
		stats.accepted.Load(),
		stats.rejected.Load(),
		stats.timeouts.Load(),
		cfg.producers,
	)
}
