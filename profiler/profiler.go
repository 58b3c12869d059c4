// Package profiler - Stage timings and event counters for the detection pipeline.
package profiler

import (
	"sync"
	"time"
)

// DefaultMaxSamples bounds the rolling window of each operation.
const DefaultMaxSamples = 1000

// Profiler records how long named operations take and counts named events.
//
// A nil *Profiler is valid and records nothing, so callers can hold an
// optional profiler without checking it.
type Profiler struct {
	mu         sync.RWMutex
	startTime  time.Time
	maxSamples int
	operations map[string]*TimeTracker
	counters   map[string]int64
}

// TimeTracker tracks operation timing statistics over a rolling window.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats is a snapshot of one operation.
type OperationStats struct {
	// Count is the number of completed operations since start.
	Count int64 `json:"count"`
	// Avg is the mean over the rolling window.
	Avg time.Duration `json:"avg_ns"`
	// Min and Max are since start.
	Min time.Duration `json:"min_ns"`
	Max time.Duration `json:"max_ns"`
}

// Stats is a snapshot of a Profiler.
type Stats struct {
	Uptime     time.Duration             `json:"uptime_ns"`
	Operations map[string]OperationStats `json:"operations"`
	Counters   map[string]int64          `json:"counters"`
}

// New creates a profiler keeping up to maxSamples durations per operation.
// A non-positive maxSamples uses DefaultMaxSamples.
func New(maxSamples int) *Profiler {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Profiler{
		startTime:  time.Now(),
		maxSamples: maxSamples,
		operations: make(map[string]*TimeTracker),
		counters:   make(map[string]int64),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
//
// @example
// done := p.StartOperation("inference")
// err := runner.Run()
// done()
func (p *Profiler) StartOperation(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.RecordOperation(name, time.Since(start))
	}
}

// RecordOperation records the completion time of an operation.
func (p *Profiler) RecordOperation(name string, duration time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.operations[name]
	if !exists {
		tracker = &TimeTracker{minTime: duration, maxTime: duration}
		p.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > p.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Count increments the named counter.
func (p *Profiler) Count(name string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.counters[name]++
	p.mu.Unlock()
}

// Snapshot returns the current statistics.
func (p *Profiler) Snapshot() Stats {
	stats := Stats{
		Operations: make(map[string]OperationStats),
		Counters:   make(map[string]int64),
	}
	if p == nil {
		return stats
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	stats.Uptime = time.Since(p.startTime)
	for name, t := range p.operations {
		var avg time.Duration
		if n := len(t.durations); n > 0 {
			avg = t.totalTime / time.Duration(n)
		}
		stats.Operations[name] = OperationStats{
			Count: t.count,
			Avg:   avg,
			Min:   t.minTime,
			Max:   t.maxTime,
		}
	}
	for name, n := range p.counters {
		stats.Counters[name] = n
	}
	return stats
}
