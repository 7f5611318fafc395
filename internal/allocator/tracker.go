// Package allocator accounts for the memory handed out by the Orizon
// reference counting runtime. The Tracker is fed by record creation and
// destruction and is read by the collector trigger, profilers and the
// observability endpoints.
package allocator

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker keeps allocation statistics. Counters are atomic so snapshots may
// be taken from any goroutine while the interpreter keeps allocating.
type Tracker struct {
	totalAllocs   atomic.Uint64
	totalDeallocs atomic.Uint64
	currentMemory atomic.Int64
	peakMemory    atomic.Int64
	liveObjects   atomic.Int64

	collections   atomic.Uint64
	abortedPasses atomic.Uint64
	cycleFrees    atomic.Uint64
	lastPause     atomic.Int64
	totalPause    atomic.Int64
	suspects      atomic.Int64

	trackTypes atomic.Bool
	mu         sync.Mutex
	types      map[string]*typeCounters
}

type typeCounters struct {
	allocs   uint64
	deallocs uint64
	bytes    int64
}

// Snapshot is a read-only copy of the tracker counters.
type Snapshot struct {
	TotalAllocations   uint64        `json:"total_allocations" cbor:"total_allocations"`
	TotalDeallocations uint64        `json:"total_deallocations" cbor:"total_deallocations"`
	CurrentMemory      int64         `json:"current_memory" cbor:"current_memory"`
	PeakMemory         int64         `json:"peak_memory" cbor:"peak_memory"`
	LiveObjects        int64         `json:"live_objects" cbor:"live_objects"`
	Collections        uint64        `json:"collections" cbor:"collections"`
	AbortedPasses      uint64        `json:"aborted_passes" cbor:"aborted_passes"`
	CycleFrees         uint64        `json:"cycle_frees" cbor:"cycle_frees"`
	LastPause          time.Duration `json:"last_pause_ns" cbor:"last_pause_ns"`
	TotalPause         time.Duration `json:"total_pause_ns" cbor:"total_pause_ns"`
	LeakSuspects       int64         `json:"leak_suspects" cbor:"leak_suspects"`
	PotentialLeak      bool          `json:"potential_leak" cbor:"potential_leak"`
}

// TypeStat is the per-type breakdown entry.
type TypeStat struct {
	Name          string `json:"name" cbor:"name"`
	Allocations   uint64 `json:"allocations" cbor:"allocations"`
	Deallocations uint64 `json:"deallocations" cbor:"deallocations"`
	Live          uint64 `json:"live" cbor:"live"`
	Bytes         int64  `json:"bytes" cbor:"bytes"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTypeTracking enables the per-type breakdown.
func WithTypeTracking(enabled bool) Option {
	return func(t *Tracker) { t.trackTypes.Store(enabled) }
}

// NewTracker creates an empty tracker.
func NewTracker(options ...Option) *Tracker {
	t := &Tracker{types: make(map[string]*typeCounters)}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// SetTypeTracking toggles the per-type breakdown. Counts already gathered
// are kept.
func (t *Tracker) SetTypeTracking(enabled bool) {
	t.trackTypes.Store(enabled)
}

// RecordAlloc accounts for a new record of size bytes.
func (t *Tracker) RecordAlloc(size uintptr, typeName string) {
	t.totalAllocs.Add(1)
	t.liveObjects.Add(1)
	cur := t.currentMemory.Add(int64(size))
	for {
		peak := t.peakMemory.Load()
		if cur <= peak || t.peakMemory.CompareAndSwap(peak, cur) {
			break
		}
	}

	if t.trackTypes.Load() {
		t.mu.Lock()
		tc := t.types[typeName]
		if tc == nil {
			tc = &typeCounters{}
			t.types[typeName] = tc
		}
		tc.allocs++
		tc.bytes += int64(size)
		t.mu.Unlock()
	}
}

// RecordDealloc accounts for a released record of size bytes.
func (t *Tracker) RecordDealloc(size uintptr, typeName string) {
	t.totalDeallocs.Add(1)
	t.liveObjects.Add(-1)
	t.currentMemory.Add(-int64(size))

	if t.trackTypes.Load() {
		t.mu.Lock()
		if tc := t.types[typeName]; tc != nil {
			tc.deallocs++
			tc.bytes -= int64(size)
		}
		t.mu.Unlock()
	}
}

// RecordCollection accounts for a finished collection pass.
func (t *Tracker) RecordCollection(freed int, aborted bool, pause time.Duration) {
	t.collections.Add(1)
	if aborted {
		t.abortedPasses.Add(1)
	}
	t.cycleFrees.Add(uint64(freed))
	t.lastPause.Store(int64(pause))
	t.totalPause.Add(int64(pause))
}

// NoteSuspect adjusts the number of records flagged as possible leaks.
func (t *Tracker) NoteSuspect(delta int) {
	t.suspects.Add(int64(delta))
}

// CurrentMemory returns the bytes currently held by live records.
func (t *Tracker) CurrentMemory() uint64 {
	cur := t.currentMemory.Load()
	if cur < 0 {
		return 0
	}
	return uint64(cur)
}

// CheckLeaks reports whether some buffered records keep surviving
// collection passes without ever becoming garbage.
func (t *Tracker) CheckLeaks() bool {
	return t.suspects.Load() > 0
}

// Stats returns a snapshot of all counters.
func (t *Tracker) Stats() Snapshot {
	suspects := t.suspects.Load()
	return Snapshot{
		TotalAllocations:   t.totalAllocs.Load(),
		TotalDeallocations: t.totalDeallocs.Load(),
		CurrentMemory:      t.currentMemory.Load(),
		PeakMemory:         t.peakMemory.Load(),
		LiveObjects:        t.liveObjects.Load(),
		Collections:        t.collections.Load(),
		AbortedPasses:      t.abortedPasses.Load(),
		CycleFrees:         t.cycleFrees.Load(),
		LastPause:          time.Duration(t.lastPause.Load()),
		TotalPause:         time.Duration(t.totalPause.Load()),
		LeakSuspects:       suspects,
		PotentialLeak:      suspects > 0,
	}
}

// TypeStats returns the per-type breakdown ordered by live bytes, largest
// first. It is empty unless type tracking is enabled.
func (t *Tracker) TypeStats() []TypeStat {
	t.mu.Lock()
	out := make([]TypeStat, 0, len(t.types))
	for name, tc := range t.types {
		out = append(out, TypeStat{
			Name:          name,
			Allocations:   tc.allocs,
			Deallocations: tc.deallocs,
			Live:          tc.allocs - tc.deallocs,
			Bytes:         tc.bytes,
		})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Metrics flattens the snapshot for text exposition.
func (t *Tracker) Metrics() map[string]float64 {
	s := t.Stats()
	leak := 0.0
	if s.PotentialLeak {
		leak = 1
	}
	return map[string]float64{
		"allocations_total":   float64(s.TotalAllocations),
		"deallocations_total": float64(s.TotalDeallocations),
		"current_bytes":       float64(s.CurrentMemory),
		"peak_bytes":          float64(s.PeakMemory),
		"live_objects":        float64(s.LiveObjects),
		"collections_total":   float64(s.Collections),
		"aborted_passes":      float64(s.AbortedPasses),
		"cycle_frees_total":   float64(s.CycleFrees),
		"last_pause_seconds":  s.LastPause.Seconds(),
		"leak_suspects":       float64(s.LeakSuspects),
		"potential_leak":      leak,
	}
}

// Reset clears every counter (for testing/benchmarking).
func (t *Tracker) Reset() {
	t.totalAllocs.Store(0)
	t.totalDeallocs.Store(0)
	t.currentMemory.Store(0)
	t.peakMemory.Store(0)
	t.liveObjects.Store(0)
	t.collections.Store(0)
	t.abortedPasses.Store(0)
	t.cycleFrees.Store(0)
	t.lastPause.Store(0)
	t.totalPause.Store(0)
	t.suspects.Store(0)

	t.mu.Lock()
	t.types = make(map[string]*typeCounters)
	t.mu.Unlock()
}
