// Package runtime connects the reference counting heap to its host:
// configuration, automatic collection and the observability endpoints.
package runtime

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/orizon-lang/orizon-rc/internal/allocator"
	"github.com/orizon-lang/orizon-rc/internal/config"
	"github.com/orizon-lang/orizon-rc/internal/runtime/rc"
)

// Runtime ties a collector and its tracker to a host configuration.
//
// Alloc, MaybeCollect and CollectCycles belong to the interpreter goroutine.
// Reload, RequestCollection, Status and Config may be called from any
// goroutine; their effects are applied at the next safe point.
type Runtime struct {
	collector *rc.Collector
	tracker   *allocator.Tracker
	log       commonlog.Logger

	// owned by the interpreter goroutine
	auto bool

	cfg       atomic.Pointer[config.Config]
	pending   atomic.Pointer[config.Config]
	requested atomic.Bool

	live     atomic.Int64
	roots    atomic.Int64
	lastPass atomic.Pointer[rc.PassStats]
}

// HeapStatus is the view of the heap served to observers.
type HeapStatus struct {
	allocator.Snapshot
	LiveRecords   int64         `json:"live_records" cbor:"live_records"`
	BufferedRoots int64         `json:"buffered_roots" cbor:"buffered_roots"`
	LastPass      *rc.PassStats `json:"last_pass,omitempty" cbor:"last_pass,omitempty"`
}

// New creates a runtime from a validated configuration.
func New(cfg config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid heap configuration: %w", err)
	}
	tracker := allocator.NewTracker(allocator.WithTypeTracking(cfg.Heap.TrackTypes))
	rt := &Runtime{
		collector: rc.NewCollector(cfg.RC(), tracker),
		tracker:   tracker,
		log:       commonlog.GetLogger("orizon.runtime"),
		auto:      cfg.Heap.AutoCollect,
	}
	rt.cfg.Store(&cfg)
	return rt, nil
}

// Collector returns the underlying collector.
func (rt *Runtime) Collector() *rc.Collector { return rt.collector }

// Tracker returns the allocation tracker.
func (rt *Runtime) Tracker() *allocator.Tracker { return rt.tracker }

// Config returns the configuration in effect.
func (rt *Runtime) Config() config.Config { return *rt.cfg.Load() }

// Alloc creates a managed value. When the heap limit is hit and automatic
// collection is enabled, one pass runs before the allocation is retried.
// Afterwards the allocation threshold may trigger a pass.
func Alloc[T any](rt *Runtime, v T) (rc.Strong[T], error) {
	rt.safepoint()

	s, err := rc.New(rt.collector, v)
	if err != nil && rt.auto && errors.Is(err, rc.ErrAllocationFailure) && rt.collector.Roots() > 0 {
		rt.collect()
		s, err = rc.New(rt.collector, v)
	}
	if err != nil {
		return s, err
	}

	if rt.auto && rt.collector.ShouldCollect() {
		rt.collect()
	}
	rt.publish()
	return s, nil
}

// MaybeCollect runs a pass if the allocation threshold was reached.
func (rt *Runtime) MaybeCollect() (rc.PassStats, bool) {
	rt.safepoint()
	if !rt.collector.ShouldCollect() {
		rt.publish()
		return rc.PassStats{}, false
	}
	return rt.collect(), true
}

// CollectCycles runs a pass unconditionally.
func (rt *Runtime) CollectCycles() rc.PassStats {
	rt.safepoint()
	return rt.collect()
}

// Reload schedules cfg to replace the current configuration at the next
// safe point.
func (rt *Runtime) Reload(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt.pending.Store(&cfg)
	return nil
}

// RequestCollection asks for a pass at the next safe point.
func (rt *Runtime) RequestCollection() {
	rt.requested.Store(true)
}

// Status returns the heap counters as of the last safe point.
func (rt *Runtime) Status() HeapStatus {
	return HeapStatus{
		Snapshot:      rt.tracker.Stats(),
		LiveRecords:   rt.live.Load(),
		BufferedRoots: rt.roots.Load(),
		LastPass:      rt.lastPass.Load(),
	}
}

// Metrics adds the collector gauges to the tracker metrics.
func (rt *Runtime) Metrics() map[string]float64 {
	m := rt.tracker.Metrics()
	m["live_records"] = float64(rt.live.Load())
	m["buffered_roots"] = float64(rt.roots.Load())
	return m
}

func (rt *Runtime) safepoint() {
	if next := rt.pending.Swap(nil); next != nil {
		rt.apply(*next)
	}
	if rt.requested.Swap(false) {
		rt.collect()
	}
}

func (rt *Runtime) apply(cfg config.Config) {
	rt.collector.Configure(cfg.RC())
	rt.tracker.SetTypeTracking(cfg.Heap.TrackTypes)
	rt.auto = cfg.Heap.AutoCollect
	rt.cfg.Store(&cfg)
	rt.log.Infof("heap configuration applied: threshold=%d max_heap_size=%d visit_cap=%d",
		cfg.Heap.GCThreshold, cfg.Heap.MaxHeapSize, cfg.Heap.VisitCap)
}

func (rt *Runtime) collect() rc.PassStats {
	ps := rt.collector.CollectCycles()
	if !ps.Nested {
		rt.lastPass.Store(&ps)
	}
	rt.publish()
	return ps
}

func (rt *Runtime) publish() {
	rt.live.Store(int64(rt.collector.Live()))
	rt.roots.Store(int64(rt.collector.Roots()))
}
