package rc

import (
	"time"

	"github.com/tliron/commonlog"

	"github.com/orizon-lang/orizon-rc/internal/allocator"
)

const (
	DefaultThreshold  = 10000   // allocations between automatic passes
	DefaultVisitCap   = 1 << 20 // records a pass may mark before deferring roots
	DefaultLeakPasses = 16      // live examinations before a root counts as a leak suspect
)

// Config holds the tunables of a Collector. Zero values disable the
// corresponding mechanism.
type Config struct {
	Threshold   int    // ShouldCollect fires after this many allocations
	MaxHeapSize uint64 // bytes; allocations beyond it fail
	VisitCap    int    // per-pass marking budget
	LeakPasses  int    // survivals before a buffered record is a leak suspect
}

// DefaultConfig is used by NewCollector when no configuration is given.
var DefaultConfig = Config{
	Threshold:   DefaultThreshold,
	MaxHeapSize: 0,
	VisitCap:    DefaultVisitCap,
	LeakPasses:  DefaultLeakPasses,
}

// PassStats describes one CollectCycles call.
type PassStats struct {
	Roots    int           `json:"roots"`    // buffered roots when the pass started
	Examined int           `json:"examined"` // roots the pass started marking from
	Deferred int           `json:"deferred"` // roots left buffered for the next pass
	Visited  int           `json:"visited"`  // records marked gray
	Freed    int           `json:"freed"`    // records reclaimed as cycle garbage
	Aborted  bool          `json:"aborted"`
	Nested   bool          `json:"nested"` // called from inside another pass; nothing was done
	Duration time.Duration `json:"duration_ns"`
}

// CollectorStats accumulates over the collector's lifetime.
type CollectorStats struct {
	Passes  uint64
	Aborted uint64
	Freed   uint64
	Live    int
	Roots   int
}

// Collector owns the records of one runtime and reclaims garbage cycles
// among them with synchronous trial deletion.
type Collector struct {
	cfg     Config
	tracker *allocator.Tracker
	log     commonlog.Logger

	roots       []*record
	allocsSince int
	live        int
	collecting  bool
	stats       CollectorStats

	// scratch worklists reused across passes
	grayStack  []*record
	blackStack []*record
}

// NewCollector creates a collector reporting to tracker. A nil tracker gets
// a private one.
func NewCollector(cfg Config, tracker *allocator.Tracker) *Collector {
	if tracker == nil {
		tracker = allocator.NewTracker()
	}
	return &Collector{
		cfg:     cfg,
		tracker: tracker,
		log:     commonlog.GetLogger("orizon.rc"),
	}
}

// Config returns the active configuration.
func (c *Collector) Config() Config { return c.cfg }

// Configure replaces the configuration. Records already allocated are not
// affected by a lower MaxHeapSize.
func (c *Collector) Configure(cfg Config) { c.cfg = cfg }

// Tracker returns the statistics sink of this collector.
func (c *Collector) Tracker() *allocator.Tracker { return c.tracker }

// Roots returns the number of buffered candidate roots.
func (c *Collector) Roots() int { return len(c.roots) }

// Live returns the number of records whose memory has not been released.
func (c *Collector) Live() int { return c.live }

// Stats returns lifetime statistics.
func (c *Collector) Stats() CollectorStats {
	s := c.stats
	s.Live = c.live
	s.Roots = len(c.roots)
	return s
}

// ShouldCollect reports whether enough allocations happened since the last
// pass to warrant another one.
func (c *Collector) ShouldCollect() bool {
	return c.cfg.Threshold > 0 && c.allocsSince >= c.cfg.Threshold
}

func (c *Collector) allocate(value any, size uintptr, typeName string, leaf bool) (*record, error) {
	if limit := c.cfg.MaxHeapSize; limit > 0 {
		inUse := c.tracker.CurrentMemory()
		if inUse+uint64(size) > limit {
			return nil, &AllocationError{
				Code:     ErrorHeapLimit,
				TypeName: typeName,
				Size:     size,
				InUse:    inUse,
				Limit:    limit,
			}
		}
	}

	r := &record{
		value:    value,
		owner:    c,
		typeName: typeName,
		size:     size,
		strong:   1,
		leaf:     leaf,
	}
	c.tracker.RecordAlloc(size, typeName)
	c.allocsSince++
	c.live++
	return r, nil
}

func (c *Collector) decrement(r *record) {
	if r.strong <= 0 {
		inconsistent(ErrorStrongUnderflow, r)
	}
	r.strong--
}

// release drops one strong reference to r and cascades through everything
// that only r kept alive.
func (c *Collector) release(r *record) {
	c.decrement(r)
	if r.strong > 0 {
		c.possibleRoot(r)
		return
	}

	var pending []*record
	for r != nil {
		pending = c.dispose(r, pending)
		r = nil
		for len(pending) > 0 {
			next := pending[len(pending)-1]
			pending = pending[:len(pending)-1]
			c.decrement(next)
			if next.strong == 0 {
				r = next
				break
			}
			c.possibleRoot(next)
		}
	}
}

// dispose drops the value of a record whose strong count reached zero and
// appends the children it held to pending.
func (c *Collector) dispose(r *record, pending []*record) []*record {
	r.dropValue()
	pending = r.detachChildren(pending)
	c.kill(r)
	return pending
}

// possibleRoot buffers r as a candidate cycle root. Leaf values cannot be
// part of a cycle and are skipped.
func (c *Collector) possibleRoot(r *record) {
	if r.leaf {
		return
	}
	r.color = Purple
	if !r.buffered {
		r.buffered = true
		c.roots = append(c.roots, r)
	}
}

// kill forgets the dropped value and frees the record unless weak
// references still observe it.
func (c *Collector) kill(r *record) {
	r.value = nil
	r.dead = true
	if r.suspect {
		r.suspect = false
		c.tracker.NoteSuspect(-1)
	}
	if r.weak == 0 {
		c.free(r)
	}
}

func (c *Collector) free(r *record) {
	if r.freed {
		return
	}
	r.freed = true
	r.color = Black
	c.live--
	c.tracker.RecordDealloc(r.size, r.typeName)
}

// CollectCycles runs one synchronous trial-deletion pass over the buffered
// roots and frees every garbage cycle found. Calls made while a pass is
// running return immediately.
func (c *Collector) CollectCycles() PassStats {
	if c.collecting {
		return PassStats{Nested: true}
	}
	c.collecting = true
	defer func() { c.collecting = false }()

	start := time.Now()
	work := c.roots
	c.roots = nil
	c.allocsSince = 0
	ps := PassStats{Roots: len(work)}

	candidates, deferred := c.markRoots(work, &ps)
	for _, s := range candidates {
		c.scan(s)
	}
	ps.Freed = c.collectRoots(candidates)

	for _, s := range candidates {
		if s.dead {
			s.buffered = false
			continue
		}
		// Dropper hooks run by the pass may have suspected s again.
		if s.color == Purple {
			c.roots = append(c.roots, s)
		} else {
			s.buffered = false
		}
		s.survived++
		if c.cfg.LeakPasses > 0 && int(s.survived) >= c.cfg.LeakPasses && !s.suspect {
			s.suspect = true
			c.tracker.NoteSuspect(1)
		}
	}
	if len(deferred) > 0 {
		c.roots = append(deferred, c.roots...)
	}

	ps.Examined = len(candidates)
	ps.Deferred = len(deferred)
	ps.Duration = time.Since(start)

	c.stats.Passes++
	c.stats.Freed += uint64(ps.Freed)
	if ps.Aborted {
		c.stats.Aborted++
		c.log.Noticef("cycle collection hit visit cap %d, deferred %d roots", c.cfg.VisitCap, ps.Deferred)
	}
	c.tracker.RecordCollection(ps.Freed, ps.Aborted, ps.Duration)
	if c.log.AllowLevel(commonlog.Debug) {
		c.log.Debug("cycle collection",
			"roots", ps.Roots, "examined", ps.Examined, "visited", ps.Visited,
			"freed", ps.Freed, "duration", ps.Duration)
	}
	return ps
}

// markRoots selects the purple roots still alive and trial-deletes the
// edges reachable from them. Once the visit cap is spent the remaining roots
// are returned as deferred and stay buffered.
func (c *Collector) markRoots(work []*record, ps *PassStats) (candidates, deferred []*record) {
	for i, s := range work {
		if s.color != Purple || s.strong == 0 {
			s.buffered = false
			continue
		}
		if c.cfg.VisitCap > 0 && ps.Visited >= c.cfg.VisitCap && len(candidates) > 0 {
			ps.Aborted = true
			for _, d := range work[i:] {
				if !d.dead {
					deferred = append(deferred, d)
				} else {
					d.buffered = false
				}
			}
			break
		}
		ps.Visited += c.markGray(s)
		candidates = append(candidates, s)
	}
	return candidates, deferred
}

// markGray colors everything reachable from s gray, removing one count per
// internal edge. Returns the number of records newly colored.
func (c *Collector) markGray(s *record) int {
	if s.color == Gray {
		return 0
	}
	s.color = Gray
	n := 1
	stack := append(c.grayStack[:0], s)
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		r.children(func(child *record) {
			child.strong--
			if child.strong < 0 {
				inconsistent(ErrorStrongUnderflow, child)
			}
			if child.color != Gray {
				child.color = Gray
				n++
				stack = append(stack, child)
			}
		})
	}
	c.grayStack = stack[:0]
	return n
}

// scan whitens gray records left without references from outside the gray
// subgraph and restores everything reachable from the rest.
func (c *Collector) scan(s *record) {
	stack := append(c.grayStack[:0], s)
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.color != Gray {
			continue
		}
		if r.strong > 0 {
			c.scanBlack(r)
			continue
		}
		r.color = White
		r.children(func(child *record) {
			stack = append(stack, child)
		})
	}
	c.grayStack = stack[:0]
}

// scanBlack marks r live and undoes the trial deletions below it.
func (c *Collector) scanBlack(r *record) {
	r.color = Black
	stack := append(c.blackStack[:0], r)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n.children(func(child *record) {
			child.strong++
			if child.color != Black {
				child.color = Black
				stack = append(stack, child)
			}
		})
	}
	c.blackStack = stack[:0]
}

// collectRoots frees the white records reachable from the candidates,
// children before their parents. The counts of surviving children already
// reflect the removed edges, so nothing is decremented here.
func (c *Collector) collectRoots(candidates []*record) int {
	var garbage []*record
	for _, s := range candidates {
		garbage = c.gatherWhite(s, garbage)
	}
	for i := len(garbage) - 1; i >= 0; i-- {
		r := garbage[i]
		r.dropValue()
		r.detachChildren(nil)
		c.kill(r)
	}
	return len(garbage)
}

func (c *Collector) gatherWhite(s *record, out []*record) []*record {
	if s.color != White {
		return out
	}
	s.color = Black
	out = append(out, s)
	stack := append(c.grayStack[:0], s)
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		r.children(func(child *record) {
			if child.color == White {
				child.color = Black
				out = append(out, child)
				stack = append(stack, child)
			}
		})
	}
	c.grayStack = stack[:0]
	return out
}
