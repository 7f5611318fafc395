package main

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/orizon-lang/orizon-rc/internal/runtime"
	"github.com/orizon-lang/orizon-rc/internal/runtime/rc"
)

// workload drives the heap the way an interpreter would. Everything it
// allocates is released or left as cycle garbage before it returns.
type workload func(rt *runtime.Runtime, n int, rng *rand.Rand) error

var workloads = map[string]workload{
	"leaves": runLeaves,
	"chain":  runChain,
	"cycles": runCycles,
	"mixed":  runMixed,
}

func workloadNames() []string {
	names := make([]string, 0, len(workloads))
	for name := range workloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// blob is a value without strong fields.
type blob struct {
	data []byte
}

func (b *blob) HeapSize() uintptr { return uintptr(cap(b.data)) }

// node is a graph value. next and peer own their targets; parent only
// observes.
type node struct {
	id     int
	next   rc.Strong[node]
	peer   rc.Strong[node]
	parent rc.Weak[node]
}

func (n *node) Trace(visit func(rc.Ref)) {
	visit(&n.next)
	visit(&n.peer)
}

func (n *node) Drop() { n.parent.Release() }

func runLeaves(rt *runtime.Runtime, n int, rng *rand.Rand) error {
	held := make([]rc.Strong[blob], 0, n)
	defer func() {
		for i := range held {
			held[i].Release()
		}
	}()
	for i := 0; i < n; i++ {
		s, err := runtime.Alloc(rt, blob{data: make([]byte, 16+rng.Intn(64))})
		if err != nil {
			return err
		}
		held = append(held, s)
	}
	return nil
}

func runChain(rt *runtime.Runtime, n int, _ *rand.Rand) error {
	head, err := runtime.Alloc(rt, node{id: 0})
	if err != nil {
		return err
	}
	defer head.Release()

	tail := head.Get()
	for i := 1; i < n; i++ {
		next, err := runtime.Alloc(rt, node{id: i})
		if err != nil {
			return err
		}
		tail.next = next
		tail = tail.next.Get()
	}
	return nil
}

func runCycles(rt *runtime.Runtime, n int, _ *rand.Rand) error {
	for i := 0; i+1 < n; i += 2 {
		a, err := runtime.Alloc(rt, node{id: i})
		if err != nil {
			return err
		}
		b, err := runtime.Alloc(rt, node{id: i + 1})
		if err != nil {
			a.Release()
			return err
		}
		a.Get().next = b.Clone()
		b.Get().next = a.Clone()
		b.Get().parent = a.Downgrade()
		a.Release()
		b.Release()
	}
	return nil
}

// runMixed grows a random tree with weak parent links. Roughly one node in
// eight also owns its parent, closing a cycle.
func runMixed(rt *runtime.Runtime, n int, rng *rand.Rand) error {
	nodes := make([]rc.Strong[node], 0, n)
	defer func() {
		for i := range nodes {
			nodes[i].Release()
		}
	}()
	for i := 0; i < n; i++ {
		s, err := runtime.Alloc(rt, node{id: i})
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if len(nodes) > 0 {
			p := &nodes[rng.Intn(len(nodes))]
			parent := p.Get()
			switch {
			case parent.next.IsNil():
				parent.next = s.Clone()
			case parent.peer.IsNil():
				parent.peer = s.Clone()
			}
			child := s.Get()
			child.parent = p.Downgrade()
			if rng.Intn(8) == 0 {
				child.peer = p.Clone()
			}
		}
		nodes = append(nodes, s)
	}
	return nil
}
