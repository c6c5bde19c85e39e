package minicortex

import (
	"fmt"
	"time"

	"github.com/minicortex/minicortex/array"
	"github.com/minicortex/minicortex/errs"
)

// BuildOrder computes a per-tick evaluation order over ids (given in
// instance-creation order) and conns, using Kahn's algorithm with a
// cycle break (spec ch.4.4):
//
//  1. Compute in-degrees from conns.
//  2. Repeatedly move every zero in-degree node into the order, in
//     creation order among ties, decrementing successors' in-degrees.
//  3. If no node has in-degree zero but nodes remain, the graph has at
//     least one cycle: place the remaining node with the smallest
//     current in-degree (ties by creation order) and continue.
//
// A connection is feedforward if its source is earlier than its target
// in the returned order, feedback otherwise; callers derive this from
// the returned order rather than from how the break was resolved, since
// the two definitions agree by construction.
func BuildOrder(ids []string, conns []Connection) []string {
	indeg := make(map[string]int, len(ids))
	succ := make(map[string][]string)
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		indeg[id] = 0
		known[id] = true
	}
	for _, c := range conns {
		if !known[c.SrcID] || !known[c.DstID] {
			continue
		}
		succ[c.SrcID] = append(succ[c.SrcID], c.DstID)
		indeg[c.DstID]++
	}

	placed := make(map[string]bool, len(ids))
	order := make([]string, 0, len(ids))

	for len(order) < len(ids) {
		var frontier []string
		for _, id := range ids {
			if !placed[id] && indeg[id] == 0 {
				frontier = append(frontier, id)
			}
		}

		if len(frontier) == 0 {
			best := ""
			bestDeg := -1
			for _, id := range ids {
				if placed[id] {
					continue
				}
				if bestDeg == -1 || indeg[id] < bestDeg {
					bestDeg = indeg[id]
					best = id
				}
			}
			frontier = []string{best}
		}

		for _, n := range frontier {
			if placed[n] {
				continue
			}
			placed[n] = true
			order = append(order, n)
			for _, d := range succ[n] {
				indeg[d]--
			}
		}
	}

	return order
}

// classifyFeedback returns, for every connection among conns whose
// endpoints both appear in order, whether it is a feedback edge (source
// at or after target in the order).
func classifyFeedback(order []string, conns []Connection) map[Connection]bool {
	idx := make(map[string]int, len(order))
	for i, id := range order {
		idx[id] = i
	}
	out := make(map[Connection]bool, len(conns))
	for _, c := range conns {
		si, sok := idx[c.SrcID]
		di, dok := idx[c.DstID]
		if !sok || !dok {
			continue
		}
		out[c] = si >= di
	}
	return out
}

// TickResult reports the outcome of one scheduler tick.
type TickResult struct {
	Order  []string
	Failed string // instance ID that raised, empty on a clean tick
	Err    error
}

// Tick runs one full evaluation pass over every live instance, in Kahn
// order, gathering inputs per the feedforward/feedback discipline,
// invoking each node's Process, and harvesting its outputs back into
// the registry (spec ch.4.4, ch.4.5). The registry's exclusive lock is
// held only to snapshot state before a node runs and to publish results
// after it returns, never while Process is executing.
func (r *Registry) Tick() TickResult {
	r.mu.Lock()
	ids := append([]string(nil), r.order...)
	conns := append([]Connection(nil), r.connections...)
	r.mu.Unlock()

	order := BuildOrder(ids, conns)
	feedback := classifyFeedback(order, conns)

	res := TickResult{Order: order}

	for _, nodeID := range order {
		r.mu.Lock()
		inst, ok := r.instances[nodeID]
		if !ok {
			r.mu.Unlock()
			continue
		}
		cells := inst.snapshotCells()
		node := inst.Node
		class := inst.Class
		pos := inst.Position
		inputs := make(map[string]interface{})
		for _, c := range conns {
			if c.DstID != nodeID {
				continue
			}
			var v interface{}
			var has bool
			if feedback[c] {
				v, has = r.signals.readPrevious(c.SrcID, c.SrcKey)
			} else {
				v, has = r.signals.readCurrent(c.SrcID, c.SrcKey)
			}
			if has {
				inputs[c.DstKey] = cloneIfArray(v)
			}
		}
		r.mu.Unlock()

		transient := &Instance{
			ID: nodeID, ClassTyp: inst.ClassTyp, Class: class, Node: node, Position: pos,
			cells: cells, currentInputs: inputs, displayEnabled: inst.displayEnabled,
		}
		ctx := newCtx(transient, r.signals, r.logger)

		procErr := runProcess(node, ctx)

		r.mu.Lock()
		if live, ok := r.instances[nodeID]; ok {
			if procErr != nil {
				live.Error = &ErrorState{Message: procErr.Error(), At: time.Now()}
			} else {
				live.Error = nil
				live.cells = transient.cells
			}
		}
		r.mu.Unlock()

		if procErr != nil {
			res.Failed = nodeID
			res.Err = errs.Wrap(errs.NodeRuntime, procErr, "process failed for instance %q", nodeID)
			r.mu.Lock()
			r.signals.swap()
			r.mu.Unlock()
			return res
		}
	}

	r.mu.Lock()
	r.signals.swap()
	r.mu.Unlock()
	return res
}

// runProcess invokes node.Process, converting a panic into an error so
// that one misbehaving node never brings down the computation loop
// (spec ch.7: "raising from process is how a node signals failure").
func runProcess(node Node, ctx *Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	node.Process(ctx)
	return nil
}

func cloneIfArray(v interface{}) interface{} {
	if arr, ok := v.(array.NDArray); ok {
		return arr.Clone()
	}
	return v
}
