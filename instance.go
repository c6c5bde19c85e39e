package minicortex

import (
	"time"

	"github.com/minicortex/minicortex/descriptor"
)

// Position is a node instance's 2D location in the editor viewport.
type Position struct {
	X, Y float64
}

// Finite reports whether both coordinates are finite, per the registry
// invariant that every instance position is finite (spec ch.3).
func (p Position) Finite() bool {
	return !isNonFinite(p.X) && !isNonFinite(p.Y)
}

func isNonFinite(f float64) bool {
	return f != f || f > maxFinite || f < -maxFinite
}

const maxFinite = 1.7976931348623157e+308 // math.MaxFloat64, avoids importing math here

// ErrorState is the most recent failure payload for an instance, or nil
// when clear (spec ch.3).
type ErrorState struct {
	Message string
	Trace   string
	At      time.Time
}

// Instance is one live node: a unique ID, a reference to its class, a
// position, a value cell per declared descriptor, per-display enabled
// flags, and an error state (spec ch.3).
type Instance struct {
	ID       string
	ClassTyp string
	Class    *Class
	Node     Node
	Position Position

	cells          map[string]interface{} // properties, stores, displays, last output values
	displayEnabled map[string]bool        // keyed by Display descriptor key, default true
	currentInputs  map[string]interface{} // this-tick gathered inputs, set by the scheduler before Process
	Error          *ErrorState
}

func newInstance(id string, class *Class, node Node, pos Position) *Instance {
	inst := &Instance{
		ID:             id,
		ClassTyp:       class.TypeName,
		Class:          class,
		Node:           node,
		Position:       pos,
		cells:          make(map[string]interface{}),
		displayEnabled: make(map[string]bool),
		currentInputs:  make(map[string]interface{}),
	}
	for key, def := range class.Schema.Defaults() {
		inst.cells[key] = def
	}
	for _, d := range class.Schema.Entries() {
		if d.Kind == descriptor.KindDisplay {
			inst.displayEnabled[d.Key] = true
		}
	}
	return inst
}

// cell reads a raw descriptor cell value (property/store/display/output).
func (inst *Instance) cell(key string) interface{} {
	return inst.cells[key]
}

func (inst *Instance) setCell(key string, value interface{}) {
	inst.cells[key] = value
}

// snapshotCells returns a shallow copy of the cell map. The scheduler
// hands this copy to a node's Process so the node writes into it rather
// than into the live instance state.
func (inst *Instance) snapshotCells() map[string]interface{} {
	out := make(map[string]interface{}, len(inst.cells))
	for k, v := range inst.cells {
		out[k] = v
	}
	return out
}

func (inst *Instance) snapshotDisplayEnabled() map[string]bool {
	out := make(map[string]bool, len(inst.displayEnabled))
	for k, v := range inst.displayEnabled {
		out[k] = v
	}
	return out
}
