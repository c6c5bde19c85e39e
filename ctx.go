package minicortex

import "github.com/minicortex/minicortex/log"

// Ctx is the context passed into a node's Init, Process and action
// callbacks. It replaces the original framework's magic attribute
// writes with explicit accessors (spec ch.9): Input reads an inbound
// signal, SetOutput/SetDisplay write the node's outward-facing cells,
// Property/Store/SetStore read and write tunable and persistent state.
//
// A Ctx is only valid for the duration of the call it was passed to; a
// node must not retain one across calls.
type Ctx struct {
	inst    *Instance
	signals *signalStore
	logger  log.Logger
}

func newCtx(inst *Instance, signals *signalStore, logger log.Logger) *Ctx {
	return &Ctx{inst: inst, signals: signals, logger: logger}
}

// NodeID returns this instance's ID.
func (c *Ctx) NodeID() string { return c.inst.ID }

// ClassType returns this instance's class type name.
func (c *Ctx) ClassType() string { return c.inst.ClassTyp }

// Position returns this instance's current editor position.
func (c *Ctx) Position() (x, y float64) { return c.inst.Position.X, c.inst.Position.Y }

// Input returns the most recent inbound signal for the given input port
// key, or nil if the port is unconnected or has not yet received a
// signal this run (spec ch.4.2: "process must tolerate partially-
// connected graphs").
func (c *Ctx) Input(key string) interface{} {
	return c.inst.currentInputs[key]
}

// SetOutput writes an output port's value and publishes it to the
// signal store for downstream nodes to read (spec ch.4.1).
func (c *Ctx) SetOutput(key string, value interface{}) {
	c.inst.setCell(key, value)
	c.signals.write(c.inst.ID, key, value)
}

// SetDisplay writes a display's value. Displays are streamed to
// observers only; they never feed another node's input (spec ch.3).
func (c *Ctx) SetDisplay(key string, value interface{}) {
	c.inst.setCell(key, value)
}

// Property reads a property's current coerced value.
func (c *Ctx) Property(key string) interface{} {
	return c.inst.cell(key)
}

// Store reads a store's current value.
func (c *Ctx) Store(key string) interface{} {
	return c.inst.cell(key)
}

// SetStore writes a store's value. Store values survive save/load and
// hot-reload (spec ch.3).
func (c *Ctx) SetStore(key string, value interface{}) {
	c.inst.setCell(key, value)
}

// Logger returns the registry's structured logger. It is not tagged with
// this node's ID or class type.
func (c *Ctx) Logger() log.Logger {
	return c.logger
}
