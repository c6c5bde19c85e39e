// Package nodes is the builtin class library: a small set of node
// classes a fresh daemon registers by default, covering every port/
// property/store/display/action kind descriptor.go models. There is no
// runtime class-discovery directory (Go has no dynamic plugin load for
// arbitrary source the way the original node editor's scripting layer
// does) — classes are listed explicitly here and registered once at
// startup, per the ClassSource trade-off recorded in DESIGN.md.
package nodes

import (
	"fmt"

	"github.com/minicortex/minicortex"
	"github.com/minicortex/minicortex/array"
	"github.com/minicortex/minicortex/descriptor"
)

// RegisterAll installs every builtin class into reg, stopping at the
// first registration failure (only possible if a caller already
// registered a conflicting non-dynamic class under one of these names).
func RegisterAll(reg *minicortex.Registry) error {
	for _, c := range Classes() {
		if err := reg.RegisterClass(c); err != nil {
			return fmt.Errorf("nodes: register %q: %w", c.TypeName, err)
		}
	}
	return nil
}

// Classes returns every builtin class, in registration order. It is the
// discovery-directory stand-in this package models (DESIGN.md, SPEC_FULL.md
// §12): RegisterAll consumes it at startup, and the daemon's "rediscover"
// control-plane operation (spec ch.6) re-runs it against a live registry
// via Registry.Rediscover to pick up any candidates not already present.
func Classes() []minicortex.Class {
	return []minicortex.Class{
		constantClass(),
		addBiasClass(),
		accumulatorClass(),
		counterClass(),
	}
}

// constant is a source node: Property "value" is emitted on Output
// "out" every tick, unconditionally. It has no inputs.
type constant struct{}

func (constant) Process(ctx *minicortex.Ctx) {
	ctx.SetOutput("out", ctx.Property("value"))
}

func constantClass() minicortex.Class {
	schema := descriptor.NewBuilder().
		Property("value", "Value", descriptor.Range{Min: -1e9, Max: 1e9}, 0.0, "").
		Output("out", "Out", descriptor.Float).
		Build()
	return minicortex.Class{
		TypeName: "constant",
		Category: minicortex.CategoryInput,
		Schema:   schema,
		Factory:  func() minicortex.Node { return &constant{} },
	}
}

// addBias reads Input "x", adds Property "bias" and writes Output "y".
// Missing/unconnected input is tolerated (spec ch.4.2) and treated as 0,
// so the node behaves like a constant source until wired up.
type addBias struct{}

func (addBias) Process(ctx *minicortex.Ctx) {
	x, _ := toFloat(ctx.Input("x"))
	bias, _ := toFloat(ctx.Property("bias"))
	y := x + bias
	ctx.SetOutput("y", y)
	ctx.SetDisplay("y_display", y)
}

func addBiasClass() minicortex.Class {
	schema := descriptor.NewBuilder().
		Property("bias", "Bias", descriptor.Range{Min: -1000, Max: 1000}, 0.0, "").
		Input("x", "X", descriptor.Float).
		Output("y", "Y", descriptor.Float).
		Display("y_display", "Y", descriptor.Numeric{Format: "%.4f"}).
		Build()
	return minicortex.Class{
		TypeName: "add_bias",
		Category: minicortex.CategoryProcessing,
		Schema:   schema,
		Factory:  func() minicortex.Node { return &addBias{} },
	}
}

// accumulator increments its own previous output by one each tick. Wired
// back to its own input ("prev") it is the canonical self-loop feedback
// node (spec ch.4.4, "feedback edges carry last tick's value").
type accumulator struct{}

func (accumulator) Process(ctx *minicortex.Ctx) {
	prev, ok := toFloat(ctx.Input("prev"))
	if !ok {
		prev = 0
	}
	curr := prev + 1
	ctx.SetOutput("curr", curr)
	ctx.SetDisplay("curr_display", curr)
}

func accumulatorClass() minicortex.Class {
	schema := descriptor.NewBuilder().
		Input("prev", "Prev", descriptor.Float).
		Output("curr", "Curr", descriptor.Float).
		Display("curr_display", "Curr", descriptor.Numeric{Format: "%.0f"}).
		Build()
	return minicortex.Class{
		TypeName: "accumulator",
		Category: minicortex.CategoryProcessing,
		Schema:   schema,
		Factory:  func() minicortex.Node { return &accumulator{} },
	}
}

// counter is a Store/Action/Init demonstrator: Store "count" holds a
// running total bumped by one every tick unless the Property "paused"
// is set, and the "reset" Action zeroes it on demand from the control
// plane. Init seeds the store so a freshly created instance displays 0
// immediately rather than nil.
type counter struct{}

func (c *counter) Init(ctx *minicortex.Ctx) error {
	if ctx.Store("count") == nil {
		ctx.SetStore("count", 0.0)
	}
	return nil
}

func (c *counter) Process(ctx *minicortex.Ctx) {
	paused, _ := ctx.Property("paused").(bool)
	count, _ := toFloat(ctx.Store("count"))
	if !paused {
		count++
		ctx.SetStore("count", count)
	}
	ctx.SetDisplay("count_display", count)
}

func (c *counter) Actions() map[string]minicortex.ActionFunc {
	return map[string]minicortex.ActionFunc{
		"Reset": c.reset,
	}
}

func (c *counter) reset(ctx *minicortex.Ctx, params map[string]interface{}) (interface{}, error) {
	ctx.SetStore("count", 0.0)
	return 0.0, nil
}

func counterClass() minicortex.Class {
	schema := descriptor.NewBuilder().
		Property("paused", "Paused", descriptor.BoolKind{}, false, "").
		Store("count", 0.0).
		Display("count_display", "Count", descriptor.Numeric{Format: "%.0f"}).
		Action("reset", "Reset", "Reset").
		Build()
	return minicortex.Class{
		TypeName: "counter",
		Category: minicortex.CategoryUtilities,
		Schema:   schema,
		Factory:  func() minicortex.Node { return &counter{} },
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case array.NDArray:
		if len(n.Floats) > 0 {
			return n.Floats[0], true
		}
	}
	return 0, false
}
