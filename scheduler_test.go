package minicortex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicortex/minicortex/descriptor"
)

func TestBuildOrderFeedforward(t *testing.T) {
	ids := []string{"a", "b", "c"}
	conns := []Connection{
		{SrcID: "a", SrcKey: "out", DstID: "b", DstKey: "in"},
		{SrcID: "b", SrcKey: "out", DstID: "c", DstKey: "in"},
	}
	order := BuildOrder(ids, conns)
	assert.Equal(t, []string{"a", "b", "c"}, order)

	feedback := classifyFeedback(order, conns)
	for _, c := range conns {
		assert.False(t, feedback[c], "acyclic edges are always feedforward")
	}
}

func TestBuildOrderDeterministicOnTies(t *testing.T) {
	// Three independent roots with no edges between them: creation order
	// breaks the tie among equally-eligible zero-in-degree nodes.
	ids := []string{"x", "y", "z"}
	order := BuildOrder(ids, nil)
	assert.Equal(t, []string{"x", "y", "z"}, order)
}

func TestBuildOrderSelfLoopSmallestInDegreeBreak(t *testing.T) {
	ids := []string{"c"}
	conns := []Connection{
		{SrcID: "c", SrcKey: "curr", DstID: "c", DstKey: "prev"},
	}
	order := BuildOrder(ids, conns)
	assert.Equal(t, []string{"c"}, order)

	feedback := classifyFeedback(order, conns)
	assert.True(t, feedback[conns[0]], "a self-loop is always a feedback edge")
}

func TestBuildOrderTwoCycleBreaksOnSmallestInDegree(t *testing.T) {
	// a->b, b->a is a pure 2-cycle: both nodes start at in-degree 1, so
	// the tie is broken by creation order (a first).
	ids := []string{"a", "b"}
	conns := []Connection{
		{SrcID: "a", SrcKey: "out", DstID: "b", DstKey: "in"},
		{SrcID: "b", SrcKey: "out", DstID: "a", DstKey: "in"},
	}
	order := BuildOrder(ids, conns)
	assert.Equal(t, []string{"a", "b"}, order)

	feedback := classifyFeedback(order, conns)
	assert.False(t, feedback[conns[0]], "a->b: a precedes b in order")
	assert.True(t, feedback[conns[1]], "b->a: b is at or after a in order")
}

func TestBuildOrderBreaksOnLowestCurrentInDegree(t *testing.T) {
	// a->b, b->a, and a separate edge c->b start b at in-degree 2 and a
	// at 1. Placing c first drops b's *current* in-degree to 1, so at the
	// cycle break a and b tie at 1 and creation order picks a.
	ids := []string{"a", "b", "c"}
	conns := []Connection{
		{SrcID: "a", SrcKey: "out", DstID: "b", DstKey: "in"},
		{SrcID: "b", SrcKey: "out", DstID: "a", DstKey: "in"},
		{SrcID: "c", SrcKey: "out", DstID: "b", DstKey: "in2"},
	}
	order := BuildOrder(ids, conns)
	require.Equal(t, "c", order[0], "c has in-degree 0 and is placed first")
	require.Equal(t, "a", order[1], "a breaks the cycle: it ties b at current in-degree 1 and was created first")
	assert.Equal(t, "b", order[2])
}

func twoNodeFeedforwardRegistry(t *testing.T) (*Registry, string, string) {
	t.Helper()
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "src",
		Schema:   descriptor.NewBuilder().Output("out", "Out", descriptor.Float).Build(),
		Factory: func() Node {
			return &fnNode{processFn: func(ctx *Ctx) { ctx.SetOutput("out", 5.0) }}
		},
	}))
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "addone",
		Schema: descriptor.NewBuilder().
			Input("in", "In", descriptor.Float).
			Output("out", "Out", descriptor.Float).
			Build(),
		Factory: func() Node {
			return &fnNode{processFn: func(ctx *Ctx) {
				v, _ := ctx.Input("in").(float64)
				ctx.SetOutput("out", v+1)
			}}
		},
	}))
	src, err := r.CreateInstance("src", Position{})
	require.NoError(t, err)
	dst, err := r.CreateInstance("addone", Position{})
	require.NoError(t, err)
	require.NoError(t, r.Connect(src.ID, "out", dst.ID, "in", false))
	return r, src.ID, dst.ID
}

func TestTickFeedforwardPropagatesSameTick(t *testing.T) {
	r, _, dstID := twoNodeFeedforwardRegistry(t)

	res := r.Tick()
	require.NoError(t, res.Err)

	r.mu.RLock()
	dst := r.instances[dstID]
	r.mu.RUnlock()
	assert.Equal(t, 6.0, dst.cell("out"), "addone reads src's output in the same tick it was produced")
}

func TestTickSelfLoopFeedbackHasOneTickLag(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "counter",
		Schema: descriptor.NewBuilder().
			Input("prev", "Prev", descriptor.Float).
			Output("curr", "Curr", descriptor.Float).
			Build(),
		Factory: func() Node {
			return &fnNode{processFn: func(ctx *Ctx) {
				prev, ok := ctx.Input("prev").(float64)
				if !ok {
					prev = 0
				}
				ctx.SetOutput("curr", prev+1)
			}}
		},
	}))
	inst, err := r.CreateInstance("counter", Position{})
	require.NoError(t, err)
	require.NoError(t, r.Connect(inst.ID, "curr", inst.ID, "prev", false))

	r.mu.RLock()
	live := r.instances[inst.ID]
	r.mu.RUnlock()

	require.NoError(t, r.Tick().Err)
	assert.Equal(t, 1.0, live.cell("curr"), "first tick: no previous value, prev defaults to 0")

	require.NoError(t, r.Tick().Err)
	assert.Equal(t, 2.0, live.cell("curr"), "second tick: prev reads back last tick's feedback value")

	require.NoError(t, r.Tick().Err)
	assert.Equal(t, 3.0, live.cell("curr"))
}

func TestTickStopsOnErrorButKeepsEarlierResults(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "src",
		Schema:   descriptor.NewBuilder().Output("out", "Out", descriptor.Float).Build(),
		Factory: func() Node {
			return &fnNode{processFn: func(ctx *Ctx) { ctx.SetOutput("out", 42.0) }}
		},
	}))
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "boom",
		Schema:   descriptor.NewBuilder().Input("in", "In", descriptor.Float).Build(),
		Factory: func() Node {
			return &fnNode{processFn: func(ctx *Ctx) { panic("node exploded") }}
		},
	}))

	src, err := r.CreateInstance("src", Position{})
	require.NoError(t, err)
	boom, err := r.CreateInstance("boom", Position{})
	require.NoError(t, err)
	require.NoError(t, r.Connect(src.ID, "out", boom.ID, "in", false))

	res := r.Tick()
	require.Error(t, res.Err)
	assert.Equal(t, boom.ID, res.Failed)

	r.mu.RLock()
	srcLive := r.instances[src.ID]
	boomLive := r.instances[boom.ID]
	r.mu.RUnlock()

	assert.Equal(t, 42.0, srcLive.cell("out"), "the upstream node's result survives a downstream failure")
	assert.Nil(t, srcLive.Error)
	require.NotNil(t, boomLive.Error)
	assert.Contains(t, boomLive.Error.Message, "node exploded")
}
