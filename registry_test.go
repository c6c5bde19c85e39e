package minicortex

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicortex/minicortex/descriptor"
	"github.com/minicortex/minicortex/errs"
)

// fnNode is a Node/Initializer/ActionProvider/OnChangeProvider test
// double whose behavior is supplied per test: a hand-rolled stub rather
// than a mocking library.
type fnNode struct {
	processFn func(ctx *Ctx)
	initFn    func(ctx *Ctx) error
	actions   map[string]ActionFunc
	onChanges map[string]OnChangeFunc
}

func (n *fnNode) Process(ctx *Ctx) {
	if n.processFn != nil {
		n.processFn(ctx)
	}
}

func (n *fnNode) Init(ctx *Ctx) error {
	if n.initFn != nil {
		return n.initFn(ctx)
	}
	return nil
}

func (n *fnNode) Actions() map[string]ActionFunc { return n.actions }

func (n *fnNode) OnChangeCallbacks() map[string]OnChangeFunc { return n.onChanges }

func sourceSchema() descriptor.Schema {
	return descriptor.NewBuilder().
		Output("out", "Out", descriptor.Float).
		Build()
}

func sinkSchema() descriptor.Schema {
	return descriptor.NewBuilder().
		Input("in", "In", descriptor.Float).
		Build()
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	n := 0
	r.SetIDGenerator(func() string {
		n++
		return fmt.Sprintf("n%d", n)
	})
	return r
}

func TestRegisterClass(t *testing.T) {
	r := newTestRegistry(t)

	err := r.RegisterClass(Class{TypeName: "source", Category: CategoryInput, Schema: sourceSchema(), Factory: func() Node { return &fnNode{} }})
	require.NoError(t, err)

	t.Run("rejects empty type name", func(t *testing.T) {
		err := r.RegisterClass(Class{Factory: func() Node { return &fnNode{} }})
		require.Error(t, err)
		assert.Equal(t, errs.Validation, err.(*errs.Error).Code)
	})

	t.Run("rejects nil factory", func(t *testing.T) {
		err := r.RegisterClass(Class{TypeName: "nofactory"})
		require.Error(t, err)
	})

	t.Run("rejects duplicate non-dynamic registration", func(t *testing.T) {
		err := r.RegisterClass(Class{TypeName: "source", Factory: func() Node { return &fnNode{} }})
		require.Error(t, err)
	})

	t.Run("allows dynamic class replacement", func(t *testing.T) {
		require.NoError(t, r.RegisterClass(Class{TypeName: "dyn", Dynamic: true, Factory: func() Node { return &fnNode{} }}))
		require.NoError(t, r.RegisterClass(Class{TypeName: "dyn", Dynamic: true, Factory: func() Node { return &fnNode{} }}))
	})
}

func TestCreateInstanceRunsInit(t *testing.T) {
	r := newTestRegistry(t)
	initCalled := false
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "source", Schema: sourceSchema(),
		Factory: func() Node {
			return &fnNode{initFn: func(ctx *Ctx) error { initCalled = true; return nil }}
		},
	}))

	inst, err := r.CreateInstance("source", Position{X: 1, Y: 2})
	require.NoError(t, err)
	assert.True(t, initCalled)
	assert.Equal(t, "source", inst.ClassTyp)

	t.Run("rejects non-finite position", func(t *testing.T) {
		_, err := r.CreateInstance("source", Position{X: math.Inf(1), Y: 0})
		require.Error(t, err)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		_, err := r.CreateInstance("nope", Position{})
		require.Error(t, err)
		assert.Equal(t, errs.NotFound, err.(*errs.Error).Code)
	})
}

func TestConnectInvariants(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterClass(Class{TypeName: "source", Schema: sourceSchema(), Factory: func() Node { return &fnNode{} }}))
	require.NoError(t, r.RegisterClass(Class{TypeName: "sink", Schema: sinkSchema(), Factory: func() Node { return &fnNode{} }}))
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "strsink",
		Schema:   descriptor.NewBuilder().Input("in", "In", descriptor.Str).Build(),
		Factory:  func() Node { return &fnNode{} },
	}))

	src, err := r.CreateInstance("source", Position{})
	require.NoError(t, err)
	dst, err := r.CreateInstance("sink", Position{})
	require.NoError(t, err)
	other, err := r.CreateInstance("sink", Position{})
	require.NoError(t, err)
	strDst, err := r.CreateInstance("strsink", Position{})
	require.NoError(t, err)

	require.NoError(t, r.Connect(src.ID, "out", dst.ID, "in", false))

	t.Run("rejects second connection to the same input", func(t *testing.T) {
		err := r.Connect(src.ID, "out", dst.ID, "in", false)
		require.Error(t, err)
		assert.Equal(t, errs.PortBusy, err.(*errs.Error).Code)
	})

	t.Run("allows fan-out from one output", func(t *testing.T) {
		require.NoError(t, r.Connect(src.ID, "out", other.ID, "in", false))
	})

	t.Run("rejects type mismatch", func(t *testing.T) {
		err := r.Connect(src.ID, "out", strDst.ID, "in", false)
		require.Error(t, err)
		assert.Equal(t, errs.TypeMismatch, err.(*errs.Error).Code)
	})

	t.Run("rejects unknown port", func(t *testing.T) {
		err := r.Connect(src.ID, "nope", dst.ID, "in", false)
		require.Error(t, err)
		assert.Equal(t, errs.NotFound, err.(*errs.Error).Code)
	})

	t.Run("strict acyclic rejects a cycle", func(t *testing.T) {
		require.NoError(t, r.RegisterClass(Class{
			TypeName: "inout",
			Schema:   descriptor.NewBuilder().Input("in", "In", descriptor.Float).Output("out", "Out", descriptor.Float).Build(),
			Factory:  func() Node { return &fnNode{} },
		}))
		a, err := r.CreateInstance("inout", Position{})
		require.NoError(t, err)
		b, err := r.CreateInstance("inout", Position{})
		require.NoError(t, err)

		require.NoError(t, r.Connect(a.ID, "out", b.ID, "in", true))
		err = r.Connect(b.ID, "out", a.ID, "in", true)
		require.Error(t, err)
		assert.Equal(t, errs.Cycle, err.(*errs.Error).Code)

		// Without strictAcyclic, the same cycle is permitted.
		require.NoError(t, r.Connect(b.ID, "out", a.ID, "in", false))
	})
}

func TestDeleteInstanceCascadesConnections(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterClass(Class{TypeName: "source", Schema: sourceSchema(), Factory: func() Node { return &fnNode{} }}))
	require.NoError(t, r.RegisterClass(Class{TypeName: "sink", Schema: sinkSchema(), Factory: func() Node { return &fnNode{} }}))

	src, _ := r.CreateInstance("source", Position{})
	dst, _ := r.CreateInstance("sink", Position{})
	require.NoError(t, r.Connect(src.ID, "out", dst.ID, "in", false))

	require.NoError(t, r.DeleteInstance(src.ID))

	snap := r.Snapshot()
	assert.Len(t, snap.Connections, 0)
	assert.Len(t, snap.Instances, 1)

	t.Run("deleting an unknown instance is an error", func(t *testing.T) {
		err := r.DeleteInstance("nope")
		require.Error(t, err)
		assert.Equal(t, errs.NotFound, err.(*errs.Error).Code)
	})
}

func TestSetPropertyCoercesAndFiresOnChange(t *testing.T) {
	r := newTestRegistry(t)
	var seenOld, seenNew interface{}
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "knob",
		Schema: descriptor.NewBuilder().
			Property("level", "Level", descriptor.Range{Min: 0, Max: 10}, 0.0, "onLevel").
			Build(),
		Factory: func() Node {
			return &fnNode{onChanges: map[string]OnChangeFunc{
				"onLevel": func(ctx *Ctx, key string, newValue, oldValue interface{}) {
					seenNew, seenOld = newValue, oldValue
				},
			}}
		},
	}))
	inst, err := r.CreateInstance("knob", Position{})
	require.NoError(t, err)

	require.NoError(t, r.SetProperty(inst.ID, "level", 25.0))
	assert.Equal(t, 10.0, seenNew, "value clamps to Max")
	assert.Equal(t, 0.0, seenOld)

	t.Run("rejects non-numeric value", func(t *testing.T) {
		err := r.SetProperty(inst.ID, "level", "not-a-number")
		require.Error(t, err)
		assert.Equal(t, errs.Validation, err.(*errs.Error).Code)
	})

	t.Run("rejects unknown property", func(t *testing.T) {
		err := r.SetProperty(inst.ID, "nope", 1.0)
		require.Error(t, err)
	})
}

func TestInvokeAction(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "button",
		Schema:   descriptor.NewBuilder().Action("press", "Press", "Press").Build(),
		Factory: func() Node {
			return &fnNode{actions: map[string]ActionFunc{
				"Press": func(ctx *Ctx, params map[string]interface{}) (interface{}, error) {
					return "pressed", nil
				},
			}}
		},
	}))
	inst, err := r.CreateInstance("button", Position{})
	require.NoError(t, err)

	result, err := r.InvokeAction(inst.ID, "press", nil)
	require.NoError(t, err)
	assert.Equal(t, "pressed", result)

	t.Run("rejects instance with no such action", func(t *testing.T) {
		_, err := r.InvokeAction(inst.ID, "nope", nil)
		require.Error(t, err)
	})
}

func TestListInstances(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterClass(Class{TypeName: "source", Schema: sourceSchema(), Factory: func() Node { return &fnNode{} }}))

	inst, err := r.CreateInstance("source", Position{X: 3, Y: 4})
	require.NoError(t, err)

	list := r.ListInstances()
	require.Len(t, list, 1)
	assert.Equal(t, inst.ID, list[0].ID)
	assert.Equal(t, "source", list[0].Type)
	assert.Equal(t, "source", list[0].Name)
	assert.Equal(t, Position{X: 3, Y: 4}, list[0].Position)
}

func TestInstanceSchemaMergesDescriptorsWithValues(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "knob",
		Schema: descriptor.NewBuilder().
			Property("level", "Level", descriptor.Range{Min: 0, Max: 10}, 5.0, "").
			Display("level_display", "Level", descriptor.Numeric{Format: "%.1f"}).
			Build(),
		Factory: func() Node { return &fnNode{} },
	}))
	inst, err := r.CreateInstance("knob", Position{})
	require.NoError(t, err)
	require.NoError(t, r.SetProperty(inst.ID, "level", 7.0))

	view, err := r.InstanceSchema(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, inst.ID, view.ID)
	assert.Equal(t, "knob", view.Type)
	require.Len(t, view.Entries, 2)

	level := view.Entries[0]
	assert.Equal(t, "level", level.Key)
	assert.Equal(t, descriptor.KindProperty, level.Kind)
	assert.Equal(t, descriptor.Range{Min: 0, Max: 10}, level.PropertyKind)
	assert.Equal(t, 7.0, level.Value)

	t.Run("rejects unknown instance", func(t *testing.T) {
		_, err := r.InstanceSchema("nope")
		require.Error(t, err)
		assert.Equal(t, errs.NotFound, err.(*errs.Error).Code)
	})
}

func TestRediscoverAddsOnlyNewClasses(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterClass(Class{TypeName: "source", Schema: sourceSchema(), Factory: func() Node { return &fnNode{} }}))

	candidates := []Class{
		{TypeName: "source", Schema: sourceSchema(), Factory: func() Node { return &fnNode{} }},
		{TypeName: "sink", Schema: sinkSchema(), Factory: func() Node { return &fnNode{} }},
	}
	added, err := r.Rediscover(candidates)
	require.NoError(t, err)
	require.Len(t, added, 1, "the already-registered class is skipped, not reported")
	assert.Equal(t, "sink", added[0].Type)

	_, ok := r.GetClass("sink")
	assert.True(t, ok)

	t.Run("a second rediscover with the same candidates finds nothing new", func(t *testing.T) {
		added, err := r.Rediscover(candidates)
		require.NoError(t, err)
		assert.Empty(t, added)
	})
}

func TestSetViewportClampsZoom(t *testing.T) {
	r := newTestRegistry(t)
	r.SetViewport(1, 2, 10)
	assert.Equal(t, maxZoom, r.Viewport().Zoom)

	r.SetViewport(1, 2, 0.0001)
	assert.Equal(t, minZoom, r.Viewport().Zoom)
}
