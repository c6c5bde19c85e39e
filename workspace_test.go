package minicortex

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicortex/minicortex/array"
	"github.com/minicortex/minicortex/descriptor"
	"github.com/minicortex/minicortex/persistence/leveldb"
)

func openTempWorkspaceDB(t *testing.T) *leveldb.DB {
	t.Helper()
	dir, err := os.MkdirTemp("", "minicortex-workspace-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := leveldb.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func workspaceTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := newTestRegistry(t)
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "knob",
		Schema: descriptor.NewBuilder().
			Property("level", "Level", descriptor.Range{Min: 0, Max: 10}, 0.0, "").
			Store("samples", array.NDArray{}).
			Output("out", "Out", descriptor.Float).
			Build(),
		Factory: func() Node { return &fnNode{} },
	}))
	require.NoError(t, r.RegisterClass(Class{
		TypeName: "sink",
		Schema:   sinkSchema(),
		Factory:  func() Node { return &fnNode{} },
	}))
	return r
}

func TestWorkspaceSaveLoadRoundTripWithArray(t *testing.T) {
	r := workspaceTestRegistry(t)
	db := openTempWorkspaceDB(t)
	ws := NewWorkspaceStore(db, r, nil, nil)

	knob, err := r.CreateInstance("knob", Position{X: 3, Y: 4})
	require.NoError(t, err)
	sink, err := r.CreateInstance("sink", Position{})
	require.NoError(t, err)
	require.NoError(t, r.Connect(knob.ID, "out", sink.ID, "in", false))

	require.NoError(t, r.SetProperty(knob.ID, "level", 7.0))

	samples, err := array.NewFloats(array.Float64, []int{3}, []float64{1, 2, 3})
	require.NoError(t, err)
	r.mu.Lock()
	r.instances[knob.ID].cells["samples"] = samples
	r.mu.Unlock()

	r.SetViewport(10, 20, 2.0)

	require.NoError(t, ws.Save("demo"))
	assert.Equal(t, "demo", ws.Current())

	// Clear the live registry, then load the saved document back.
	ws.Clear()
	assert.Equal(t, 0, r.instanceCount())

	require.NoError(t, ws.Load("demo"))
	assert.Equal(t, "demo", ws.Current())

	snap := r.Snapshot()
	require.Len(t, snap.Instances, 2)
	require.Len(t, snap.Connections, 1)
	assert.Equal(t, Viewport{PanX: 10, PanY: 20, Zoom: 2.0}, snap.Viewport)

	var knobView InstanceView
	for _, v := range snap.Instances {
		if v.Type == "knob" {
			knobView = v
		}
	}
	assert.Equal(t, 7.0, knobView.Properties["level"])

	restored, ok := knobView.Stores["samples"].(array.NDArray)
	require.True(t, ok, "array store values round-trip as array.NDArray")
	assert.Equal(t, []float64{1, 2, 3}, restored.Floats)
	assert.Equal(t, []int{3}, restored.Shape)
	assert.Equal(t, samples.Fingerprint(), restored.Fingerprint(), "round-tripped array is a semantic match of the original")
}

func TestWorkspaceLoadFailureLeavesRegistryUntouched(t *testing.T) {
	r := workspaceTestRegistry(t)
	db := openTempWorkspaceDB(t)
	ws := NewWorkspaceStore(db, r, nil, nil)

	knob, err := r.CreateInstance("knob", Position{})
	require.NoError(t, err)
	require.NoError(t, ws.Save("good"))

	// Corrupt document: references a class that was never registered.
	require.NoError(t, db.Set("bad", []byte(`{"version":1,"nodes":[{"id":"x","type":"nope"}]}`)))

	err = ws.Load("bad")
	require.Error(t, err)

	snap := r.Snapshot()
	require.Len(t, snap.Instances, 1)
	assert.Equal(t, knob.ID, snap.Instances[0].ID, "the pre-existing live graph is untouched by a failed load")
}

func TestWorkspaceListDeleteCurrent(t *testing.T) {
	r := workspaceTestRegistry(t)
	db := openTempWorkspaceDB(t)
	ws := NewWorkspaceStore(db, r, nil, nil)

	require.NoError(t, ws.Save("one"))
	require.NoError(t, ws.Save("two"))

	names, err := ws.List()
	require.NoError(t, err)
	assert.Contains(t, names, "one")
	assert.Contains(t, names, "two")

	require.NoError(t, ws.Delete("one"))
	names, err = ws.List()
	require.NoError(t, err)
	assert.NotContains(t, names, "one")
}
