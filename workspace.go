package minicortex

import (
	"encoding/json"
	"sync"

	"github.com/minicortex/minicortex/array"
	"github.com/minicortex/minicortex/descriptor"
	"github.com/minicortex/minicortex/errs"
	"github.com/minicortex/minicortex/log"
	"github.com/minicortex/minicortex/persistence/leveldb"
	"github.com/minicortex/minicortex/persistence/stage"
)

const workspaceFormatVersion = 1

// wire document shapes, matching the stable wire contract of spec ch.6.
type wireDocument struct {
	Version     int              `json:"version"`
	Viewport    wireViewport     `json:"viewport"`
	Nodes       []wireNode       `json:"nodes"`
	Connections []wireConnection `json:"connections"`
}

type wireViewport struct {
	Pan  wirePoint `json:"pan"`
	Zoom float64   `json:"zoom"`
}

type wirePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type wireNode struct {
	ID             string                     `json:"id"`
	Type           string                     `json:"type"`
	Position       wirePoint                  `json:"position"`
	Properties     map[string]json.RawMessage `json:"properties"`
	Stores         map[string]json.RawMessage `json:"stores"`
	OutputsEnabled map[string]bool            `json:"outputs_enabled"`
}

type wireConnection struct {
	FromNode   string `json:"from_node"`
	FromOutput string `json:"from_output"`
	ToNode     string `json:"to_node"`
	ToInput    string `json:"to_input"`
}

// wireArray is the {__array__,dtype,shape,data} numeric-array encoding.
type wireArray struct {
	Array bool        `json:"__array__"`
	Dtype string      `json:"dtype"`
	Shape []int       `json:"shape"`
	Data  interface{} `json:"data"`
}

func encodeValue(v interface{}) interface{} {
	if arr, ok := v.(array.NDArray); ok {
		return wireArray{Array: true, Dtype: string(arr.Dtype), Shape: arr.Shape, Data: arr.NestedList()}
	}
	return v
}

func decodeValue(raw json.RawMessage) (interface{}, error) {
	var probe map[string]interface{}
	if err := json.Unmarshal(raw, &probe); err == nil {
		if tagged, _ := probe["__array__"].(bool); tagged {
			var wa wireArray
			if err := json.Unmarshal(raw, &wa); err != nil {
				return nil, err
			}
			arr, err := array.FromNestedList(array.Dtype(wa.Dtype), wa.Shape, wa.Data)
			if err != nil {
				return nil, err
			}
			return arr, nil
		}
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// WorkspaceStore is the save/load/delete/clear/list/current operation
// set over a durable leveldb-backed document store (spec ch.4.7). Load
// builds the replacement graph entirely off to the side (staged via the
// moss-backed persistence/stage package) and installs it into the
// registry only once the whole document has parsed and validated, so a
// corrupt file never disturbs a running graph.
type WorkspaceStore struct {
	mu         sync.Mutex
	db         *leveldb.DB
	current    string
	registry   *Registry
	supervisor *Supervisor
	logger     log.Logger
}

// NewWorkspaceStore builds a WorkspaceStore over db, acting on reg. sup
// may be nil; when set, a successful load triggers a probing tick.
func NewWorkspaceStore(db *leveldb.DB, reg *Registry, sup *Supervisor, logger log.Logger) *WorkspaceStore {
	if logger == nil {
		logger = log.Nop()
	}
	return &WorkspaceStore{db: db, registry: reg, supervisor: sup, logger: logger}
}

// Save encodes the live registry and writes it under name.
func (w *WorkspaceStore) Save(name string) error {
	snap := w.registry.Snapshot()

	doc := wireDocument{
		Version:  workspaceFormatVersion,
		Viewport: wireViewport{Pan: wirePoint{X: snap.Viewport.PanX, Y: snap.Viewport.PanY}, Zoom: snap.Viewport.Zoom},
	}
	for _, inst := range snap.Instances {
		wn := wireNode{
			ID: inst.ID, Type: inst.Type,
			Position:       wirePoint{X: inst.Position.X, Y: inst.Position.Y},
			Properties:     make(map[string]json.RawMessage, len(inst.Properties)),
			Stores:         make(map[string]json.RawMessage, len(inst.Stores)),
			OutputsEnabled: inst.DisplayEnabled,
		}
		for k, v := range inst.Properties {
			raw, err := json.Marshal(encodeValue(v))
			if err != nil {
				return errs.Wrap(errs.Validation, err, "encoding property %q of %q", k, inst.ID)
			}
			wn.Properties[k] = raw
		}
		for k, v := range inst.Stores {
			raw, err := json.Marshal(encodeValue(v))
			if err != nil {
				return errs.Wrap(errs.Validation, err, "encoding store %q of %q", k, inst.ID)
			}
			wn.Stores[k] = raw
		}
		doc.Nodes = append(doc.Nodes, wn)
	}
	for _, c := range snap.Connections {
		doc.Connections = append(doc.Connections, wireConnection{
			FromNode: c.SrcID, FromOutput: c.SrcKey, ToNode: c.DstID, ToInput: c.DstKey,
		})
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return errs.Wrap(errs.Validation, err, "encoding workspace %q", name)
	}
	if err := w.db.Set(name, raw); err != nil {
		return errs.Wrap(errs.LoadFailed, err, "saving workspace %q", name)
	}

	w.mu.Lock()
	w.current = name
	w.mu.Unlock()
	return nil
}

// Load clears the registry, rebuilds instances (running init on each),
// restores connections and the viewport, and runs one probing tick
// (spec ch.4.7).
func (w *WorkspaceStore) Load(name string) error {
	raw, err := w.db.Get(name)
	if err != nil {
		return errs.Wrap(errs.LoadFailed, err, "loading workspace %q", name)
	}

	var doc wireDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errs.Wrap(errs.LoadFailed, err, "parsing workspace %q", name)
	}

	st, err := stage.New()
	if err != nil {
		return errs.Wrap(errs.LoadFailed, err, "staging workspace %q", name)
	}
	defer st.Close()

	scratch := newSignalStore()
	instances := make(map[string]*Instance, len(doc.Nodes))
	order := make([]string, 0, len(doc.Nodes))

	for _, wn := range doc.Nodes {
		class, ok := w.registry.GetClass(wn.Type)
		if !ok {
			return errs.New(errs.LoadFailed, "workspace %q: unknown class %q for instance %q", name, wn.Type, wn.ID)
		}
		classCopy := class

		node := classCopy.Factory()
		inst := newInstance(wn.ID, &classCopy, node, Position{X: wn.Position.X, Y: wn.Position.Y})

		for k, raw := range wn.Properties {
			v, err := decodeValue(raw)
			if err != nil {
				return errs.Wrap(errs.LoadFailed, err, "workspace %q: property %q of %q", name, k, wn.ID)
			}
			inst.cells[k] = v
		}
		for k, raw := range wn.Stores {
			v, err := decodeValue(raw)
			if err != nil {
				return errs.Wrap(errs.LoadFailed, err, "workspace %q: store %q of %q", name, k, wn.ID)
			}
			inst.cells[k] = v
		}
		for k, v := range wn.OutputsEnabled {
			if _, ok := inst.displayEnabled[k]; ok {
				inst.displayEnabled[k] = v
			}
		}

		if initer, ok := node.(Initializer); ok {
			ctx := newCtx(inst, scratch, w.logger)
			if err := initer.Init(ctx); err != nil {
				return errs.Wrap(errs.LoadFailed, err, "workspace %q: init failed for %q", name, wn.ID)
			}
		}

		nodeRaw, err := json.Marshal(wn)
		if err != nil {
			return errs.Wrap(errs.LoadFailed, err, "workspace %q: staging %q", name, wn.ID)
		}
		if err := st.Put([]byte(wn.ID), nodeRaw); err != nil {
			return errs.Wrap(errs.LoadFailed, err, "workspace %q: staging %q", name, wn.ID)
		}

		instances[wn.ID] = inst
		order = append(order, wn.ID)
	}

	conns := make([]Connection, 0, len(doc.Connections))
	for _, wc := range doc.Connections {
		src, ok := instances[wc.FromNode]
		if !ok {
			return errs.New(errs.LoadFailed, "workspace %q: connection references unknown instance %q", name, wc.FromNode)
		}
		dst, ok := instances[wc.ToNode]
		if !ok {
			return errs.New(errs.LoadFailed, "workspace %q: connection references unknown instance %q", name, wc.ToNode)
		}
		outDesc, ok := src.Class.Schema.Get(wc.FromOutput)
		if !ok || outDesc.Kind != descriptor.KindOutputPort {
			return errs.New(errs.LoadFailed, "workspace %q: %q has no output %q", name, wc.FromNode, wc.FromOutput)
		}
		inDesc, ok := dst.Class.Schema.Get(wc.ToInput)
		if !ok || inDesc.Kind != descriptor.KindInputPort {
			return errs.New(errs.LoadFailed, "workspace %q: %q has no input %q", name, wc.ToNode, wc.ToInput)
		}
		if !descriptor.Compatible(outDesc.DataType, inDesc.DataType) {
			return errs.New(errs.LoadFailed, "workspace %q: %q -> %q type mismatch", name, wc.FromNode, wc.ToNode)
		}
		conns = append(conns, Connection{SrcID: wc.FromNode, SrcKey: wc.FromOutput, DstID: wc.ToNode, DstKey: wc.ToInput})
	}

	// Replay the staged documents before installing anything live: this is
	// the atomicity gate spec ch.7 describes. Each staged entry must still
	// decode and must correspond to an instance that survived validation
	// above; any mismatch aborts the load with the registry untouched.
	staged := make(map[string]struct{}, len(doc.Nodes))
	if err := st.Each(func(key, value []byte) error {
		id := string(key)
		var wn wireNode
		if err := json.Unmarshal(value, &wn); err != nil {
			return errs.Wrap(errs.LoadFailed, err, "workspace %q: replaying staged instance %q", name, id)
		}
		if _, ok := instances[id]; !ok {
			return errs.New(errs.LoadFailed, "workspace %q: staged instance %q missing from decode set", name, id)
		}
		staged[id] = struct{}{}
		return nil
	}); err != nil {
		return err
	}
	if len(staged) != len(instances) {
		return errs.New(errs.LoadFailed, "workspace %q: staged %d instances, decoded %d", name, len(staged), len(instances))
	}

	vp := Viewport{PanX: doc.Viewport.Pan.X, PanY: doc.Viewport.Pan.Y, Zoom: doc.Viewport.Zoom}
	w.registry.replaceGraph(instances, order, conns, vp)

	w.mu.Lock()
	w.current = name
	w.mu.Unlock()

	if w.supervisor != nil {
		w.supervisor.Probe()
	}
	return nil
}

// Delete removes the saved document for name, if any.
func (w *WorkspaceStore) Delete(name string) error {
	if err := w.db.Delete(name); err != nil {
		return errs.Wrap(errs.LoadFailed, err, "deleting workspace %q", name)
	}
	return nil
}

// Clear empties the registry and viewport without removing any saved
// file (spec ch.4.7).
func (w *WorkspaceStore) Clear() {
	w.registry.replaceGraph(make(map[string]*Instance), nil, nil, Viewport{Zoom: 1.0})
	w.mu.Lock()
	w.current = ""
	w.mu.Unlock()
}

// List enumerates saved workspace names.
func (w *WorkspaceStore) List() ([]string, error) {
	names, err := w.db.List()
	if err != nil {
		return nil, errs.Wrap(errs.LoadFailed, err, "listing workspaces")
	}
	return names, nil
}

// Current returns the most recently saved or loaded name, process-wide
// and non-persistent (spec ch.4.7).
func (w *WorkspaceStore) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
