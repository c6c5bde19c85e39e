package minicortex

import (
	"sync"

	"github.com/google/uuid"
	"github.com/minicortex/minicortex/descriptor"
	"github.com/minicortex/minicortex/errs"
	"github.com/minicortex/minicortex/log"
)

// Connection is a directed edge from one node's output port to another's
// input port. Connections are unique on target and many-to-one on
// source (spec ch.3).
type Connection struct {
	SrcID, SrcKey string
	DstID, DstKey string
}

// Viewport is the editor's pan/zoom state.
type Viewport struct {
	PanX, PanY float64
	Zoom       float64
}

const (
	minZoom = 0.1
	maxZoom = 3.0
)

// Registry is the process-wide (or test-owned) catalog of classes, live
// instances, connections and the viewport, guarded by a single exclusive
// lock (spec ch.4.3). Tests construct their own Registry rather than
// touching global state (spec ch.9).
type Registry struct {
	mu sync.RWMutex

	classes   map[string]*Class
	instances map[string]*Instance
	order     []string // instance IDs, creation order

	connections []Connection
	viewport    Viewport

	signals *signalStore
	source  *ClassSource
	logger  log.Logger
	idGen   func() string
}

// NewRegistry returns an empty registry. logger may be nil, in which case
// a no-op logger is used.
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	return &Registry{
		classes:   make(map[string]*Class),
		instances: make(map[string]*Instance),
		signals:   newSignalStore(),
		source:    NewClassSource(),
		logger:    logger,
		idGen:     uuid.NewString,
		viewport:  Viewport{Zoom: 1.0},
	}
}

// ClassSource returns the registry's class-source indirection, used to
// register Derivers for dynamic classes (spec ch.4.6).
func (r *Registry) ClassSource() *ClassSource { return r.source }

// SetIDGenerator overrides how new instance IDs are minted; tests use
// this for deterministic, readable IDs.
func (r *Registry) SetIDGenerator(f func() string) { r.idGen = f }

// RegisterClass adds or replaces a class in the class table. A repeat
// registration of a dynamic class is a replacement; a repeat
// registration of a non-dynamic class with the same type name is an
// error, since the "same type name may be replaced during a running
// session" carve-out applies only to dynamic classes (spec ch.3, ch.4.3).
func (r *Registry) RegisterClass(c Class) error {
	if c.TypeName == "" {
		return errs.New(errs.Validation, "class type name must not be empty")
	}
	if c.Factory == nil {
		return errs.New(errs.Validation, "class %q has no factory", c.TypeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.classes[c.TypeName]; ok && !existing.Dynamic {
		return errs.New(errs.Validation, "class %q is already registered", c.TypeName)
	}

	cc := c
	r.classes[c.TypeName] = &cc
	return nil
}

// GetClass returns the class with the given type name.
func (r *Registry) GetClass(typeName string) (Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[typeName]
	if !ok {
		return Class{}, false
	}
	return *c, true
}

// Palette lists every registered class grouped by category, in the
// shape the "get palette" control-plane operation returns (spec ch.6).
func (r *Registry) Palette() []PaletteCategory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byCategory := make(map[Category][]PaletteEntry)
	var order []Category
	for _, c := range r.classes {
		if _, seen := byCategory[c.Category]; !seen {
			order = append(order, c.Category)
		}
		byCategory[c.Category] = append(byCategory[c.Category], PaletteEntry{
			Type: c.TypeName, DisplayName: c.TypeName,
		})
	}

	out := make([]PaletteCategory, 0, len(order))
	for _, cat := range order {
		out = append(out, PaletteCategory{Category: cat, Entries: byCategory[cat]})
	}
	return out
}

// CreateInstance instantiates a class at the given position, runs Init
// if the node implements Initializer, and registers it under a fresh
// instance ID (spec ch.3).
func (r *Registry) CreateInstance(typeName string, pos Position) (*Instance, error) {
	if !pos.Finite() {
		return nil, errs.New(errs.Validation, "position must be finite")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	class, ok := r.classes[typeName]
	if !ok {
		return nil, errs.New(errs.NotFound, "no such class %q", typeName)
	}

	node := class.Factory()
	id := r.idGen()
	inst := newInstance(id, class, node, pos)

	if initer, ok := node.(Initializer); ok {
		ctx := newCtx(inst, r.signals, r.logger)
		if err := initer.Init(ctx); err != nil {
			return nil, errs.Wrap(errs.NodeRuntime, err, "init failed for new %q instance", typeName)
		}
	}

	r.instances[id] = inst
	r.order = append(r.order, id)
	return inst, nil
}

// DeleteInstance removes an instance, every connection touching it, and
// clears its signals (spec ch.3, ch.4.3).
func (r *Registry) DeleteInstance(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[id]; !ok {
		return errs.New(errs.NotFound, "no such instance %q", id)
	}

	kept := r.connections[:0:0]
	for _, c := range r.connections {
		if c.SrcID != id && c.DstID != id {
			kept = append(kept, c)
		}
	}
	r.connections = kept

	delete(r.instances, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.signals.clearNode(id)
	return nil
}

func (r *Registry) findPort(instID, key string, kind descriptor.Kind) (*Instance, descriptor.Descriptor, error) {
	inst, ok := r.instances[instID]
	if !ok {
		return nil, descriptor.Descriptor{}, errs.New(errs.NotFound, "no such instance %q", instID)
	}
	d, ok := inst.Class.Schema.Get(key)
	if !ok || d.Kind != kind {
		return nil, descriptor.Descriptor{}, errs.New(errs.NotFound, "instance %q has no %s port %q", instID, kind, key)
	}
	return inst, d, nil
}

// Connect adds a connection, subject to the uniqueness and type
// compatibility invariants (spec ch.3, ch.4.3). If strictAcyclic is set,
// a connection that would introduce a cycle is rejected with errs.Cycle;
// by default cycles are permitted.
func (r *Registry) Connect(srcID, srcKey, dstID, dstKey string, strictAcyclic bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, outDesc, err := r.findPort(srcID, srcKey, descriptor.KindOutputPort)
	if err != nil {
		return err
	}
	_, inDesc, err := r.findPort(dstID, dstKey, descriptor.KindInputPort)
	if err != nil {
		return err
	}

	if !descriptor.Compatible(outDesc.DataType, inDesc.DataType) {
		return errs.New(errs.TypeMismatch, "output %q (%s) is not compatible with input %q (%s)",
			srcKey, outDesc.DataType, dstKey, inDesc.DataType)
	}

	for _, c := range r.connections {
		if c.DstID == dstID && c.DstKey == dstKey {
			return errs.New(errs.PortBusy, "input %q on instance %q already has a connection", dstKey, dstID)
		}
	}

	if strictAcyclic && r.wouldCycle(srcID, dstID) {
		return errs.New(errs.Cycle, "connecting %q -> %q would introduce a cycle", srcID, dstID)
	}

	r.connections = append(r.connections, Connection{SrcID: srcID, SrcKey: srcKey, DstID: dstID, DstKey: dstKey})
	return nil
}

// wouldCycle reports whether adding an edge src->dst would create a
// cycle, by checking whether dst can already reach src.
func (r *Registry) wouldCycle(src, dst string) bool {
	if src == dst {
		return true
	}
	visited := make(map[string]bool)
	var walk func(string) bool
	walk = func(node string) bool {
		if node == src {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, c := range r.connections {
			if c.SrcID == node {
				if walk(c.DstID) {
					return true
				}
			}
		}
		return false
	}
	return walk(dst)
}

// Disconnect removes the matching connection; a no-op if absent (spec
// ch.4.3).
func (r *Registry) Disconnect(srcID, srcKey, dstID, dstKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.connections {
		if c.SrcID == srcID && c.SrcKey == srcKey && c.DstID == dstID && c.DstKey == dstKey {
			r.connections = append(r.connections[:i], r.connections[i+1:]...)
			return nil
		}
	}
	return nil
}

// SetPosition updates an instance's editor position.
func (r *Registry) SetPosition(id string, x, y float64) error {
	pos := Position{X: x, Y: y}
	if !pos.Finite() {
		return errs.New(errs.Validation, "position must be finite")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return errs.New(errs.NotFound, "no such instance %q", id)
	}
	inst.Position = pos
	return nil
}

// SetProperty validates, coerces and clamps value per the property's
// kind, writes it, and fires the optional on-change callback with the
// new and old values (spec ch.4.1).
func (r *Registry) SetProperty(id, key string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return errs.New(errs.NotFound, "no such instance %q", id)
	}
	d, ok := inst.Class.Schema.Get(key)
	if !ok || d.Kind != descriptor.KindProperty {
		return errs.New(errs.NotFound, "instance %q has no property %q", id, key)
	}

	coerced, err := d.PropertyKind.Coerce(value)
	if err != nil {
		return errs.Wrap(errs.Validation, err, "invalid value for property %q", key)
	}

	old := inst.cell(key)
	inst.setCell(key, coerced)

	if d.OnChange != "" {
		if provider, ok := inst.Node.(OnChangeProvider); ok {
			if cb, ok := provider.OnChangeCallbacks()[d.OnChange]; ok {
				ctx := newCtx(inst, r.signals, r.logger)
				cb(ctx, key, coerced, old)
			}
		}
	}
	return nil
}

// ToggleDisplayEnabled flips whether a display's value is included in
// broadcast frames.
func (r *Registry) ToggleDisplayEnabled(id, key string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return errs.New(errs.NotFound, "no such instance %q", id)
	}
	d, ok := inst.Class.Schema.Get(key)
	if !ok || d.Kind != descriptor.KindDisplay {
		return errs.New(errs.NotFound, "instance %q has no display %q", id, key)
	}
	inst.displayEnabled[key] = enabled
	return nil
}

// InvokeAction synchronously runs the named action callback, under the
// registry lock, for the duration of the call (spec ch.4.5).
func (r *Registry) InvokeAction(id, key string, params map[string]interface{}) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "no such instance %q", id)
	}
	d, ok := inst.Class.Schema.Get(key)
	if !ok || d.Kind != descriptor.KindAction {
		return nil, errs.New(errs.NotFound, "instance %q has no action %q", id, key)
	}
	provider, ok := inst.Node.(ActionProvider)
	if !ok {
		return nil, errs.New(errs.NotFound, "instance %q's class does not implement any actions", id)
	}
	fn, ok := provider.Actions()[d.Callback]
	if !ok {
		return nil, errs.New(errs.NotFound, "instance %q has no action callback %q", id, d.Callback)
	}

	ctx := newCtx(inst, r.signals, r.logger)
	result, err := fn(ctx, params)
	if err != nil {
		inst.Error = &ErrorState{Message: err.Error()}
		return nil, errs.Wrap(errs.NodeRuntime, err, "action %q failed", key)
	}
	return result, nil
}

// OnChangeProvider is implemented by nodes that want to be notified when
// a property with a declared on-change callback name is written.
type OnChangeProvider interface {
	OnChangeCallbacks() map[string]OnChangeFunc
}

// OnChangeFunc handles a property value change.
type OnChangeFunc func(ctx *Ctx, key string, newValue, oldValue interface{})

// InstanceView is a read-only rendering of one instance for Snapshot.
type InstanceView struct {
	ID             string
	Type           string
	Position       Position
	Properties     map[string]interface{}
	Stores         map[string]interface{}
	Displays       map[string]interface{}
	DisplayEnabled map[string]bool
	Error          *ErrorState
}

// Snapshot is the structured view of the registry used to seed the UI
// and respond to mutation APIs (spec ch.4.3).
type Snapshot struct {
	Instances   []InstanceView
	Connections []Connection
	Viewport    Viewport
}

// Snapshot returns a structured, order-stable view of the registry.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() Snapshot {
	snap := Snapshot{Viewport: r.viewport}
	for _, id := range r.order {
		inst, ok := r.instances[id]
		if !ok {
			continue
		}
		snap.Instances = append(snap.Instances, instanceView(inst))
	}
	snap.Connections = append(snap.Connections, r.connections...)
	return snap
}

func instanceView(inst *Instance) InstanceView {
	v := InstanceView{
		ID:             inst.ID,
		Type:           inst.ClassTyp,
		Position:       inst.Position,
		Properties:     make(map[string]interface{}),
		Stores:         make(map[string]interface{}),
		Displays:       make(map[string]interface{}),
		DisplayEnabled: inst.snapshotDisplayEnabled(),
		Error:          inst.Error,
	}
	for _, d := range inst.Class.Schema.Entries() {
		switch d.Kind {
		case descriptor.KindProperty:
			v.Properties[d.Key] = inst.cell(d.Key)
		case descriptor.KindStore:
			v.Stores[d.Key] = inst.cell(d.Key)
		case descriptor.KindDisplay:
			v.Displays[d.Key] = inst.cell(d.Key)
		}
	}
	return v
}

// SetViewport updates pan/zoom, clamping zoom to [0.1, 3.0] (spec ch.3).
func (r *Registry) SetViewport(panX, panY, zoom float64) {
	if zoom < minZoom {
		zoom = minZoom
	}
	if zoom > maxZoom {
		zoom = maxZoom
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = Viewport{PanX: panX, PanY: panY, Zoom: zoom}
}

// Viewport returns the current viewport.
func (r *Registry) Viewport() Viewport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewport
}

// replaceGraph atomically swaps the instance table, creation order,
// connection list and viewport, used by workspace load/clear to install
// a fully-built replacement graph without ever exposing a partially
// loaded one (spec ch.7). The class table is untouched: classes are a
// process-wide registration, not part of a workspace document.
func (r *Registry) replaceGraph(instances map[string]*Instance, order []string, conns []Connection, vp Viewport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = instances
	r.order = order
	r.connections = conns
	r.viewport = vp
	r.signals = newSignalStore()
}

// instanceCount returns the number of live instances.
func (r *Registry) instanceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// InstanceSummary is the lean, list-oriented view of one instance used
// by the "list instances" control-plane operation (spec ch.6) — just
// enough to populate a node list, as distinct from Snapshot's full
// per-descriptor value maps.
type InstanceSummary struct {
	ID       string
	Type     string
	Name     string
	Position Position
}

// ListInstances returns every live instance's lean summary, in creation
// order.
func (r *Registry) ListInstances() []InstanceSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]InstanceSummary, 0, len(r.order))
	for _, id := range r.order {
		inst, ok := r.instances[id]
		if !ok {
			continue
		}
		out = append(out, InstanceSummary{ID: inst.ID, Type: inst.ClassTyp, Name: inst.ClassTyp, Position: inst.Position})
	}
	return out
}

// InstanceSchemaEntry is one class descriptor merged with the
// requesting instance's current value for it, so a UI can render one
// control (its type/bounds/options) already filled in.
type InstanceSchemaEntry struct {
	descriptor.Descriptor
	Value interface{}
}

// InstanceSchemaView is the "get instance schema" result (spec ch.6):
// the class schema, in declaration order, merged with this instance's
// current values.
type InstanceSchemaView struct {
	ID      string
	Type    string
	Entries []InstanceSchemaEntry
}

// InstanceSchema returns id's class schema merged with its live values.
// Unlike Snapshot's InstanceView, this carries each descriptor's full
// metadata (data type, property bounds/options, display kind) alongside
// the value, so the UI can render controls for one instance without a
// separate round trip to the palette.
func (r *Registry) InstanceSchema(id string) (InstanceSchemaView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[id]
	if !ok {
		return InstanceSchemaView{}, errs.New(errs.NotFound, "no such instance %q", id)
	}

	entries := inst.Class.Schema.Entries()
	out := make([]InstanceSchemaEntry, len(entries))
	for i, d := range entries {
		var value interface{}
		switch d.Kind {
		case descriptor.KindProperty, descriptor.KindStore, descriptor.KindDisplay:
			value = inst.cell(d.Key)
		}
		out[i] = InstanceSchemaEntry{Descriptor: d, Value: value}
	}
	return InstanceSchemaView{ID: inst.ID, Type: inst.ClassTyp, Entries: out}, nil
}

// Rediscover re-registers every candidate class not already present in
// the class table, returning only the palette entries it newly added
// (spec ch.6 "rediscover": "newly added palette entries"). Go cannot
// re-scan a source directory at runtime the way the original discovery
// step does, so rediscovery is modeled as re-running the same
// candidate list a caller already built at startup (e.g. nodes.Classes)
// and reporting what is new — candidates already registered are
// skipped rather than treated as a duplicate-registration error, since
// re-running the same discovery step is expected to be a no-op for
// classes that haven't changed.
func (r *Registry) Rediscover(candidates []Class) ([]PaletteEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []PaletteEntry
	for _, c := range candidates {
		if c.TypeName == "" {
			return added, errs.New(errs.Validation, "class type name must not be empty")
		}
		if c.Factory == nil {
			return added, errs.New(errs.Validation, "class %q has no factory", c.TypeName)
		}
		if _, exists := r.classes[c.TypeName]; exists {
			continue
		}
		cc := c
		r.classes[c.TypeName] = &cc
		added = append(added, PaletteEntry{Type: c.TypeName, DisplayName: c.TypeName})
	}
	return added, nil
}
