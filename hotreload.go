package minicortex

import (
	"github.com/minicortex/minicortex/descriptor"
	"github.com/minicortex/minicortex/errs"
)

// HotReload re-derives a dynamic class's schema and factory from its
// registered Deriver and migrates every live instance of that type onto
// the new class, preserving property and store values by key (spec
// ch.4.6). instanceID identifies the instance that triggered the
// request; all instances of the same type are migrated together.
func (r *Registry) HotReload(instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[instanceID]
	if !ok {
		return errs.New(errs.NotFound, "no such instance %q", instanceID)
	}
	class := inst.Class
	if !class.Dynamic {
		return errs.New(errs.Validation, "class %q is not dynamic", class.TypeName)
	}

	schema, factory, err := r.source.Derive(class.SourcePath)
	if err != nil {
		return errs.Wrap(errs.ReloadFailed, err, "re-deriving class %q", class.TypeName)
	}
	if factory == nil {
		return errs.New(errs.ReloadFailed, "class %q: derived factory is nil", class.TypeName)
	}

	newClass := &Class{
		TypeName: class.TypeName, Category: class.Category, Schema: schema,
		Factory: factory, Dynamic: true, SourcePath: class.SourcePath,
	}

	type migrated struct {
		id  string
		old *Instance
		new *Instance
	}
	var all []migrated
	for id, old := range r.instances {
		if old.ClassTyp != class.TypeName {
			continue
		}
		node := newClass.Factory()
		fresh := newInstance(id, newClass, node, old.Position)

		for _, d := range newClass.Schema.Entries() {
			if d.Kind != descriptor.KindProperty && d.Kind != descriptor.KindStore {
				continue
			}
			if v, ok := old.cells[d.Key]; ok {
				fresh.cells[d.Key] = v
			}
		}
		for k, v := range old.displayEnabled {
			if _, ok := fresh.displayEnabled[k]; ok {
				fresh.displayEnabled[k] = v
			}
		}

		if initer, ok := node.(Initializer); ok {
			ctx := newCtx(fresh, r.signals, r.logger)
			if err := initer.Init(ctx); err != nil {
				return errs.Wrap(errs.ReloadFailed, err, "init failed for reloaded %q instance %q", class.TypeName, id)
			}
		}
		all = append(all, migrated{id: id, old: old, new: fresh})
	}

	survivingKeys := make(map[string]bool)
	for _, d := range newClass.Schema.Entries() {
		if d.Kind == descriptor.KindInputPort || d.Kind == descriptor.KindOutputPort {
			survivingKeys[d.Key] = true
		}
	}

	r.classes[class.TypeName] = newClass

	migratedIDs := make(map[string]bool, len(all))
	for _, m := range all {
		migratedIDs[m.id] = true
	}

	kept := r.connections[:0:0]
	for _, c := range r.connections {
		if migratedIDs[c.SrcID] && !survivingKeys[c.SrcKey] {
			continue
		}
		if migratedIDs[c.DstID] && !survivingKeys[c.DstKey] {
			continue
		}
		kept = append(kept, c)
	}
	r.connections = kept

	for _, m := range all {
		r.instances[m.id] = m.new
		r.signals.clearNode(m.id)
	}

	return nil
}
