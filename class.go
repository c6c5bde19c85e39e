package minicortex

import (
	"fmt"
	"sync"

	"github.com/minicortex/minicortex/descriptor"
)

// Category is a node class's palette grouping. The four well-known
// categories are predeclared; any other string is a valid user-named
// custom category (spec ch.3).
type Category string

const (
	CategoryInput      Category = "Input"
	CategoryProcessing Category = "Processing"
	CategoryUtilities  Category = "Utilities"
	CategoryOutput     Category = "Output"
)

// Class is a node class: a stable type name, its palette category, its
// immutable ordered descriptor schema, a factory that builds fresh node
// instances, and the dynamic/source-path pair used only when eligible
// for hot reload (spec ch.3).
type Class struct {
	TypeName   string
	Category   Category
	Schema     descriptor.Schema
	Factory    Factory
	Dynamic    bool
	SourcePath string // meaningful only when Dynamic
}

// Deriver re-derives a class's schema and factory "from source". Real
// hot reload would re-read and recompile a source file; Go has no
// runtime equivalent, so a Deriver is whatever produced the class the
// first time, re-invoked on demand (spec ch.9's ClassSource
// abstraction — see DESIGN.md Open Questions).
type Deriver func() (descriptor.Schema, Factory, error)

// ClassSource holds the Derivers registered for dynamic classes, keyed
// by source path. A hot-reload request looks up the class's SourcePath
// here and re-invokes it to obtain a fresh schema/factory pair.
type ClassSource struct {
	mu       sync.RWMutex
	derivers map[string]Deriver
}

// NewClassSource returns an empty ClassSource.
func NewClassSource() *ClassSource {
	return &ClassSource{derivers: make(map[string]Deriver)}
}

// Register associates a Deriver with a source path. Re-registering the
// same path replaces the Deriver, which is how a test or a real file
// watcher models "the source file changed".
func (cs *ClassSource) Register(path string, d Deriver) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.derivers[path] = d
}

// Derive re-invokes the Deriver registered for path.
func (cs *ClassSource) Derive(path string) (descriptor.Schema, Factory, error) {
	cs.mu.RLock()
	d, ok := cs.derivers[path]
	cs.mu.RUnlock()
	if !ok {
		return descriptor.Schema{}, nil, fmt.Errorf("class source: no deriver registered for %q", path)
	}
	return d()
}

// PaletteEntry names one selectable class within a palette category.
type PaletteEntry struct {
	Type        string
	DisplayName string
}

// PaletteCategory groups palette entries under a category for the "get
// palette" control-plane operation (spec ch.6).
type PaletteCategory struct {
	Category Category
	Entries  []PaletteEntry
}
