// Package descriptor implements the node class metamodel: the closed set
// of five descriptor kinds (ports, properties, displays, actions, stores)
// that together describe a node class's surface, plus the ordered Schema
// that a class author builds once at registration time.
//
// The original framework reifies class attributes into a schema through a
// metaclass; there is no equivalent magic here. A class author calls the
// Builder methods in declaration order and the resulting Schema preserves
// that order, which becomes the UI rendering order (spec ch.3).
package descriptor

import (
	"fmt"
	"strings"
)

// DataType is a port's declared data type. The vocabulary below is
// recognized; any other string is treated as an opaque tag compared by
// case-insensitive string equality.
type DataType string

// Recognized data type vocabulary.
const (
	Any     DataType = "any"
	NDArray DataType = "ndarray"
	Int     DataType = "int"
	Float   DataType = "float"
	Str     DataType = "str"
	Bool    DataType = "bool"
)

// Compatible reports whether a source output of type out can feed a
// target input of type in, per spec ch.4.1: any matches anything,
// otherwise case-insensitive name equality.
func Compatible(out, in DataType) bool {
	if out == Any || in == Any {
		return true
	}
	return strings.EqualFold(string(out), string(in))
}

// Kind discriminates the five descriptor kinds plus the two port
// directions, giving six concrete entries as spec ch.3 enumerates.
type Kind uint8

const (
	KindInputPort Kind = iota
	KindOutputPort
	KindProperty
	KindDisplay
	KindAction
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindInputPort:
		return "input"
	case KindOutputPort:
		return "output"
	case KindProperty:
		return "property"
	case KindDisplay:
		return "display"
	case KindAction:
		return "action"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// PropertyKind is the closed sum of property kinds: Range, Integer, Bool,
// Enum. Each carries its own validation/bounds.
type PropertyKind interface {
	isPropertyKind()
	// Coerce validates and clamps a raw value per this kind's rules,
	// returning the canonical stored value or an error.
	Coerce(value interface{}) (interface{}, error)
}

// Range is a float property clamped to [Min, Max], optionally rendered on
// a log scale by the UI.
type Range struct {
	Min, Max float64
	Log      bool
}

func (Range) isPropertyKind() {}

// Coerce converts value to float64 and clamps it to [Min, Max].
func (r Range) Coerce(value interface{}) (interface{}, error) {
	f, ok := toFloat64(value)
	if !ok {
		return nil, fmt.Errorf("value %v is not numeric", value)
	}
	if f < r.Min {
		f = r.Min
	}
	if f > r.Max {
		f = r.Max
	}
	return f, nil
}

// Integer is an int property, optionally bounded. A nil bound is
// unbounded on that side.
type Integer struct {
	Min, Max *int
}

func (Integer) isPropertyKind() {}

// Coerce converts value to int and clamps it to [Min, Max] where set.
func (ik Integer) Coerce(value interface{}) (interface{}, error) {
	i, ok := toInt(value)
	if !ok {
		return nil, fmt.Errorf("value %v is not an integer", value)
	}
	if ik.Min != nil && i < *ik.Min {
		i = *ik.Min
	}
	if ik.Max != nil && i > *ik.Max {
		i = *ik.Max
	}
	return i, nil
}

// BoolKind is a boolean property.
type BoolKind struct{}

func (BoolKind) isPropertyKind() {}

// Coerce converts value to bool.
func (BoolKind) Coerce(value interface{}) (interface{}, error) {
	b, ok := toBool(value)
	if !ok {
		return nil, fmt.Errorf("value %v is not a bool", value)
	}
	return b, nil
}

// Enum is a property restricted to a declared set of options.
type Enum struct {
	Options []string
}

func (Enum) isPropertyKind() {}

// Coerce rejects values outside Options; values must be strings.
func (e Enum) Coerce(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("enum value %v is not a string", value)
	}
	for _, opt := range e.Options {
		if opt == s {
			return s, nil
		}
	}
	return nil, fmt.Errorf("value %q is not one of %v", s, e.Options)
}

// DisplayKind is the closed sum of display kinds: Numeric, Text,
// Vector1D, Vector2D.
type DisplayKind interface {
	isDisplayKind()
}

// Numeric renders a scalar number with a format hint (e.g. "%.2f").
type Numeric struct {
	Format string
}

func (Numeric) isDisplayKind() {}

// Text renders a free-form string.
type Text struct{}

func (Text) isDisplayKind() {}

// Vector1D renders a 1D array.
type Vector1D struct{}

func (Vector1D) isDisplayKind() {}

// Vector2D renders a 2D array with a color mode hint (e.g. "grayscale").
type Vector2D struct {
	ColorMode string
}

func (Vector2D) isDisplayKind() {}

// Descriptor is one entry in a class Schema. Exactly one of the kind-
// specific fields is populated, selected by Kind.
type Descriptor struct {
	Kind  Kind
	Key   string
	Label string

	// Ports (KindInputPort / KindOutputPort)
	DataType DataType

	// Property (KindProperty)
	PropertyKind PropertyKind
	Default      interface{}
	OnChange     string // optional callback method name

	// Display (KindDisplay)
	DisplayKind DisplayKind

	// Action (KindAction)
	Callback string

	// Store (KindStore) reuses Default above.
}

// Schema is the immutable, ordered set of descriptors for a node class.
// Order of appearance is preserved and is the rendering order.
type Schema struct {
	entries []Descriptor
	byKey   map[string]int
}

// Builder constructs a Schema by appending descriptors in declaration
// order, mirroring how a class author lists its attributes top to bottom.
type Builder struct {
	schema Schema
}

// NewBuilder returns an empty schema builder.
func NewBuilder() *Builder {
	return &Builder{schema: Schema{byKey: make(map[string]int)}}
}

func (b *Builder) add(d Descriptor) *Builder {
	if _, exists := b.schema.byKey[d.Key]; exists {
		panic(fmt.Sprintf("descriptor: duplicate key %q", d.Key))
	}
	b.schema.byKey[d.Key] = len(b.schema.entries)
	b.schema.entries = append(b.schema.entries, d)
	return b
}

// Input declares an input port.
func (b *Builder) Input(key, label string, dataType DataType) *Builder {
	return b.add(Descriptor{Kind: KindInputPort, Key: key, Label: label, DataType: dataType})
}

// Output declares an output port.
func (b *Builder) Output(key, label string, dataType DataType) *Builder {
	return b.add(Descriptor{Kind: KindOutputPort, Key: key, Label: label, DataType: dataType})
}

// Property declares a user-tunable parameter with the given kind, default
// and optional on-change callback method name.
func (b *Builder) Property(key, label string, kind PropertyKind, def interface{}, onChange string) *Builder {
	return b.add(Descriptor{Kind: KindProperty, Key: key, Label: label, PropertyKind: kind, Default: def, OnChange: onChange})
}

// Display declares a node-written, UI-only readout.
func (b *Builder) Display(key, label string, kind DisplayKind) *Builder {
	return b.add(Descriptor{Kind: KindDisplay, Key: key, Label: label, DisplayKind: kind})
}

// Action declares a UI-invokable callback.
func (b *Builder) Action(key, label, callback string) *Builder {
	return b.add(Descriptor{Kind: KindAction, Key: key, Label: label, Callback: callback})
}

// Store declares persistent per-instance state with the given default.
func (b *Builder) Store(key string, def interface{}) *Builder {
	return b.add(Descriptor{Kind: KindStore, Key: key, Label: key, Default: def})
}

// Build finalizes the schema. The builder must not be reused afterwards.
func (b *Builder) Build() Schema {
	return b.schema
}

// Entries returns the descriptors in declaration order.
func (s Schema) Entries() []Descriptor {
	return s.entries
}

// Get returns the descriptor for key and whether it exists.
func (s Schema) Get(key string) (Descriptor, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return Descriptor{}, false
	}
	return s.entries[i], true
}

// Defaults returns the persistable (property+store) defaults keyed by
// descriptor key, used to initialize a fresh instance's cells.
func (s Schema) Defaults() map[string]interface{} {
	out := make(map[string]interface{})
	for _, d := range s.entries {
		if d.Kind == KindProperty || d.Kind == KindStore {
			out[d.Key] = d.Default
		}
	}
	return out
}

// PersistentKeys returns the keys of descriptors whose values survive
// save/load and hot-reload: properties and stores.
func (s Schema) PersistentKeys() []string {
	var keys []string
	for _, d := range s.entries {
		if d.Kind == KindProperty || d.Kind == KindStore {
			keys = append(keys, d.Key)
		}
	}
	return keys
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	}
	return 0, false
}

func toBool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
