// Package offsets supplies the per-version structure field offsets the probes
// need to read target memory. Offsets are resolved once per attach session
// into an immutable Layout; nothing in the correlation logic hardcodes them.
package offsets

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// ID names one field of one structure kind.
type ID struct {
	Struct string
	Field  string
}

func (id ID) String() string {
	return id.Struct + "." + id.Field
}

// Offset is a byte offset into a structure, or Unknown.
type Offset int64

const Unknown Offset = -1

func (o Offset) Known() bool {
	return o >= 0
}

// Resolver answers offset_of(struct_kind, field_name, version).
type Resolver interface {
	OffsetOf(structKind, field, version string) (uint64, bool)
}

// Table is a Resolver backed by a static document, typically produced by an
// offline DWARF extraction step:
//
//	versions:
//	  "hyper@0.14.27":
//	    "http::request::Request":
//	      method.ptr: 0
//	      method.len: 8
type Table struct {
	Versions map[string]map[string]map[string]uint64 `yaml:"versions"`
}

func (t *Table) OffsetOf(structKind, field, version string) (uint64, bool) {
	if t == nil {
		return 0, false
	}
	structs, ok := t.Versions[version]
	if !ok {
		return 0, false
	}
	fields, ok := structs[structKind]
	if !ok {
		return 0, false
	}
	off, ok := fields[field]
	return off, ok
}

// Set records an offset, creating intermediate maps as needed.
func (t *Table) Set(version string, id ID, offset uint64) {
	if t.Versions == nil {
		t.Versions = map[string]map[string]map[string]uint64{}
	}
	structs, ok := t.Versions[version]
	if !ok {
		structs = map[string]map[string]uint64{}
		t.Versions[version] = structs
	}
	fields, ok := structs[id.Struct]
	if !ok {
		fields = map[string]uint64{}
		structs[id.Struct] = fields
	}
	fields[id.Field] = offset
}

// Decode reads a Table document from r.
func Decode(r io.Reader) (*Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("offsets: read: %w", err)
	}
	t := &Table{}
	if err := yaml.Unmarshal(b, t); err != nil {
		return nil, fmt.Errorf("offsets: decode: %w", err)
	}
	return t, nil
}

// LoadFile reads a Table document from path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("offsets: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Layout is the read-only set of offsets resolved for one session.
type Layout struct {
	version string
	offsets map[ID]Offset
}

// Resolve asks r for every id at the given version. Offsets the resolver
// does not know are recorded as Unknown; the probes reading them skip the
// field.
func Resolve(r Resolver, version string, ids ...ID) Layout {
	l := Layout{version: version, offsets: make(map[ID]Offset, len(ids))}
	for _, id := range ids {
		if r == nil {
			l.offsets[id] = Unknown
			continue
		}
		if off, ok := r.OffsetOf(id.Struct, id.Field, version); ok {
			l.offsets[id] = Offset(off)
		} else {
			l.offsets[id] = Unknown
		}
	}
	return l
}

// Get returns the offset of id, or Unknown.
func (l Layout) Get(id ID) Offset {
	if off, ok := l.offsets[id]; ok {
		return off
	}
	return Unknown
}

func (l Layout) Version() string {
	return l.version
}

// Missing lists the ids that resolved to Unknown.
func (l Layout) Missing() []ID {
	var missing []ID
	for id, off := range l.offsets {
		if !off.Known() {
			missing = append(missing, id)
		}
	}
	return missing
}
