// Package objectmodel decodes per-object-type XML into typed records and
// maintains the process-wide object registry keyed by UUID (spec.md §3,
// §4.2).
package objectmodel

import (
	"sync"

	"github.com/sailmerge/sailmerge/pkg/core"
)

// Object is a registry row: the stable identity of an Appian object, shared
// across every session that ever references it. Name updates from later
// sessions do not rewrite history — name is denormalized onto each
// ObjectVersion instead (spec.md §3).
type Object struct {
	UUID        string
	DisplayName string
	ObjectType  core.ObjectType
}

// Version is one (object, package) row: the content of a single object as
// it appears in one of the three input packages (spec.md §3).
type Version struct {
	ObjectUUID  string
	Role        core.PackageRole
	VersionUUID string // Appian's per-edit identifier

	// ScriptedCode holds the post-SAIL-Formatter code string for scripted
	// object types; empty for non-scripted types.
	ScriptedCode string

	// Fields and Properties hold the type-specific structured payload as
	// parsed from XML, prior to canonicalization. Represented as generic
	// maps/slices (json-shaped) so every object type can share one column
	// shape, matching the teacher's field.JSON columns.
	Fields     map[string]any
	Properties map[string]any

	// Deprecated marks that the source XML carried a deprecation marker
	// rather than an outright absence signal (spec.md §9 open question).
	Deprecated bool

	// RawXML is preserved only for Unknown-typed or malformed objects, for
	// fallback display; it is their whole canonical content view, so their
	// fingerprint is taken over these bytes.
	RawXML []byte

	// Fingerprint is filled in by pkg/compare once the canonical content
	// view has been computed; zero value until then.
	Fingerprint [32]byte
}

// Registry is the process-wide, UUID-keyed object registry (spec.md §3,
// §5, §9): "a UUID maps to one canonical display name per moment in time,
// and two concurrent sessions must not insert two rows for the same UUID."
//
// Registry is safe for concurrent use. Writers use an optimistic
// get-or-insert: under the lock, check-then-insert, so two callers racing
// to register the same new UUID yield exactly one insert and one cache hit.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]*Object
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[string]*Object)}
}

// GetOrInsert returns the existing registry row for uuid, or inserts and
// returns a new one with the given name/type if uuid has never been seen.
// Existing rows are never renamed by this call — name is immutable once
// registered (spec.md §3: "name updates from later sessions do not rewrite
// history").
func (r *Registry) GetOrInsert(uuid string, name string, objType core.ObjectType) *Object {
	r.mu.RLock()
	if obj, ok := r.objects[uuid]; ok {
		r.mu.RUnlock()
		return obj
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if obj, ok := r.objects[uuid]; ok {
		return obj
	}
	obj := &Object{UUID: uuid, DisplayName: name, ObjectType: objType}
	r.objects[uuid] = obj
	return obj
}

// Get looks up an existing registry row without inserting.
func (r *Registry) Get(uuid string) (*Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[uuid]
	return obj, ok
}

// NameOf returns the current display name for uuid, or "" if unknown. Used
// by the SAIL Formatter to resolve rule!/cons! references across packages
// (spec.md §4.3).
func (r *Registry) NameOf(uuid string) (string, bool) {
	obj, ok := r.Get(uuid)
	if !ok {
		return "", false
	}
	return obj.DisplayName, true
}

// All returns a snapshot slice of every registered object. Order is
// unspecified; callers that need determinism must sort.
func (r *Registry) All() []*Object {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Object, 0, len(r.objects))
	for _, obj := range r.objects {
		out = append(out, obj)
	}
	return out
}
