package store

import (
	"fmt"
	"sort"
)

// FieldSchema declares one field of an entity type.
type FieldSchema struct {
	Name     string
	Multiple bool
}

// TypeSchema declares the fields and bundles of an entity type.
type TypeSchema struct {
	Type    string
	Bundles []string
	Fields  []FieldSchema
}

// Schema is the set of entity types the store knows about.
// It is read-only after NewSchema returns.
type Schema struct {
	types map[string]*typeInfo
}

type typeInfo struct {
	bundles map[string]bool
	fields  map[string]FieldSchema
}

// NewSchema indexes the given type declarations.
func NewSchema(decls ...TypeSchema) (*Schema, error) {
	s := &Schema{types: make(map[string]*typeInfo, len(decls))}
	for _, d := range decls {
		if d.Type == "" {
			return nil, fmt.Errorf("entity type name is required")
		}
		if _, dup := s.types[d.Type]; dup {
			return nil, fmt.Errorf("entity type %q declared twice", d.Type)
		}
		info := &typeInfo{
			bundles: make(map[string]bool, len(d.Bundles)),
			fields:  make(map[string]FieldSchema, len(d.Fields)),
		}
		for _, b := range d.Bundles {
			info.bundles[b] = true
		}
		for _, f := range d.Fields {
			info.fields[f.Name] = f
		}
		s.types[d.Type] = info
	}
	return s, nil
}

// Types returns the declared entity type names, sorted.
func (s *Schema) Types() []string {
	out := make([]string, 0, len(s.types))
	for t := range s.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// HasBundles reports whether the type is sub-typed by bundle.
func (s *Schema) HasBundles(entityType string) bool {
	info, ok := s.types[entityType]
	return ok && len(info.bundles) > 0
}

// field returns the declaration of a field of a type.
func (s *Schema) field(entityType, name string) (FieldSchema, bool) {
	info, ok := s.types[entityType]
	if !ok {
		return FieldSchema{}, false
	}
	f, ok := info.fields[name]
	return f, ok
}

// checkBundle validates a bundle for a type.
func (s *Schema) checkBundle(entityType, bundle string) error {
	info, ok := s.types[entityType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
	if len(info.bundles) == 0 {
		if bundle != "" {
			return fmt.Errorf("%w: type %q has no bundles, got %q", ErrUnknownBundle, entityType, bundle)
		}
		return nil
	}
	if bundle == "" {
		return fmt.Errorf("%w: type %q", ErrBundleRequired, entityType)
	}
	if !info.bundles[bundle] {
		return fmt.Errorf("%w: %q for type %q", ErrUnknownBundle, bundle, entityType)
	}
	return nil
}
