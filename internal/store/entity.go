package store

import (
	"fmt"
	"reflect"

	"github.com/hyperengineering/syncbridge/internal/types"
)

// Entity is a schema-checked local record stored as a JSON field bag.
type Entity struct {
	id         string
	entityType string
	bundle     string
	fields     map[string][]any
	schema     *Schema
}

// Compile-time interface check
var _ types.Entity = (*Entity)(nil)

func newEntity(schema *Schema, entityType, bundle string) *Entity {
	return &Entity{
		entityType: entityType,
		bundle:     bundle,
		fields:     make(map[string][]any),
		schema:     schema,
	}
}

// ID returns the entity ID, empty until the entity is saved.
func (e *Entity) ID() string { return e.id }

// Type returns the entity type.
func (e *Entity) Type() string { return e.entityType }

// Bundle returns the entity bundle, empty for unbundled types.
func (e *Entity) Bundle() string { return e.bundle }

// IsNew reports whether the entity has never been saved.
func (e *Entity) IsNew() bool { return e.id == "" }

// HasField reports whether the entity type declares the field.
func (e *Entity) HasField(name string) bool {
	_, ok := e.schema.field(e.entityType, name)
	return ok
}

// Get returns a copy of the field's values.
func (e *Entity) Get(name string) (types.FieldValue, error) {
	decl, ok := e.schema.field(e.entityType, name)
	if !ok {
		return types.FieldValue{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, e.entityType, name)
	}
	items := e.fields[name]
	out := make([]any, len(items))
	copy(out, items)
	return types.FieldValue{Items: out, Multiple: decl.Multiple}, nil
}

// Set replaces the field's values. nil clears the field, slices set every
// item, and any other value becomes the single item.
func (e *Entity) Set(name string, value any) error {
	decl, ok := e.schema.field(e.entityType, name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, e.entityType, name)
	}

	items := toItems(value)
	if !decl.Multiple && len(items) > 1 {
		return fmt.Errorf("%w: %s.%s got %d values", ErrCardinality, e.entityType, name, len(items))
	}
	if len(items) == 0 {
		delete(e.fields, name)
		return nil
	}
	e.fields[name] = items
	return nil
}

// toItems normalizes a value into a list of items.
func toItems(value any) []any {
	if value == nil {
		return nil
	}
	if list, ok := value.([]any); ok {
		out := make([]any, len(list))
		copy(out, list)
		return out
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{value}
}
