package types

// FieldValue is the value of a local entity field. Items holds the field's
// scalar values in order; an empty Items means the field has no value.
// Multiple reports whether the field is multi-valued.
type FieldValue struct {
	Items    []any
	Multiple bool
}

// IsEmpty reports whether the field holds no values.
func (v FieldValue) IsEmpty() bool {
	return len(v.Items) == 0
}

// First returns the first value, or nil if the field is empty.
func (v FieldValue) First() any {
	if len(v.Items) == 0 {
		return nil
	}
	return v.Items[0]
}

// Entity is a local record with named fields. Implementations confine
// schema knowledge to themselves; callers only check, read and write fields.
type Entity interface {
	// ID returns the entity identifier, empty for entities not yet saved.
	ID() string
	Type() string
	Bundle() string
	IsNew() bool

	// HasField reports whether name is part of the entity's schema.
	HasField(name string) bool

	// Get returns the value of a field. It fails if the field is unknown.
	Get(name string) (FieldValue, error)

	// Set replaces the value of a field. A nil value clears the field; a
	// slice value sets every item of a multi-valued field.
	Set(name string, value any) error
}

// Describe returns a human readable identity for diagnostics.
func Describe(e Entity) string {
	if e == nil || e.IsNew() || e.ID() == "" {
		return "new entity"
	}
	return e.Type() + ":" + e.ID()
}
