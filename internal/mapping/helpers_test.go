package mapping

import (
	"fmt"
	"reflect"

	"github.com/hyperengineering/syncbridge/internal/types"
)

// fakeEntity is an in-memory types.Entity with a fixed field schema.
type fakeEntity struct {
	id       string
	multiple map[string]bool
	values   map[string][]any
	setErr   error
}

func newFakeEntity(id string, fields map[string]bool) *fakeEntity {
	return &fakeEntity{id: id, multiple: fields, values: make(map[string][]any)}
}

func (e *fakeEntity) ID() string     { return e.id }
func (e *fakeEntity) Type() string   { return "user" }
func (e *fakeEntity) Bundle() string { return "" }
func (e *fakeEntity) IsNew() bool    { return e.id == "" }

func (e *fakeEntity) HasField(name string) bool {
	_, ok := e.multiple[name]
	return ok
}

func (e *fakeEntity) Get(name string) (types.FieldValue, error) {
	multiple, ok := e.multiple[name]
	if !ok {
		return types.FieldValue{}, fmt.Errorf("no field %q", name)
	}
	return types.FieldValue{Items: e.values[name], Multiple: multiple}, nil
}

func (e *fakeEntity) Set(name string, value any) error {
	if e.setErr != nil {
		return e.setErr
	}
	if !e.HasField(name) {
		return fmt.Errorf("no field %q", name)
	}
	if value == nil {
		e.values[name] = nil
		return nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		e.values[name] = items
		return nil
	}
	e.values[name] = []any{value}
	return nil
}

func boolPtr(b bool) *bool { return &b }

func userSync() *types.Sync {
	return &types.Sync{
		ID: "user",
		LocalEntity: types.LocalEntity{
			Type:               "user",
			RemoteIDField:      "remote_id",
			RemoteChangedField: "remote_changed",
		},
		RemoteResource: types.RemoteResource{
			Client:       types.ClientBinding{Type: "service", Name: "crm"},
			IDField:      "userId",
			ChangedField: types.ChangedField{Name: "updatedAt", Format: types.ChangedFormatTimestamp},
		},
		FieldMapping: []types.FieldMapping{
			{MachineName: "mail", RemoteName: "email"},
			{MachineName: "roles", RemoteName: "roles"},
		},
	}
}

func userFields() map[string]bool {
	return map[string]bool{
		"mail":           false,
		"roles":          true,
		"name":           false,
		"remote_id":      false,
		"remote_changed": false,
	}
}
