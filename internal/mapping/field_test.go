package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperengineering/syncbridge/internal/event"
	"github.com/hyperengineering/syncbridge/internal/types"
)

func newTestFieldManager() (*FieldManager, *event.Bus, *Transforms) {
	bus := event.NewBus()
	tr := NewTransforms()
	return NewFieldManager(bus, tr, nil), bus, tr
}

func TestExport_Cardinality(t *testing.T) {
	fm, _, _ := newTestFieldManager()
	s := userSync()

	tests := []struct {
		name    string
		mail    []any
		roles   []any
		wantOut map[string]any
	}{
		{
			name:    "empty fields emit no keys",
			wantOut: map[string]any{},
		},
		{
			name:    "single value is a scalar",
			mail:    []any{"a@example.com"},
			wantOut: map[string]any{"email": "a@example.com"},
		},
		{
			name:    "one multi value is a list",
			roles:   []any{"editor"},
			wantOut: map[string]any{"roles": []any{"editor"}},
		},
		{
			name:    "many multi values keep order",
			roles:   []any{"b", "a", "c"},
			wantOut: map[string]any{"roles": []any{"b", "a", "c"}},
		},
		{
			name:    "present null is exported as null",
			mail:    []any{nil},
			wantOut: map[string]any{"email": nil},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newFakeEntity("1", userFields())
			e.values["mail"] = tt.mail
			e.values["roles"] = tt.roles

			got, err := fm.Export(context.Background(), e, "", s)
			if err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.wantOut) {
				t.Errorf("Export() = %#v, want %#v", got, tt.wantOut)
			}
		})
	}
}

func TestExport_MissingLocalField(t *testing.T) {
	fm, _, _ := newTestFieldManager()
	s := userSync()
	s.FieldMapping = append(s.FieldMapping, types.FieldMapping{MachineName: "nickname", RemoteName: "nick"})

	_, err := fm.Export(context.Background(), newFakeEntity("7", userFields()), "r7", s)

	var fe *FieldExportError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FieldExportError", err)
	}
	if fe.Field.MachineName != "nickname" || fe.RemoteName != "nick" {
		t.Errorf("error field = %+v", fe.Field)
	}
	if fe.LocalEntity != "user:7" || fe.RemoteEntity != "r7" {
		t.Errorf("identities = %q, %q", fe.LocalEntity, fe.RemoteEntity)
	}
	if !errors.Is(err, ErrUnknownLocalField) || !strings.Contains(err.Error(), "nickname") {
		t.Errorf("error = %v", err)
	}
}

func TestExport_DisabledAndTransform(t *testing.T) {
	fm, _, tr := newTestFieldManager()
	tr.RegisterExport("shout", func(_ context.Context, local types.Entity, remoteID string, f types.FieldMapping) (any, error) {
		v, _ := local.Get("mail")
		return strings.ToUpper(v.First().(string)) + "|" + remoteID, nil
	})
	s := userSync()
	s.FieldMapping = []types.FieldMapping{
		{MachineName: "mail", RemoteName: "email", Export: types.FieldDirection{Status: boolPtr(false)}},
		{RemoteName: "loud", Export: types.FieldDirection{Callback: "shout"}},
	}

	e := newFakeEntity("1", userFields())
	e.values["mail"] = []any{"a@b"}

	got, err := fm.Export(context.Background(), e, "r1", s)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["loud"] != "A@B|r1" {
		t.Errorf("Export() = %v", got)
	}
}

func TestExport_StopsAtFirstFailure(t *testing.T) {
	fm, _, tr := newTestFieldManager()
	calls := 0
	tr.RegisterExport("count", func(context.Context, types.Entity, string, types.FieldMapping) (any, error) {
		calls++
		return nil, nil
	})
	tr.RegisterExport("fail", func(context.Context, types.Entity, string, types.FieldMapping) (any, error) {
		return nil, errors.New("transform broke")
	})
	s := userSync()
	s.FieldMapping = []types.FieldMapping{
		{RemoteName: "a", Export: types.FieldDirection{Callback: "fail"}},
		{RemoteName: "b", Export: types.FieldDirection{Callback: "count"}},
	}

	_, err := fm.Export(context.Background(), newFakeEntity("", userFields()), "", s)
	var fe *FieldExportError
	if !errors.As(err, &fe) || fe.RemoteEntity != "new entity" || fe.LocalEntity != "new entity" {
		t.Fatalf("error = %v", err)
	}
	if calls != 0 {
		t.Error("fields after a failure must not be processed")
	}
}

func TestExport_MappingOverride(t *testing.T) {
	fm, bus, _ := newTestFieldManager()
	bus.ExportFieldMapping.Register("none", event.PriorityNormal, func(_ context.Context, e *event.ExportFieldMapping) error {
		e.FieldMapping = nil
		return nil
	})

	got, err := fm.Export(context.Background(), newFakeEntity("1", userFields()), "", userSync())
	if err != nil || len(got) != 0 {
		t.Errorf("Export() = %v, %v; want empty", got, err)
	}
}

func TestImport_CopiesFieldsAndSyncFields(t *testing.T) {
	fm, _, _ := newTestFieldManager()
	e := newFakeEntity("", userFields())
	e.values["roles"] = []any{"keep"}

	remote := map[string]any{
		"userId":    json.Number("42"),
		"email":     "a@example.com",
		"updatedAt": "1010101010",
	}
	if err := fm.Import(context.Background(), remote, e, userSync()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if e.values["mail"][0] != "a@example.com" {
		t.Errorf("mail = %v", e.values["mail"])
	}
	// Absent remote property leaves the local field untouched
	if len(e.values["roles"]) != 1 || e.values["roles"][0] != "keep" {
		t.Errorf("roles = %v, want untouched", e.values["roles"])
	}
	if types.IDString(e.values["remote_id"][0]) != "42" {
		t.Errorf("remote_id = %v", e.values["remote_id"])
	}
	if e.values["remote_changed"][0] != int64(1010101010) {
		t.Errorf("remote_changed = %#v, want int64 1010101010", e.values["remote_changed"][0])
	}
}

func TestImport_NullClearsField(t *testing.T) {
	fm, _, _ := newTestFieldManager()
	e := newFakeEntity("1", userFields())
	e.values["mail"] = []any{"old"}

	remote := map[string]any{"userId": 1, "email": nil, "updatedAt": 5}
	if err := fm.Import(context.Background(), remote, e, userSync()); err != nil {
		t.Fatal(err)
	}
	if len(e.values["mail"]) != 0 {
		t.Errorf("mail = %v, want cleared", e.values["mail"])
	}
}

func TestImport_ChangedFormat(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		value   any
		want    int64
		wantErr bool
	}{
		{"digit string", types.ChangedFormatTimestamp, "1010101010", 1010101010, false},
		{"integer", types.ChangedFormatTimestamp, 77, 77, false},
		{"json number", types.ChangedFormatTimestamp, json.Number("12"), 12, false},
		{"dashes", types.ChangedFormatTimestamp, "---", 0, true},
		{"negative", types.ChangedFormatTimestamp, -5, 0, true},
		{"fraction", types.ChangedFormatTimestamp, 1.5, 0, true},
		{"rfc3339", types.ChangedFormatString, "2002-01-03T22:30:10Z", 1010097010, false},
		{"date only", types.ChangedFormatString, "2002-01-03", 1010016000, false},
		{"garbage string", types.ChangedFormatString, "yesterday-ish", 0, true},
		{"non-string", types.ChangedFormatString, 5, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, _, _ := newTestFieldManager()
			s := userSync()
			s.RemoteResource.ChangedField.Format = tt.format
			e := newFakeEntity("", userFields())

			err := fm.Import(context.Background(), map[string]any{"userId": 1, "updatedAt": tt.value}, e, s)
			if tt.wantErr {
				var fe *FieldImportError
				if !errors.As(err, &fe) || fe.SyncField != SyncFieldRemoteChanged {
					t.Fatalf("error = %v, want FieldImportError tagged remote_changed", err)
				}
				if !errors.Is(err, ErrFieldFormat) {
					t.Errorf("error = %v, want ErrFieldFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Import() error = %v", err)
			}
			if e.values["remote_changed"][0] != tt.want {
				t.Errorf("remote_changed = %v, want %d", e.values["remote_changed"][0], tt.want)
			}
		})
	}
}

func TestImport_MissingSyncFields(t *testing.T) {
	fm, _, _ := newTestFieldManager()

	err := fm.Import(context.Background(), map[string]any{"updatedAt": 1}, newFakeEntity("", userFields()), userSync())
	var fe *FieldImportError
	if !errors.As(err, &fe) || fe.SyncField != SyncFieldRemoteID || !errors.Is(err, ErrMissingRemoteField) {
		t.Errorf("error = %v, want remote_id sync field error", err)
	}

	err = fm.Import(context.Background(), map[string]any{"userId": 3}, newFakeEntity("", userFields()), userSync())
	if !errors.As(err, &fe) || fe.SyncField != SyncFieldRemoteChanged || fe.RemoteID != "3" {
		t.Errorf("error = %v, want remote_changed sync field error", err)
	}
}

func TestImport_UnknownLocalFieldAbortsEarly(t *testing.T) {
	fm, _, _ := newTestFieldManager()
	s := userSync()
	s.FieldMapping = []types.FieldMapping{
		{MachineName: "nope", RemoteName: "x"},
		{MachineName: "mail", RemoteName: "email"},
	}
	e := newFakeEntity("", userFields())

	err := fm.Import(context.Background(), map[string]any{"userId": 1, "updatedAt": 1, "email": "e"}, e, s)
	var fe *FieldImportError
	if !errors.As(err, &fe) || fe.Field.MachineName != "nope" || fe.SyncField != "" {
		t.Fatalf("error = %v", err)
	}
	if len(e.values["mail"]) != 0 || len(e.values["remote_id"]) != 0 {
		t.Error("fields after the failure must not be set")
	}
}

func TestImport_DisabledFieldAndTransform(t *testing.T) {
	fm, _, _ := newTestFieldManager()
	s := userSync()
	s.FieldMapping = []types.FieldMapping{
		{MachineName: "mail", RemoteName: "email", Import: types.FieldDirection{Status: boolPtr(false)}},
		{MachineName: "roles", RemoteName: "roles", Import: types.FieldDirection{Callback: "split_comma"}},
	}
	e := newFakeEntity("", userFields())

	remote := map[string]any{"userId": 1, "updatedAt": 1, "email": "e", "roles": "a, b,,c"}
	if err := fm.Import(context.Background(), remote, e, s); err != nil {
		t.Fatal(err)
	}
	if len(e.values["mail"]) != 0 {
		t.Error("disabled field was imported")
	}
	if !reflect.DeepEqual(e.values["roles"], []any{"a", "b", "c"}) {
		t.Errorf("roles = %v", e.values["roles"])
	}
}

func TestImport_EmptyMappingIsNoop(t *testing.T) {
	fm, bus, _ := newTestFieldManager()
	bus.ImportFieldMapping.Register("none", event.PriorityNormal, func(_ context.Context, e *event.ImportFieldMapping) error {
		e.FieldMapping = nil
		return nil
	})
	e := newFakeEntity("", userFields())
	if err := fm.Import(context.Background(), map[string]any{}, e, userSync()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(e.values) != 0 {
		t.Errorf("values = %v, want none", e.values)
	}
}
