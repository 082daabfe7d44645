package syncer

import (
	"context"
	"testing"

	"github.com/hyperengineering/syncbridge/internal/definition"
	"github.com/hyperengineering/syncbridge/internal/mapping"
	"github.com/hyperengineering/syncbridge/internal/remote"
	"github.com/hyperengineering/syncbridge/internal/remote/remotetest"
	"github.com/hyperengineering/syncbridge/internal/store"
	"github.com/hyperengineering/syncbridge/internal/types"
)

const syncID = "user"

type fixture struct {
	deps     Deps
	importer *Importer
	exporter *Exporter
	store    *store.SQLiteStore
	client   *remotetest.Client
}

func enabled() map[types.Operation]types.OperationSettings {
	return map[types.Operation]types.OperationSettings{
		types.OperationImportList:   {Status: true},
		types.OperationImportEntity: {Status: true},
		types.OperationExportEntity: {Status: true},
	}
}

// newFixture wires the orchestrators over an in-memory SQLite store and an
// in-memory remote. mutate, when set, adjusts the definition before loading.
func newFixture(t *testing.T, mutate func(s *types.Sync)) *fixture {
	t.Helper()

	schema, err := store.NewSchema(store.TypeSchema{
		Type: "user",
		Fields: []store.FieldSchema{
			{Name: "mail"},
			{Name: "name"},
			{Name: "remote_id"},
			{Name: "remote_changed"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.NewSQLiteStore(":memory:", schema)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	s := &types.Sync{
		ID:          syncID,
		LocalEntity: types.LocalEntity{Type: "user", RemoteIDField: "remote_id", RemoteChangedField: "remote_changed"},
		RemoteResource: types.RemoteResource{
			Client:       types.ClientBinding{Type: remote.BindingService, Name: "crm"},
			IDField:      "id",
			ChangedField: types.ChangedField{Name: "changed"},
		},
		Operations: enabled(),
		FieldMapping: []types.FieldMapping{
			{MachineName: "mail", RemoteName: "email"},
			{MachineName: "name", RemoteName: "fullName"},
		},
	}
	if mutate != nil {
		mutate(s)
	}

	transforms := mapping.NewTransforms()
	defs, err := definition.NewRegistry(transforms, s)
	if err != nil {
		t.Fatal(err)
	}

	client := remotetest.New("id", "changed")
	clients := remote.NewResolver(defs)
	clients.RegisterService("crm", client)

	deps := NewDeps(defs, clients, st, transforms, nil)
	return &fixture{
		deps:     deps,
		importer: NewImporter(deps),
		exporter: NewExporter(deps),
		store:    st,
		client:   client,
	}
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.store.CountEntities(context.Background(), "user")
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func (f *fixture) field(t *testing.T, id, name string) any {
	t.Helper()
	e, err := f.store.Load(context.Background(), "user", id)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", id, err)
	}
	v, err := e.Get(name)
	if err != nil {
		t.Fatal(err)
	}
	return v.First()
}

func remoteUser(id, mail string, changed int64) remote.Item {
	return remote.Item{"id": id, "email": mail, "fullName": "User " + id, "changed": changed}
}
