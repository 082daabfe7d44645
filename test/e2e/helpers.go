// Package e2e runs the sync core end to end: a real SQLite store, loaded
// definitions, plugins and the HTTP API, driven through pkg/client against
// an in-process fake remote.
package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hyperengineering/syncbridge/internal/api"
	"github.com/hyperengineering/syncbridge/internal/definition"
	"github.com/hyperengineering/syncbridge/internal/managed"
	"github.com/hyperengineering/syncbridge/internal/mapping"
	"github.com/hyperengineering/syncbridge/internal/plugin"
	"github.com/hyperengineering/syncbridge/internal/plugin/writeback"
	"github.com/hyperengineering/syncbridge/internal/remote"
	"github.com/hyperengineering/syncbridge/internal/remote/rest"
	"github.com/hyperengineering/syncbridge/internal/state"
	"github.com/hyperengineering/syncbridge/internal/store"
	"github.com/hyperengineering/syncbridge/internal/syncer"
	"github.com/hyperengineering/syncbridge/pkg/client"
)

const testAPIKey = "e2e-secret"

// FakeRemote is a REST collection of contacts keyed by "id", with a
// "modified" timestamp.
type FakeRemote struct {
	mu      sync.Mutex
	items   map[string]map[string]any
	nextID  int
	clock   int64
	queries []string
}

// NewFakeRemote returns an empty collection whose clock starts at 1000.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{items: make(map[string]map[string]any), nextID: 100, clock: 1000}
}

// Put stores a contact changed at the given time.
func (f *FakeRemote) Put(id, name string, modified int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id] = map[string]any{"id": id, "name": name, "modified": modified}
}

// Item returns a copy of the stored contact.
func (f *FakeRemote) Item(id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out, true
}

// Queries returns the raw query strings of every list call.
func (f *FakeRemote) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *FakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/contacts"), "/")
	switch {
	case r.Method == http.MethodGet && id == "":
		f.queries = append(f.queries, r.URL.RawQuery)
		q := r.URL.Query()
		start, hasStart := parseInt(q.Get("changed_start"))
		end, hasEnd := parseInt(q.Get("changed_end"))
		list := []map[string]any{}
		for _, item := range f.items {
			m := item["modified"].(int64)
			if hasStart && m < start || hasEnd && m > end {
				continue
			}
			list = append(list, item)
		}
		json.NewEncoder(w).Encode(map[string]any{"data": list})

	case r.Method == http.MethodGet:
		item, ok := f.items[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(item)

	case r.Method == http.MethodPost && id == "":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.nextID++
		f.clock++
		newID := strconv.Itoa(f.nextID)
		body["id"] = newID
		body["modified"] = f.clock
		f.items[newID] = body
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(body)

	case r.Method == http.MethodPut:
		item, ok := f.items[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		for k, v := range body {
			item[k] = v
		}
		f.clock++
		item["modified"] = f.clock
		json.NewEncoder(w).Encode(item)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// Env is a running syncbridge API backed by a fresh database.
type Env struct {
	Client *client.Client
	Remote *FakeRemote
	Store  *store.SQLiteStore
	State  *state.Manager
}

// contactSync binds local "contact" entities to the fake remote.
const contactSync = `
id: contact
label: Contacts
local_entity: {type: contact, remote_id_field: remote_id, remote_changed_field: remote_changed}
remote_resource:
  client:
    type: rest
    options: {base_url: %q, path: /contacts, items_key: data, paging: false}
  id_field: id
  changed_field: {name: modified}
operations:
  import_list:
    status: true
    state: {manager: syncbridge, lock: true, fallback_start_time: 0}
  import_entity: {status: true}
  export_entity: {status: true, create_entities: true}
field_mapping:
  - machine_name: name
    remote_name: name
`

// NewEnv wires the sync core the way the serve command does and exposes it
// through an httptest server.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	fake := NewFakeRemote()
	remoteSrv := httptest.NewServer(fake)
	t.Cleanup(remoteSrv.Close)

	syncs, err := definition.Parse([]byte(fmt.Sprintf(contactSync, remoteSrv.URL)))
	if err != nil {
		t.Fatalf("parse definition: %v", err)
	}
	transforms := mapping.NewTransforms()
	defs, err := definition.NewRegistry(transforms, syncs...)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}

	schema, err := store.NewSchema(store.TypeSchema{
		Type: "contact",
		Fields: []store.FieldSchema{
			{Name: "name"},
			{Name: "remote_id"},
			{Name: "remote_changed"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "e2e.db"), schema)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	resolver := remote.NewResolver(defs)
	resolver.RegisterBackend(rest.BindingType, rest.Factory(remoteSrv.Client()))

	deps := syncer.NewDeps(defs, resolver, db, transforms, nil)
	stateMgr := state.NewManager(db, defs)

	plugin.Reset()
	plugin.Register(managed.New())
	plugin.Register(writeback.New())
	host := plugin.Host{State: stateMgr, Entities: db, Transforms: transforms}
	if err := plugin.Attach(deps.Bus, host, managed.Name, writeback.Name); err != nil {
		t.Fatalf("attach plugins: %v", err)
	}

	handler := api.NewHandler(api.Services{
		Definitions: defs,
		Importer:    syncer.NewImporter(deps),
		Exporter:    syncer.NewExporter(deps),
		Entities:    db,
		State:       stateMgr,
	}, testAPIKey, "e2e")
	apiSrv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(apiSrv.Close)

	c, err := client.New(client.Config{BaseURL: apiSrv.URL, APIKey: testAPIKey})
	if err != nil {
		t.Fatal(err)
	}
	return &Env{Client: c, Remote: fake, Store: db, State: stateMgr}
}
