package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hyperengineering/syncbridge/internal/plugin"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// fakeCRM is a REST remote serving a small user collection.
type fakeCRM struct {
	mu      sync.Mutex
	users   map[string]map[string]any
	updates []string
	lastQ   string
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{users: map[string]map[string]any{
		"1": {"id": "1", "email": "ada@example.com", "changed": 100},
		"2": {"id": "2", "email": "bob@example.com", "changed": 200},
	}}
}

func (f *fakeCRM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	id := strings.TrimPrefix(r.URL.Path, "/users")
	id = strings.TrimPrefix(id, "/")

	switch {
	case r.Method == http.MethodGet && id == "":
		f.lastQ = r.URL.RawQuery
		start, _ := strconv.Atoi(r.URL.Query().Get("changed_start"))
		list := []map[string]any{}
		for _, key := range []string{"1", "2"} {
			u := f.users[key]
			if u["changed"].(int) >= start {
				list = append(list, u)
			}
		}
		json.NewEncoder(w).Encode(list)
	case r.Method == http.MethodGet:
		u, ok := f.users[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(u)
	case r.Method == http.MethodPut:
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.updates = append(f.updates, id+":"+fmt.Sprint(body["email"]))
		u := f.users[id]
		u["email"] = body["email"]
		u["changed"] = 300
		json.NewEncoder(w).Encode(u)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// setupCLI writes a config and one definition bound to a fake remote.
func setupCLI(t *testing.T) (configFile string, crm *fakeCRM) {
	t.Helper()
	crm = newFakeCRM()
	srv := httptest.NewServer(crm)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	defsDir := filepath.Join(dir, "syncs")
	if err := os.MkdirAll(defsDir, 0755); err != nil {
		t.Fatal(err)
	}

	def := fmt.Sprintf(`
id: user
label: CRM users
local_entity: {type: user, remote_id_field: remote_id, remote_changed_field: remote_changed}
remote_resource:
  client:
    type: rest
    options: {base_url: %q, path: /users, paging: false}
  id_field: id
  changed_field: {name: changed}
operations:
  import_list:
    status: true
    state: {manager: syncbridge, lock: true, fallback_start_time: 0}
  import_entity: {status: true}
  export_entity: {status: true}
field_mapping:
  - machine_name: mail
    remote_name: email
`, srv.URL)
	if err := os.WriteFile(filepath.Join(defsDir, "user.yaml"), []byte(def), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := fmt.Sprintf(`
database:
  path: %q
definitions:
  path: %q
entity_types:
  - type: user
    fields:
      - name: mail
      - name: remote_id
      - name: remote_changed
`, filepath.Join(dir, "syncbridge.db"), defsDir)
	configFile = filepath.Join(dir, "syncbridge.yaml")
	if err := os.WriteFile(configFile, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return configFile, crm
}

// executeCmd executes a command with captured output.
func executeCmd(t *testing.T, configFile string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	// Register panics on duplicate; every command registers again.
	plugin.Reset()

	// Cobra parses into package-level variables; reset them so values
	// from previous tests do not leak.
	configPath = ""
	jsonOutput = false
	importChangedStart = -1
	importChangedEnd = -1
	importLimit = 0

	fullArgs := append(args, "--config", configFile)

	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(fullArgs)

	err = rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetArgs(nil)

	return outBuf.String(), errBuf.String(), err
}

func TestSyncsList(t *testing.T) {
	cfg, _ := setupCLI(t)

	out, _, err := executeCmd(t, cfg, "syncs", "list")
	if err != nil {
		t.Fatalf("syncs list error = %v", err)
	}
	if !strings.Contains(out, "user") || !strings.Contains(out, "rest") {
		t.Errorf("output missing sync: %s", out)
	}
	if !strings.Contains(out, "import_list,import_entity,export_entity") {
		t.Errorf("output missing operations: %s", out)
	}
}

func TestImportList_ManagedWindowAdvances(t *testing.T) {
	cfg, crm := setupCLI(t)

	// Given: a first managed run starting at the fallback time
	out, _, err := executeCmd(t, cfg, "import", "list", "user", "--json")
	if err != nil {
		t.Fatalf("import list error = %v", err)
	}
	var first types.ImportListReport
	if err := json.Unmarshal([]byte(out), &first); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if first.Created != 2 || first.Failed != 0 {
		t.Fatalf("first report = %+v", first)
	}
	if first.Filters.ChangedStart == nil || *first.Filters.ChangedStart != 0 {
		t.Errorf("first window start = %v, want fallback 0", first.Filters.ChangedStart)
	}

	// When: the list is imported again
	out, _, err = executeCmd(t, cfg, "import", "list", "user", "--json")
	if err != nil {
		t.Fatalf("second import list error = %v", err)
	}

	// Then: the window resumes where the first run ended
	var second types.ImportListReport
	if err := json.Unmarshal([]byte(out), &second); err != nil {
		t.Fatal(err)
	}
	if second.Filters.ChangedStart == nil || *second.Filters.ChangedStart != *first.Filters.ChangedEnd {
		t.Errorf("second window start = %v, want %d", second.Filters.ChangedStart, *first.Filters.ChangedEnd)
	}
	if second.Created != 0 {
		t.Errorf("second report = %+v, want nothing new", second)
	}
	if !strings.Contains(crm.lastQ, "changed_start=") {
		t.Errorf("remote query = %q, want changed_start", crm.lastQ)
	}
}

func TestImportList_ExplicitWindow(t *testing.T) {
	cfg, _ := setupCLI(t)

	out, _, err := executeCmd(t, cfg, "import", "list", "user", "--changed-start", "150", "--json")
	if err != nil {
		t.Fatalf("import list error = %v", err)
	}
	var report types.ImportListReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if report.Created != 1 {
		t.Errorf("report = %+v, want only the entity changed after 150", report)
	}

	// A caller-supplied window leaves the managed run history alone
	out, _, err = executeCmd(t, cfg, "state", "show", "user", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var st types.OperationState
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatal(err)
	}
	if st.LastRun != nil {
		t.Errorf("last run = %+v, want none", st.LastRun)
	}
}

func TestStateShowAndReset(t *testing.T) {
	cfg, _ := setupCLI(t)

	if _, _, err := executeCmd(t, cfg, "import", "list", "user"); err != nil {
		t.Fatalf("import list error = %v", err)
	}

	out, _, err := executeCmd(t, cfg, "state", "show", "user", "import_list", "--json")
	if err != nil {
		t.Fatalf("state show error = %v", err)
	}
	var st types.OperationState
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatal(err)
	}
	if !st.Managed || st.Locked || st.LastRun == nil || st.CurrentRun != nil {
		t.Errorf("state = %+v", st)
	}

	if _, _, err := executeCmd(t, cfg, "state", "reset", "user"); err != nil {
		t.Fatalf("state reset error = %v", err)
	}
	out, _, _ = executeCmd(t, cfg, "state", "show", "user")
	if !strings.Contains(out, "Last run:") || !strings.Contains(out, "-") {
		t.Errorf("state after reset = %s", out)
	}
	st = types.OperationState{}
	out, _, _ = executeCmd(t, cfg, "state", "show", "user", "--json")
	json.Unmarshal([]byte(out), &st)
	if st.LastRun != nil {
		t.Errorf("last run after reset = %+v", st.LastRun)
	}
}

func TestStateUnknownOperation(t *testing.T) {
	cfg, _ := setupCLI(t)

	_, _, err := executeCmd(t, cfg, "state", "unlock", "user", "delete_all")
	if err == nil || !strings.Contains(err.Error(), "unknown operation") {
		t.Errorf("error = %v, want unknown operation", err)
	}
}

func TestImportEntityThenExport(t *testing.T) {
	cfg, crm := setupCLI(t)

	// Given: a remote user imported locally
	out, _, err := executeCmd(t, cfg, "import", "entity", "user", "1", "--json")
	if err != nil {
		t.Fatalf("import entity error = %v", err)
	}
	var imported types.ImportResult
	if err := json.Unmarshal([]byte(out), &imported); err != nil {
		t.Fatal(err)
	}
	if imported.Action != types.ActionCreate || imported.LocalID == "" {
		t.Fatalf("import result = %+v", imported)
	}

	// When: the local entity is exported
	out, _, err = executeCmd(t, cfg, "export", "user", imported.LocalID, "--json")
	if err != nil {
		t.Fatalf("export error = %v", err)
	}

	// Then: the known remote entity is updated, not created
	var exported types.ExportResult
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		t.Fatal(err)
	}
	if exported.Action != types.ActionUpdate || exported.RemoteID != "1" {
		t.Errorf("export result = %+v", exported)
	}
	if len(crm.updates) != 1 || crm.updates[0] != "1:ada@example.com" {
		t.Errorf("remote updates = %v", crm.updates)
	}
}

func TestExport_UnknownEntity(t *testing.T) {
	cfg, _ := setupCLI(t)

	_, _, err := executeCmd(t, cfg, "export", "user", "missing")
	if err == nil {
		t.Fatal("expected error for missing local entity")
	}
}

func TestImport_UnknownSync(t *testing.T) {
	cfg, _ := setupCLI(t)

	_, _, err := executeCmd(t, cfg, "import", "entity", "order", "1")
	if err == nil || !strings.Contains(err.Error(), "unknown synchronization") {
		t.Errorf("error = %v, want unknown synchronization", err)
	}
}
