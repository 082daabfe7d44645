package e2e

import (
	"context"
	"testing"

	"github.com/hyperengineering/syncbridge/internal/types"
	"github.com/hyperengineering/syncbridge/pkg/client"
)

func TestE2E_HealthAndSyncs(t *testing.T) {
	env := NewEnv(t)
	ctx := context.Background()

	h, err := env.Client.Health(ctx)
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.Status != "healthy" || h.Syncs != 1 {
		t.Errorf("health = %+v", h)
	}

	syncs, err := env.Client.ListSyncs(ctx)
	if err != nil {
		t.Fatalf("ListSyncs() error = %v", err)
	}
	if len(syncs) != 1 || syncs[0].ID != "contact" || len(syncs[0].Operations) != 3 {
		t.Errorf("syncs = %+v", syncs)
	}
}

func TestE2E_ManagedImportResumesFromLastRun(t *testing.T) {
	env := NewEnv(t)
	ctx := context.Background()
	env.Remote.Put("1", "Ada", 1000)
	env.Remote.Put("2", "Bob", 1001)

	// Given: a first managed run from the fallback start
	first, err := env.Client.ImportList(ctx, "contact", client.Filters{}, client.ImportListOptions{})
	if err != nil {
		t.Fatalf("ImportList() error = %v", err)
	}
	if first.Created != 2 {
		t.Fatalf("first report = %+v", first)
	}
	st, err := env.Client.State(ctx, "contact", client.OperationImportList)
	if err != nil {
		t.Fatal(err)
	}
	if st.LastRun == nil || st.LastRun.EndTime == nil || *st.LastRun.EndTime != *first.Filters.ChangedEnd {
		t.Fatalf("last run = %+v, want end %d", st.LastRun, *first.Filters.ChangedEnd)
	}
	if st.Locked || st.CurrentRun != nil {
		t.Errorf("state after run = %+v", st)
	}

	// When: a contact changes exactly at the previous end and Ada is updated
	env.Remote.Put("3", "Cy", *first.Filters.ChangedEnd)
	second, err := env.Client.ImportList(ctx, "contact", client.Filters{}, client.ImportListOptions{})
	if err != nil {
		t.Fatalf("second ImportList() error = %v", err)
	}

	// Then: only the boundary contact is in the new window
	if *second.Filters.ChangedStart != *first.Filters.ChangedEnd {
		t.Errorf("second start = %d, want %d", *second.Filters.ChangedStart, *first.Filters.ChangedEnd)
	}
	if second.Created != 1 || second.Processed != 1 {
		t.Errorf("second report = %+v", second)
	}
	count, _ := env.Store.CountEntities(ctx, "contact")
	if count != 3 {
		t.Errorf("local contacts = %d, want 3", count)
	}
}

func TestE2E_LockedImportIsConflictUntilUnlocked(t *testing.T) {
	env := NewEnv(t)
	ctx := context.Background()
	env.Remote.Put("1", "Ada", 1000)

	// Given: a stale lock left by a crashed run
	if ok, err := env.State.Lock(ctx, "contact", types.OperationImportList); err != nil || !ok {
		t.Fatalf("Lock() = %v, %v", ok, err)
	}

	// When: an import is requested
	_, err := env.Client.ImportList(ctx, "contact", client.Filters{}, client.ImportListOptions{})

	// Then: it is cancelled and nothing is recorded
	if !client.IsConflict(err) {
		t.Fatalf("error = %v, want conflict", err)
	}
	st, _ := env.Client.State(ctx, "contact", client.OperationImportList)
	if !st.Locked || st.LastRun != nil || st.CurrentRun != nil {
		t.Errorf("state after cancel = %+v", st)
	}

	// Manual unlock makes the next run go ahead
	if err := env.Client.Unlock(ctx, "contact", client.OperationImportList); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	report, err := env.Client.ImportList(ctx, "contact", client.Filters{}, client.ImportListOptions{})
	if err != nil {
		t.Fatalf("ImportList() after unlock error = %v", err)
	}
	if report.Created != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestE2E_ResetRunsRestartsFromFallback(t *testing.T) {
	env := NewEnv(t)
	ctx := context.Background()
	env.Remote.Put("1", "Ada", 1000)

	if _, err := env.Client.ImportList(ctx, "contact", client.Filters{}, client.ImportListOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := env.Client.ResetRuns(ctx, "contact", client.OperationImportList); err != nil {
		t.Fatalf("ResetRuns() error = %v", err)
	}

	report, err := env.Client.ImportList(ctx, "contact", client.Filters{}, client.ImportListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Filters.ChangedStart == nil || *report.Filters.ChangedStart != 0 {
		t.Errorf("start after reset = %v, want fallback 0", report.Filters.ChangedStart)
	}
	// Ada is already imported, so the replay updates instead of duplicating
	if report.Processed != 1 || report.Created != 0 || report.Updated != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestE2E_ExportCreateWritesBackRemoteID(t *testing.T) {
	env := NewEnv(t)
	ctx := context.Background()

	// Given: a local contact never synchronized
	local, err := env.Store.Create(ctx, "contact", "")
	if err != nil {
		t.Fatal(err)
	}
	local.Set("name", "Dee")
	if err := env.Store.Save(ctx, local); err != nil {
		t.Fatal(err)
	}

	// When: it is exported
	res, err := env.Client.Export(ctx, "contact", local.ID(), map[string]any{"source": "e2e"})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	// Then: the remote contact is created and its identity written back
	if res.Action != types.ActionCreate || res.RemoteID == "" {
		t.Fatalf("export result = %+v", res)
	}
	item, ok := env.Remote.Item(res.RemoteID)
	if !ok || item["name"] != "Dee" {
		t.Errorf("remote item = %v", item)
	}
	reloaded, err := env.Store.Load(ctx, "contact", local.ID())
	if err != nil {
		t.Fatal(err)
	}
	rid, _ := reloaded.Get("remote_id")
	if types.IDString(rid.First()) != res.RemoteID {
		t.Errorf("local remote_id = %v, want %s", rid.First(), res.RemoteID)
	}
	changed, _ := reloaded.Get("remote_changed")
	if changed.IsEmpty() {
		t.Error("local remote_changed not written back")
	}

	// A second export updates the same remote contact
	res, err = env.Client.Export(ctx, "contact", local.ID(), nil)
	if err != nil {
		t.Fatalf("second Export() error = %v", err)
	}
	if res.Action != types.ActionUpdate {
		t.Errorf("second export action = %s, want update", res.Action)
	}
}

func TestE2E_ImportEntityErrors(t *testing.T) {
	env := NewEnv(t)
	ctx := context.Background()

	_, err := env.Client.ImportEntity(ctx, "contact", "404")
	if !client.IsNotFound(err) {
		t.Errorf("missing remote: error = %v, want not found", err)
	}

	_, err = env.Client.ImportEntity(ctx, "order", "1")
	if !client.IsNotFound(err) {
		t.Errorf("unknown sync: error = %v, want not found", err)
	}

	_, err = env.Client.Export(ctx, "contact", "missing", nil)
	if !client.IsNotFound(err) {
		t.Errorf("missing local: error = %v, want not found", err)
	}
}
