package store

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStateStore()

	if _, ok, _ := m.GetState(ctx, "c", "k"); ok {
		t.Fatal("empty store returned a value")
	}

	ok, _ := m.InsertStateIfAbsent(ctx, "c", "k", "1")
	if !ok {
		t.Fatal("first insert should succeed")
	}
	ok, _ = m.InsertStateIfAbsent(ctx, "c", "k", "2")
	if ok {
		t.Fatal("second insert should not overwrite")
	}
	if v, _, _ := m.GetState(ctx, "c", "k"); v != "1" {
		t.Errorf("value = %q, want 1", v)
	}

	m.SetState(ctx, "c", "k", "3")
	if v, _, _ := m.GetState(ctx, "c", "k"); v != "3" {
		t.Errorf("value = %q, want 3", v)
	}

	m.DeleteState(ctx, "c", "k")
	if _, ok, _ := m.GetState(ctx, "c", "k"); ok {
		t.Error("key should be deleted")
	}
}

func TestMemoryStateStore_InsertIfAbsentConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStateStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.InsertStateIfAbsent(ctx, "c", "lock", "1"); ok {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acquired != 1 {
		t.Errorf("acquired = %d, want 1", acquired)
	}
}
