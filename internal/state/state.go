// Package state tracks run history and the lock flag of every
// (synchronization, operation) pair in a durable key-value store.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hyperengineering/syncbridge/internal/store"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// ManagerID is the state manager tag a synchronization operation declares
// under state.manager to have its runs managed by this package.
const ManagerID = "syncbridge"

const (
	keyLastRun    = "last_run"
	keyCurrentRun = "current_run"
	keyLock       = "lock"
)

// SyncSource returns synchronization definitions by ID.
type SyncSource interface {
	Get(id string) (*types.Sync, error)
}

// Manager reads and writes operation state.
type Manager struct {
	kv   store.StateStore
	defs SyncSource
	now  func() time.Time
}

// NewManager creates a state manager over kv. defs is consulted by IsManaged.
func NewManager(kv store.StateStore, defs SyncSource) *Manager {
	return &Manager{kv: kv, defs: defs, now: time.Now}
}

// Collection returns the state collection of a synchronization.
func Collection(syncID string) string {
	return "syncbridge.state." + syncID
}

func key(op types.Operation, name string) string {
	return string(op) + "." + name
}

// GetLastRun returns the last completed run, or nil if none was recorded.
func (m *Manager) GetLastRun(ctx context.Context, syncID string, op types.Operation) (*types.Run, error) {
	return m.getRun(ctx, syncID, key(op, keyLastRun))
}

// SetLastRun overwrites the last-run record.
func (m *Manager) SetLastRun(ctx context.Context, syncID string, op types.Operation, runTime int64, start, end *int64) error {
	return m.setRun(ctx, syncID, key(op, keyLastRun), types.Run{RunTime: runTime, StartTime: start, EndTime: end})
}

// UnsetLastRun clears the last-run record.
func (m *Manager) UnsetLastRun(ctx context.Context, syncID string, op types.Operation) error {
	return m.kv.DeleteState(ctx, Collection(syncID), key(op, keyLastRun))
}

// GetCurrentRun returns the in-flight run, or nil if none was recorded.
func (m *Manager) GetCurrentRun(ctx context.Context, syncID string, op types.Operation) (*types.Run, error) {
	return m.getRun(ctx, syncID, key(op, keyCurrentRun))
}

// SetCurrentRun overwrites the current-run record.
func (m *Manager) SetCurrentRun(ctx context.Context, syncID string, op types.Operation, runTime int64, start, end *int64) error {
	return m.setRun(ctx, syncID, key(op, keyCurrentRun), types.Run{RunTime: runTime, StartTime: start, EndTime: end})
}

// UnsetCurrentRun clears the current-run record.
func (m *Manager) UnsetCurrentRun(ctx context.Context, syncID string, op types.Operation) error {
	return m.kv.DeleteState(ctx, Collection(syncID), key(op, keyCurrentRun))
}

// IsLocked reports whether the operation is locked.
func (m *Manager) IsLocked(ctx context.Context, syncID string, op types.Operation) (bool, error) {
	_, ok, err := m.kv.GetState(ctx, Collection(syncID), key(op, keyLock))
	if err != nil {
		return false, fmt.Errorf("read lock: %w", err)
	}
	return ok, nil
}

// Lock acquires the operation lock. It reports false without error when the
// lock is already held. Acquisition is a single conditional insert, so two
// concurrent callers can never both succeed.
func (m *Manager) Lock(ctx context.Context, syncID string, op types.Operation) (bool, error) {
	stamp := strconv.FormatInt(m.now().Unix(), 10)
	acquired, err := m.kv.InsertStateIfAbsent(ctx, Collection(syncID), key(op, keyLock), stamp)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return acquired, nil
}

// Unlock releases the operation lock. Unlocking an unlocked operation is a no-op.
func (m *Manager) Unlock(ctx context.Context, syncID string, op types.Operation) error {
	if err := m.kv.DeleteState(ctx, Collection(syncID), key(op, keyLock)); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// IsManaged reports whether the operation declares this package as its
// state manager.
func (m *Manager) IsManaged(syncID string, op types.Operation) (bool, error) {
	s, err := m.defs.Get(syncID)
	if err != nil {
		return false, err
	}
	return Manages(s, op), nil
}

// Manages reports whether op of s declares this package as its state manager.
func Manages(s *types.Sync, op types.Operation) bool {
	return s.Operation(op).State.Manager == ManagerID
}

// State returns a snapshot of everything recorded for the operation.
func (m *Manager) State(ctx context.Context, syncID string, op types.Operation) (*types.OperationState, error) {
	managed, err := m.IsManaged(syncID, op)
	if err != nil {
		return nil, err
	}
	st := &types.OperationState{SyncID: syncID, Operation: op, Managed: managed}
	if st.LastRun, err = m.GetLastRun(ctx, syncID, op); err != nil {
		return nil, err
	}
	if st.CurrentRun, err = m.GetCurrentRun(ctx, syncID, op); err != nil {
		return nil, err
	}
	if st.Locked, err = m.IsLocked(ctx, syncID, op); err != nil {
		return nil, err
	}
	return st, nil
}

func (m *Manager) getRun(ctx context.Context, syncID, k string) (*types.Run, error) {
	raw, ok, err := m.kv.GetState(ctx, Collection(syncID), k)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", k, err)
	}
	if !ok {
		return nil, nil
	}
	var run types.Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	return &run, nil
}

func (m *Manager) setRun(ctx context.Context, syncID, k string, run types.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	if err := m.kv.SetState(ctx, Collection(syncID), k, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", k, err)
	}
	return nil
}
