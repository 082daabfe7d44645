// Package managed schedules incremental list imports. For every import_list
// operation whose state is managed it computes the changed window from the
// previous run, records the run as it starts and finishes, and holds the
// operation lock so overlapping runs are cancelled instead of executed.
package managed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/syncbridge/internal/event"
	"github.com/hyperengineering/syncbridge/internal/plugin"
	"github.com/hyperengineering/syncbridge/internal/state"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// Name is the name the scheduler is registered under.
const Name = "managed"

// ErrMissingFallbackStart means a max interval is configured but no start
// bound can be computed for the first run.
var ErrMissingFallbackStart = errors.New("max_interval requires fallback_start_time")

// Keys the scheduler stores in the operation's shared data.
const (
	dataLocked = "managed.locked"
	dataWindow = "managed.window"
)

// Scheduler is the managed-import plugin.
type Scheduler struct {
	state  *state.Manager
	logger *slog.Logger
	now    func() time.Time
}

// New returns a scheduler. It is attached to a bus with Attach.
func New() *Scheduler {
	return &Scheduler{now: time.Now}
}

// Name implements plugin.SyncPlugin.
func (s *Scheduler) Name() string { return Name }

// Attach implements plugin.SyncPlugin. Handlers are bound to a copy
// carrying the host's services, so one registered scheduler can serve
// several buses.
func (s *Scheduler) Attach(bus *event.Bus, host plugin.Host) error {
	if host.State == nil {
		return fmt.Errorf("%w: state manager", plugin.ErrMissingService)
	}
	b := &Scheduler{state: host.State, logger: host.Logger, now: s.now}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	bus.PreInitiate.Register(Name, event.PriorityNormal, b.preInitiate)
	bus.RemoteListFilters.Register(Name, event.PriorityNormal, b.listFilters)
	bus.PostTerminate.Register(Name, event.PriorityNormal, b.postTerminate)
	return nil
}

func managedList(sync *types.Sync, op types.Operation) bool {
	return op == types.OperationImportList && state.Manages(sync, op)
}

// preInitiate takes the lock, or cancels the run when another run holds it.
func (s *Scheduler) preInitiate(ctx context.Context, e *event.PreInitiate) error {
	if !managedList(e.Sync, e.Operation.Operation) || !e.Sync.Operation(e.Operation.Operation).State.Lock {
		return nil
	}
	acquired, err := s.state.Lock(ctx, e.Sync.ID, e.Operation.Operation)
	if err != nil {
		return err
	}
	if !acquired {
		s.logger.Info("managed run locked, cancelling",
			"component", "managed",
			"action", "cancel",
			"sync_id", e.Sync.ID,
			"operation", e.Operation.Operation,
		)
		e.Cancel(fmt.Sprintf("%s %s is locked by another run", e.Sync.ID, e.Operation.Operation))
		return nil
	}
	e.Data[dataLocked] = true
	return nil
}

// listFilters fills in the changed window unless the caller supplied one,
// and records it as the current run.
func (s *Scheduler) listFilters(ctx context.Context, e *event.RemoteListFilters) error {
	if !managedList(e.Sync, types.OperationImportList) {
		return nil
	}
	if e.Filters.ChangedStart != nil || e.Filters.ChangedEnd != nil {
		return nil
	}

	now := s.now().Unix()
	start, end, err := s.window(ctx, e.Sync, now)
	if err != nil {
		return err
	}
	e.Filters.ChangedStart = start
	e.Filters.ChangedEnd = end

	if err := s.state.SetCurrentRun(ctx, e.Sync.ID, types.OperationImportList, now, start, end); err != nil {
		return fmt.Errorf("record current run: %w", err)
	}
	if e.Data != nil {
		e.Data[dataWindow] = true
	}

	s.logger.Debug("managed window computed",
		"component", "managed",
		"sync_id", e.Sync.ID,
		"changed_start", start,
		"changed_end", *end,
	)
	return nil
}

// window computes the changed window of the next run.
func (s *Scheduler) window(ctx context.Context, sync *types.Sync, now int64) (start, end *int64, err error) {
	settings := sync.Operation(types.OperationImportList).State

	last, err := s.state.GetLastRun(ctx, sync.ID, types.OperationImportList)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case last != nil && last.EndTime != nil:
		start = types.Int64(*last.EndTime)
	case settings.FallbackStartTime != nil:
		start = types.Int64(*settings.FallbackStartTime)
	}

	end = types.Int64(now)
	if settings.MaxInterval > 0 {
		if start == nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingFallbackStart, sync.ID)
		}
		end = types.Int64(min(*start+settings.MaxInterval, now))
	}
	if start != nil && *end < *start {
		s.logger.Warn("clock is behind the last run, clamping window end",
			"component", "managed",
			"sync_id", sync.ID,
			"changed_start", *start,
			"now", now,
		)
		end = types.Int64(*start)
	}
	return start, end, nil
}

// postTerminate promotes the current run on success and releases a lock
// taken by this run whether or not it succeeded.
func (s *Scheduler) postTerminate(ctx context.Context, e *event.Operation) error {
	if !managedList(e.Sync, e.Operation) {
		return nil
	}
	var errs []error

	if e.Err == nil && e.Data[dataWindow] == true {
		errs = append(errs, s.promote(ctx, e.Sync.ID))
	}
	if e.Data[dataLocked] == true {
		if err := s.state.Unlock(ctx, e.Sync.ID, e.Operation); err != nil {
			errs = append(errs, err)
		} else {
			delete(e.Data, dataLocked)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) promote(ctx context.Context, syncID string) error {
	op := types.OperationImportList
	run, err := s.state.GetCurrentRun(ctx, syncID, op)
	if err != nil || run == nil {
		return err
	}
	if err := s.state.SetLastRun(ctx, syncID, op, run.RunTime, run.StartTime, run.EndTime); err != nil {
		return fmt.Errorf("record last run: %w", err)
	}
	return s.state.UnsetCurrentRun(ctx, syncID, op)
}
