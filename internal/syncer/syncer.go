// Package syncer runs the three sync operations: importing a remote list,
// importing a single remote entity, and exporting a local entity.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/syncbridge/internal/event"
	"github.com/hyperengineering/syncbridge/internal/mapping"
	"github.com/hyperengineering/syncbridge/internal/remote"
	"github.com/hyperengineering/syncbridge/internal/store"
	"github.com/hyperengineering/syncbridge/internal/types"
)

var (
	// ErrOperationDisabled means the synchronization does not enable the
	// requested operation.
	ErrOperationDisabled = errors.New("operation disabled")

	// ErrUnsupportedAction means entity mapping produced an action the
	// operation cannot perform.
	ErrUnsupportedAction = errors.New("unsupported entity mapping action")

	// ErrCancelled means a pre-initiate handler cancelled the operation.
	ErrCancelled = errors.New("operation cancelled")
)

// Entity processing states, logged at debug level.
const (
	stateMappingEntity = "mapping_entity"
	stateMappingFields = "mapping_fields"
	statePersisting    = "persisting"
	stateDone          = "done"
	stateFailed        = "failed"
)

// SyncSource returns synchronization definitions by ID.
type SyncSource interface {
	Get(id string) (*types.Sync, error)
}

// ClientResolver resolves the remote client of a synchronization, or of an
// explicit binding when one is given.
type ClientResolver interface {
	ClientFor(s *types.Sync, binding *types.ClientBinding) (remote.Client, error)
}

// Deps are the collaborators shared by Importer and Exporter.
type Deps struct {
	Definitions SyncSource
	Clients     ClientResolver
	Entities    store.EntityStore
	Resolver    *mapping.EntityResolver
	Fields      *mapping.FieldManager
	Bus         *event.Bus
	Logger      *slog.Logger
}

// NewDeps wires a fresh event bus with the default mapping handlers.
// Plugins are attached to the returned Deps.Bus afterwards.
func NewDeps(defs SyncSource, clients ClientResolver, entities store.EntityStore, transforms *mapping.Transforms, logger *slog.Logger) Deps {
	if transforms == nil {
		transforms = mapping.NewTransforms()
	}
	if logger == nil {
		logger = slog.Default()
	}
	bus := event.NewBus()
	return Deps{
		Definitions: defs,
		Clients:     clients,
		Entities:    entities,
		Resolver:    mapping.NewEntityResolver(bus, entities),
		Fields:      mapping.NewFieldManager(bus, transforms, logger),
		Bus:         bus,
		Logger:      logger,
	}
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// enabledSync loads a definition and checks that op is enabled.
func enabledSync(d Deps, syncID string, op types.Operation) (*types.Sync, error) {
	s, err := d.Definitions.Get(syncID)
	if err != nil {
		return nil, err
	}
	if !s.OperationEnabled(op) {
		d.logger().Info("operation disabled, skipping",
			"component", "syncer",
			"sync_id", syncID,
			"operation", op,
		)
		return nil, fmt.Errorf("%w: %s %s", ErrOperationDisabled, syncID, op)
	}
	return s, nil
}

// outcome is what a lifecycle run reports back.
type outcome struct {
	cancelled bool
	message   string
}

// runOperation wraps body in the lifecycle notifications. Pre-initiate can
// cancel the run before it starts. Terminate is dispatched after a
// successful body. Post-terminate is dispatched once for every run whose
// pre-initiate was dispatched, so handlers can release what they acquired
// there; it carries the body's error, the pre-initiate error, or
// ErrCancelled, and it runs even when ctx has been cancelled.
func runOperation(ctx context.Context, d Deps, s *types.Sync, op types.Operation, opCtx map[string]any, body func(data map[string]any) error) (out outcome, err error) {
	log := d.logger().With("component", "syncer", "sync_id", s.ID, "operation", op)
	base := event.Operation{Sync: s, Operation: op, Data: make(map[string]any), Context: opCtx}

	defer func() {
		post := base
		post.Err = err
		if out.cancelled {
			post.Err = fmt.Errorf("%w: %s", ErrCancelled, out.message)
		}
		if perr := d.Bus.PostTerminate.Dispatch(context.WithoutCancel(ctx), &post); perr != nil {
			log.Error("post-terminate failed", "error", perr)
			if err == nil && !out.cancelled {
				err = fmt.Errorf("post-terminate: %w", perr)
			}
		}
	}()

	pre := event.PreInitiate{Operation: base}
	if err = d.Bus.PreInitiate.Dispatch(ctx, &pre); err != nil {
		return out, fmt.Errorf("pre-initiate: %w", err)
	}
	if pre.Cancelled() {
		log.Info("operation cancelled", "action", "cancel", "message", pre.Message())
		return outcome{cancelled: true, message: pre.Message()}, nil
	}

	initiate := base
	if err = d.Bus.Initiate.Dispatch(ctx, &initiate); err != nil {
		return out, fmt.Errorf("initiate: %w", err)
	}

	log.Debug("operation started", "action", "start")
	if err = body(base.Data); err != nil {
		log.Warn("operation failed", "action", "fail", "error", err)
		return out, err
	}

	terminate := base
	if err = d.Bus.Terminate.Dispatch(ctx, &terminate); err != nil {
		return out, fmt.Errorf("terminate: %w", err)
	}
	log.Debug("operation finished", "action", "finish")
	return out, nil
}
