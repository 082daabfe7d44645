package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperengineering/syncbridge/internal/event"
	"github.com/hyperengineering/syncbridge/internal/remote"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// Importer imports remote entities into the local store.
type Importer struct {
	deps Deps
}

// NewImporter creates an importer.
func NewImporter(deps Deps) *Importer {
	return &Importer{deps: deps}
}

// ImportRemoteList imports every remote entity the list filters select.
// Failures of single entities are logged and counted; the batch goes on.
// A cancelled run is reported with Cancelled set and no error.
func (im *Importer) ImportRemoteList(ctx context.Context, syncID string, filters types.Filters, opts types.ImportListOptions) (*types.ImportListReport, error) {
	d := im.deps
	s, err := enabledSync(d, syncID, types.OperationImportList)
	if err != nil {
		return nil, err
	}

	report := &types.ImportListReport{SyncID: syncID, Filters: filters}
	out, err := runOperation(ctx, d, s, types.OperationImportList, opts.Context, func(data map[string]any) error {
		fev := event.RemoteListFilters{Sync: s, Filters: filters, Options: opts, Data: data}
		if err := d.Bus.RemoteListFilters.Dispatch(ctx, &fev); err != nil {
			return fmt.Errorf("resolve list filters: %w", err)
		}
		report.Filters = fev.Filters

		client, err := d.Clients.ClientFor(s, nil)
		if err != nil {
			return err
		}
		it, err := client.List(ctx, fev.Filters, remote.ListOptions{
			Limit:      opts.Limit,
			Parameters: opts.ClientParameters,
			Paginate:   client.SupportsPaging(),
		})
		if err != nil {
			return fmt.Errorf("list remote entities: %w", err)
		}

		return remote.Walk(ctx, it, func(item remote.Item) error {
			report.Processed++
			res, err := im.importItem(ctx, s, types.OperationImportList, item, opts.Context)
			if err != nil {
				if errors.Is(err, ErrUnsupportedAction) {
					return err
				}
				report.Failed++
				d.logger().Warn("remote entity import failed",
					"component", "syncer",
					"sync_id", s.ID,
					"remote_id", types.IDString(item[s.RemoteResource.IDField]),
					"error", err,
				)
				return nil
			}
			switch res.Action {
			case types.ActionCreate:
				report.Created++
			case types.ActionUpdate:
				report.Updated++
			default:
				report.Skipped++
			}
			return nil
		})
	})
	if err != nil {
		return report, err
	}
	if out.cancelled {
		report.Cancelled = true
		report.CancelMessage = out.message
		return report, nil
	}

	d.logger().Info("remote list imported",
		"component", "syncer",
		"sync_id", s.ID,
		"processed", report.Processed,
		"created", report.Created,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

// ImportEntity fetches one remote entity by ID and imports it.
func (im *Importer) ImportEntity(ctx context.Context, syncID, remoteID string) (*types.ImportResult, error) {
	s, err := enabledSync(im.deps, syncID, types.OperationImportEntity)
	if err != nil {
		return nil, err
	}
	client, err := im.deps.Clients.ClientFor(s, nil)
	if err != nil {
		return nil, err
	}
	item, err := client.Get(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("get remote entity %s: %w", remoteID, err)
	}
	return im.importSingle(ctx, s, item, nil)
}

// ImportRemoteEntity imports a remote entity the caller already holds.
func (im *Importer) ImportRemoteEntity(ctx context.Context, syncID string, item map[string]any, opCtx map[string]any) (*types.ImportResult, error) {
	s, err := enabledSync(im.deps, syncID, types.OperationImportEntity)
	if err != nil {
		return nil, err
	}
	return im.importSingle(ctx, s, item, opCtx)
}

func (im *Importer) importSingle(ctx context.Context, s *types.Sync, item map[string]any, opCtx map[string]any) (*types.ImportResult, error) {
	var res types.ImportResult
	out, err := runOperation(ctx, im.deps, s, types.OperationImportEntity, opCtx, func(map[string]any) error {
		var err error
		res, err = im.importItem(ctx, s, types.OperationImportEntity, item, opCtx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.cancelled {
		return nil, fmt.Errorf("%w: %s", ErrCancelled, out.message)
	}
	return &res, nil
}

// importItem runs one remote entity through mapping, field import and
// persistence.
func (im *Importer) importItem(ctx context.Context, s *types.Sync, op types.Operation, item map[string]any, opCtx map[string]any) (res types.ImportResult, err error) {
	d := im.deps
	remoteID := types.IDString(item[s.RemoteResource.IDField])
	log := d.logger().With("component", "syncer", "sync_id", s.ID, "remote_id", remoteID)
	state := stateMappingEntity
	log.Debug("entity state", "state", state)
	defer func() {
		if err != nil {
			log.Debug("entity state", "state", stateFailed, "from", state, "error", err)
		}
	}()

	m, err := d.Resolver.ResolveImport(ctx, item, s)
	if err != nil {
		return res, fmt.Errorf("resolve entity mapping: %w", err)
	}
	if m == nil || m.Action == types.ActionSkip {
		log.Debug("entity state", "state", stateDone, "action", types.ActionSkip)
		return types.ImportResult{Action: types.ActionSkip}, nil
	}

	settings := s.Operation(op)
	entityType := m.EntityType
	if entityType == "" {
		entityType = s.LocalEntity.Type
	}

	var local types.Entity
	switch m.Action {
	case types.ActionCreate:
		if !settings.CanCreate() {
			log.Debug("entity state", "state", stateDone, "action", types.ActionSkip, "reason", "create disabled")
			return types.ImportResult{Action: types.ActionSkip}, nil
		}
		if d.Entities.HasBundles(entityType) && m.Bundle == "" {
			return res, fmt.Errorf("create %s: bundle is required", entityType)
		}
		local, err = d.Entities.Create(ctx, entityType, m.Bundle)
		if err != nil {
			return res, fmt.Errorf("create local entity: %w", err)
		}
	case types.ActionUpdate:
		if !settings.CanUpdate() {
			log.Debug("entity state", "state", stateDone, "action", types.ActionSkip, "reason", "update disabled")
			return types.ImportResult{Action: types.ActionSkip}, nil
		}
		if m.ID == "" {
			return res, fmt.Errorf("update %s: no local id resolved", entityType)
		}
		local, err = d.Entities.Load(ctx, entityType, m.ID)
		if err != nil {
			return res, fmt.Errorf("load local entity: %w", err)
		}
	default:
		return res, fmt.Errorf("%w: %q", ErrUnsupportedAction, m.Action)
	}

	state = stateMappingFields
	log.Debug("entity state", "state", state, "action", m.Action)
	if err := d.Fields.Import(ctx, item, local, s); err != nil {
		return res, err
	}

	state = statePersisting
	log.Debug("entity state", "state", state)
	if err := d.Entities.Save(ctx, local); err != nil {
		return res, fmt.Errorf("save local entity: %w", err)
	}

	notice := event.EntityImported{Sync: s, RemoteEntity: item, Mapping: *m, LocalEntity: local, Context: opCtx}
	if err := d.Bus.EntityImported.Dispatch(ctx, &notice); err != nil {
		log.Warn("post-import handler failed", "error", err)
	}

	log.Debug("entity state", "state", stateDone, "action", m.Action, "local_id", local.ID())
	return types.ImportResult{Action: m.Action, LocalID: local.ID()}, nil
}
