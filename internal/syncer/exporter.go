package syncer

import (
	"context"
	"fmt"

	"github.com/hyperengineering/syncbridge/internal/event"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// Exporter exports local entities to their remote resource.
type Exporter struct {
	deps Deps
}

// NewExporter creates an exporter.
func NewExporter(deps Deps) *Exporter {
	return &Exporter{deps: deps}
}

// ExportLocalEntity creates or updates the remote counterpart of local.
// Field errors abort the export and are returned as *mapping.FieldExportError.
func (ex *Exporter) ExportLocalEntity(ctx context.Context, syncID string, local types.Entity, opts types.ExportOptions) (*types.ExportResult, error) {
	d := ex.deps
	s, err := enabledSync(d, syncID, types.OperationExportEntity)
	if err != nil {
		return nil, err
	}

	var res types.ExportResult
	out, err := runOperation(ctx, d, s, types.OperationExportEntity, opts.Context, func(map[string]any) error {
		var err error
		res, err = ex.export(ctx, s, local, opts)
		return err
	})
	if err != nil {
		if res.Action != "" {
			return &res, err
		}
		return nil, err
	}
	if out.cancelled {
		return nil, fmt.Errorf("%w: %s", ErrCancelled, out.message)
	}
	return &res, nil
}

func (ex *Exporter) export(ctx context.Context, s *types.Sync, local types.Entity, opts types.ExportOptions) (res types.ExportResult, err error) {
	d := ex.deps
	log := d.logger().With("component", "syncer", "sync_id", s.ID, "entity", types.Describe(local))
	state := stateMappingEntity
	log.Debug("entity state", "state", state)
	defer func() {
		if err != nil {
			log.Debug("entity state", "state", stateFailed, "from", state, "error", err)
		}
	}()

	m, err := d.Resolver.ResolveExport(ctx, local, s)
	if err != nil {
		return res, fmt.Errorf("resolve entity mapping: %w", err)
	}
	if m == nil || m.Action == types.ActionSkip {
		log.Debug("entity state", "state", stateDone, "action", types.ActionSkip)
		return types.ExportResult{Action: types.ActionSkip}, nil
	}

	// An export decision becomes a create or an update depending on
	// whether the remote ID is known.
	action := m.Action
	if action == types.ActionExport {
		action = types.ActionUpdate
		if m.ID == "" {
			action = types.ActionCreate
		}
	}

	settings := s.Operation(types.OperationExportEntity)
	switch action {
	case types.ActionCreate:
		if !settings.CanCreate() {
			log.Debug("entity state", "state", stateDone, "action", types.ActionSkip, "reason", "create disabled")
			return types.ExportResult{Action: types.ActionSkip}, nil
		}
	case types.ActionUpdate:
		if !settings.CanUpdate() {
			log.Debug("entity state", "state", stateDone, "action", types.ActionSkip, "reason", "update disabled")
			return types.ExportResult{Action: types.ActionSkip}, nil
		}
		if m.ID == "" {
			return res, fmt.Errorf("update: no remote id resolved for %s", types.Describe(local))
		}
	default:
		return res, fmt.Errorf("%w: %q", ErrUnsupportedAction, m.Action)
	}

	client, err := d.Clients.ClientFor(s, m.Client)
	if err != nil {
		return res, err
	}

	remoteID := ""
	if action == types.ActionUpdate {
		remoteID = m.ID
	}

	state = stateMappingFields
	log.Debug("entity state", "state", state, "action", action)
	fields, err := d.Fields.Export(ctx, local, remoteID, s)
	if err != nil {
		return res, err
	}

	state = statePersisting
	log.Debug("entity state", "state", state)
	var response map[string]any
	if action == types.ActionCreate {
		response, err = client.Create(ctx, fields)
	} else {
		response, err = client.Update(ctx, remoteID, fields)
	}
	if err != nil {
		return res, fmt.Errorf("%s remote entity: %w", action, err)
	}

	res = types.ExportResult{Action: action, RemoteID: remoteID, Response: response}
	if id := types.IDString(response[s.RemoteResource.IDField]); id != "" {
		res.RemoteID = id
	}

	notice := event.EntityExported{
		Sync:        s,
		LocalEntity: local,
		Mapping:     *m,
		Action:      action,
		Response:    response,
		Context:     opts.Context,
	}
	if err := d.Bus.EntityExported.Dispatch(ctx, &notice); err != nil {
		return res, fmt.Errorf("post-export: %w", err)
	}

	log.Debug("entity state", "state", stateDone, "action", action, "remote_id", res.RemoteID)
	return res, nil
}
