// Package mapping turns remote entities into local field values and back,
// and decides which counterpart an entity maps to.
package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/syncbridge/internal/event"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// FieldManager runs the field mapping pipeline in both directions.
type FieldManager struct {
	bus        *event.Bus
	transforms *Transforms
	logger     *slog.Logger
}

// NewFieldManager creates a field manager and registers the default field
// mapping handlers, which return the definition's field list verbatim.
func NewFieldManager(bus *event.Bus, transforms *Transforms, logger *slog.Logger) *FieldManager {
	if logger == nil {
		logger = slog.Default()
	}
	bus.ImportFieldMapping.Register("definition", event.PriorityDefault,
		func(_ context.Context, e *event.ImportFieldMapping) error {
			e.FieldMapping = e.Sync.FieldMapping
			return nil
		})
	bus.ExportFieldMapping.Register("definition", event.PriorityDefault,
		func(_ context.Context, e *event.ExportFieldMapping) error {
			e.FieldMapping = e.Sync.FieldMapping
			return nil
		})
	return &FieldManager{bus: bus, transforms: transforms, logger: logger}
}

// Export computes the remote fields of a local entity. remoteID is empty
// when the export creates a new remote entity. Processing stops at the
// first failing field, which is returned as a *FieldExportError.
func (m *FieldManager) Export(ctx context.Context, local types.Entity, remoteID string, s *types.Sync) (map[string]any, error) {
	ev := event.ExportFieldMapping{Sync: s, LocalEntity: local, RemoteID: remoteID}
	if err := m.bus.ExportFieldMapping.Dispatch(ctx, &ev); err != nil {
		return nil, fmt.Errorf("resolve export field mapping: %w", err)
	}

	out := make(map[string]any, len(ev.FieldMapping))
	for _, f := range ev.FieldMapping {
		f = f.WithDefaults()
		if !f.Export.Enabled() {
			continue
		}
		value, present, err := m.exportField(ctx, local, remoteID, f)
		if err != nil {
			remote := remoteID
			if remote == "" {
				remote = "new entity"
			}
			return nil, &FieldExportError{
				LocalEntity:  types.Describe(local),
				RemoteEntity: remote,
				Field:        f,
				RemoteName:   f.RemoteName,
				Err:          err,
			}
		}
		if present {
			out[f.RemoteName] = value
		}
	}
	return out, nil
}

// exportField returns the remote value of one field and whether a key
// should be emitted for it.
func (m *FieldManager) exportField(ctx context.Context, local types.Entity, remoteID string, f types.FieldMapping) (any, bool, error) {
	if f.Export.Callback != "" {
		fn, ok := m.transforms.exportTransform(f.Export.Callback)
		if !ok {
			return nil, false, fmt.Errorf("%w: %q", ErrUnknownTransform, f.Export.Callback)
		}
		v, err := fn(ctx, local, remoteID, f)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	}

	if !local.HasField(f.MachineName) {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownLocalField, f.MachineName)
	}
	fv, err := local.Get(f.MachineName)
	if err != nil {
		return nil, false, err
	}
	if fv.IsEmpty() {
		return nil, false, nil
	}
	if fv.Multiple {
		items := make([]any, len(fv.Items))
		copy(items, fv.Items)
		return items, true, nil
	}
	return fv.First(), true, nil
}

// Import copies mapped remote fields onto local, then sets the remote ID and
// remote changed sync fields. It does not save the entity. The first failure
// is returned as a *FieldImportError; fields set before it stay set.
func (m *FieldManager) Import(ctx context.Context, remote map[string]any, local types.Entity, s *types.Sync) error {
	ev := event.ImportFieldMapping{Sync: s, RemoteEntity: remote, LocalEntity: local}
	if err := m.bus.ImportFieldMapping.Dispatch(ctx, &ev); err != nil {
		return fmt.Errorf("resolve import field mapping: %w", err)
	}
	if len(ev.FieldMapping) == 0 {
		return nil
	}

	remoteID := types.IDString(remote[s.RemoteResource.IDField])
	wrap := func(f types.FieldMapping, syncField string, err error) error {
		return &FieldImportError{
			RemoteID:    remoteID,
			LocalEntity: types.Describe(local),
			Field:       f,
			SyncField:   syncField,
			Err:         err,
		}
	}

	for _, f := range ev.FieldMapping {
		f = f.WithDefaults()
		if !f.Import.Enabled() {
			continue
		}
		if err := m.importField(ctx, remote, local, f); err != nil {
			return wrap(f, "", err)
		}
	}

	if err := importRemoteID(remote, local, s); err != nil {
		return wrap(types.FieldMapping{MachineName: s.LocalEntity.RemoteIDField, RemoteName: s.RemoteResource.IDField}, SyncFieldRemoteID, err)
	}
	if err := importRemoteChanged(remote, local, s); err != nil {
		return wrap(types.FieldMapping{MachineName: s.LocalEntity.RemoteChangedField, RemoteName: s.RemoteResource.ChangedField.Name}, SyncFieldRemoteChanged, err)
	}

	m.logger.Debug("fields imported",
		"component", "mapping",
		"sync_id", s.ID,
		"remote_id", remoteID,
		"fields", len(ev.FieldMapping),
	)
	return nil
}

func (m *FieldManager) importField(ctx context.Context, remote map[string]any, local types.Entity, f types.FieldMapping) error {
	if f.Import.Callback != "" {
		fn, ok := m.transforms.importTransform(f.Import.Callback)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTransform, f.Import.Callback)
		}
		return fn(ctx, remote, local, f)
	}

	if !local.HasField(f.MachineName) {
		return fmt.Errorf("%w: %q", ErrUnknownLocalField, f.MachineName)
	}
	// A present null clears the field; an absent property leaves it alone.
	v, ok := remote[f.RemoteName]
	if !ok {
		return nil
	}
	return local.Set(f.MachineName, v)
}

func importRemoteID(remote map[string]any, local types.Entity, s *types.Sync) error {
	v, ok := remote[s.RemoteResource.IDField]
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingRemoteField, s.RemoteResource.IDField)
	}
	return local.Set(s.LocalEntity.RemoteIDField, v)
}

func importRemoteChanged(remote map[string]any, local types.Entity, s *types.Sync) error {
	cf := s.RemoteResource.ChangedField
	v, ok := remote[cf.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingRemoteField, cf.Name)
	}
	ts, err := ParseChanged(v, cf.Format)
	if err != nil {
		return err
	}
	return local.Set(s.LocalEntity.RemoteChangedField, ts)
}
