package mapping

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperengineering/syncbridge/internal/event"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// ErrMissingRemoteID means a remote entity lacks its configured ID property.
var ErrMissingRemoteID = errors.New("remote entity has no id")

// EntityLookup finds local entities by field value.
type EntityLookup interface {
	QueryByField(ctx context.Context, entityType, bundle, field string, value any) ([]string, error)
	HasBundles(entityType string) bool
}

// EntityResolver decides which counterpart an entity maps to and what to do
// with it. Handlers registered on the bus after construction override the
// default decision.
type EntityResolver struct {
	bus      *event.Bus
	entities EntityLookup
}

// NewEntityResolver creates a resolver and registers the default entity
// mapping handlers.
func NewEntityResolver(bus *event.Bus, entities EntityLookup) *EntityResolver {
	r := &EntityResolver{bus: bus, entities: entities}
	bus.ImportEntityMapping.Register("remote-id-lookup", event.PriorityDefault, r.defaultImport)
	bus.ExportEntityMapping.Register("remote-id-field", event.PriorityDefault, r.defaultExport)
	return r
}

// ResolveImport returns the decision for a remote entity. A nil decision
// means nothing should be done.
func (r *EntityResolver) ResolveImport(ctx context.Context, remote map[string]any, s *types.Sync) (*types.EntityMapping, error) {
	ev := event.ImportEntityMapping{Sync: s, RemoteEntity: remote}
	if err := r.bus.ImportEntityMapping.Dispatch(ctx, &ev); err != nil {
		return nil, err
	}
	return ev.Mapping, nil
}

// ResolveExport returns the decision for a local entity. A nil decision
// means nothing should be exported.
func (r *EntityResolver) ResolveExport(ctx context.Context, local types.Entity, s *types.Sync) (*types.EntityMapping, error) {
	ev := event.ExportEntityMapping{Sync: s, LocalEntity: local}
	if err := r.bus.ExportEntityMapping.Dispatch(ctx, &ev); err != nil {
		return nil, err
	}
	return ev.Mapping, nil
}

// defaultImport updates the local entity whose remote ID field holds the
// remote ID, or creates one. The bundle narrows the lookup when the local
// type is bundled and the definition names one.
func (r *EntityResolver) defaultImport(ctx context.Context, e *event.ImportEntityMapping) error {
	s := e.Sync
	v, ok := e.RemoteEntity[s.RemoteResource.IDField]
	if !ok || v == nil {
		return fmt.Errorf("%w: %q", ErrMissingRemoteID, s.RemoteResource.IDField)
	}

	bundle := ""
	if r.entities.HasBundles(s.LocalEntity.Type) {
		bundle = s.LocalEntity.Bundle
	}
	ids, err := r.entities.QueryByField(ctx, s.LocalEntity.Type, bundle, s.LocalEntity.RemoteIDField, v)
	if err != nil {
		return fmt.Errorf("look up local entity: %w", err)
	}

	if len(ids) > 0 {
		e.Mapping = &types.EntityMapping{
			Action:     types.ActionUpdate,
			ID:         ids[0],
			EntityType: s.LocalEntity.Type,
			Bundle:     bundle,
		}
		return nil
	}
	e.Mapping = &types.EntityMapping{
		Action:     types.ActionCreate,
		EntityType: s.LocalEntity.Type,
		Bundle:     bundle,
	}
	return nil
}

// defaultExport exports to the remote ID stored on the entity, or to a new
// remote entity when none is stored. Entities without the remote ID field
// get no decision.
func (r *EntityResolver) defaultExport(_ context.Context, e *event.ExportEntityMapping) error {
	s := e.Sync
	if !e.LocalEntity.HasField(s.LocalEntity.RemoteIDField) {
		return nil
	}
	fv, err := e.LocalEntity.Get(s.LocalEntity.RemoteIDField)
	if err != nil {
		return err
	}

	binding := s.RemoteResource.Client
	m := &types.EntityMapping{Action: types.ActionExport, Client: &binding}
	if id := types.IDString(fv.First()); id != "" {
		m.ID = id
	}
	e.Mapping = m
	return nil
}
