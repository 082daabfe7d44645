// Package writeback copies the identity of a newly exported remote entity
// back onto the local entity, so later exports update instead of creating.
package writeback

import (
	"context"
	"fmt"

	"github.com/hyperengineering/syncbridge/internal/event"
	"github.com/hyperengineering/syncbridge/internal/mapping"
	"github.com/hyperengineering/syncbridge/internal/plugin"
	"github.com/hyperengineering/syncbridge/internal/store"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// Name is the name the plugin is registered under.
const Name = "writeback"

// Plugin writes the remote ID and remote changed time from an export
// response onto the exported local entity.
type Plugin struct {
	entities store.EntityStore
}

// New returns the writeback plugin.
func New() *Plugin {
	return &Plugin{}
}

// Name implements plugin.SyncPlugin.
func (p *Plugin) Name() string { return Name }

// Attach implements plugin.SyncPlugin.
func (p *Plugin) Attach(bus *event.Bus, host plugin.Host) error {
	if host.Entities == nil {
		return fmt.Errorf("%w: entity store", plugin.ErrMissingService)
	}
	b := &Plugin{entities: host.Entities}
	bus.EntityExported.Register(Name, event.PriorityNormal, b.onExported)
	return nil
}

func (p *Plugin) onExported(ctx context.Context, e *event.EntityExported) error {
	if e.Action != types.ActionCreate && e.Action != types.ActionUpdate {
		return nil
	}
	s := e.Sync
	changed := false

	if e.Action == types.ActionCreate {
		id := types.IDString(e.Response[s.RemoteResource.IDField])
		if id != "" {
			if err := e.LocalEntity.Set(s.LocalEntity.RemoteIDField, id); err != nil {
				return fmt.Errorf("write remote id: %w", err)
			}
			changed = true
		}
	}

	if raw, ok := e.Response[s.RemoteResource.ChangedField.Name]; ok && raw != nil {
		ts, err := mapping.ParseChanged(raw, s.RemoteResource.ChangedField.Format)
		if err != nil {
			return fmt.Errorf("write remote changed: %w", err)
		}
		if err := e.LocalEntity.Set(s.LocalEntity.RemoteChangedField, ts); err != nil {
			return fmt.Errorf("write remote changed: %w", err)
		}
		changed = true
	}

	if !changed {
		return nil
	}
	if err := p.entities.Save(ctx, e.LocalEntity); err != nil {
		return fmt.Errorf("save %s: %w", types.Describe(e.LocalEntity), err)
	}
	return nil
}
