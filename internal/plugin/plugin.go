package plugin

import (
	"log/slog"

	"github.com/hyperengineering/syncbridge/internal/event"
	"github.com/hyperengineering/syncbridge/internal/mapping"
	"github.com/hyperengineering/syncbridge/internal/state"
	"github.com/hyperengineering/syncbridge/internal/store"
)

// SyncPlugin extends the sync core by registering handlers on the event bus.
// Each plugin has a unique name used to enable it in configuration.
type SyncPlugin interface {
	// Name returns the name the plugin is registered and enabled under.
	Name() string

	// Attach registers the plugin's handlers on bus. It is called once per
	// bus, after the built-in default handlers are registered. The same
	// plugin value may be attached to several buses, so per-bus services
	// must not be kept on the receiver.
	Attach(bus *event.Bus, host Host) error
}

// Host gives plugins access to the services they may need.
type Host struct {
	State      *state.Manager
	Entities   store.EntityStore
	Transforms *mapping.Transforms
	Logger     *slog.Logger
}
