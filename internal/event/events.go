package event

import (
	"strings"

	"github.com/hyperengineering/syncbridge/internal/types"
)

// ImportEntityMapping asks which local entity a remote entity maps to.
// Mapping is nil when no handler produced a decision.
type ImportEntityMapping struct {
	Sync         *types.Sync
	RemoteEntity map[string]any
	Mapping      *types.EntityMapping
}

// ExportEntityMapping asks how a local entity is exported.
type ExportEntityMapping struct {
	Sync        *types.Sync
	LocalEntity types.Entity
	Mapping     *types.EntityMapping
}

// ImportFieldMapping asks for the field mapping used to import one entity.
type ImportFieldMapping struct {
	Sync         *types.Sync
	RemoteEntity map[string]any
	LocalEntity  types.Entity
	FieldMapping []types.FieldMapping
}

// ExportFieldMapping asks for the field mapping used to export one entity.
// RemoteID is empty when the export creates a new remote entity.
type ExportFieldMapping struct {
	Sync         *types.Sync
	LocalEntity  types.Entity
	RemoteID     string
	FieldMapping []types.FieldMapping
}

// RemoteListFilters asks for the filters of a remote list call.
// Data is the operation's shared data, see Operation.
type RemoteListFilters struct {
	Sync    *types.Sync
	Filters types.Filters
	Options types.ImportListOptions
	Data    map[string]any
}

// Operation is a lifecycle notification for one operation run. Data is
// shared by every notification of the same run so handlers can hand state
// to their later stages. Err is set on post-terminate when the run failed.
type Operation struct {
	Sync      *types.Sync
	Operation types.Operation
	Data      map[string]any
	Context   map[string]any
	Err       error
}

// PreInitiate is dispatched before an operation starts and can cancel it.
type PreInitiate struct {
	Operation
	cancelled bool
	messages  []string
}

// Cancel stops the operation before it starts.
func (e *PreInitiate) Cancel(message string) {
	e.cancelled = true
	if message != "" {
		e.messages = append(e.messages, message)
	}
}

// Cancelled reports whether any handler cancelled the operation.
func (e *PreInitiate) Cancelled() bool {
	return e.cancelled
}

// Message joins the cancellation messages.
func (e *PreInitiate) Message() string {
	return strings.Join(e.messages, "; ")
}

// EntityImported is dispatched after a remote entity was imported and saved.
type EntityImported struct {
	Sync         *types.Sync
	RemoteEntity map[string]any
	Mapping      types.EntityMapping
	LocalEntity  types.Entity
	Context      map[string]any
}

// EntityExported is dispatched after a local entity was exported.
// Response is the remote entity returned by the create or update call.
type EntityExported struct {
	Sync        *types.Sync
	LocalEntity types.Entity
	Mapping     types.EntityMapping
	Action      types.Action
	Response    map[string]any
	Context     map[string]any
}

// Bus groups the chains of every extension point.
type Bus struct {
	ImportEntityMapping Chain[ImportEntityMapping]
	ExportEntityMapping Chain[ExportEntityMapping]
	ImportFieldMapping  Chain[ImportFieldMapping]
	ExportFieldMapping  Chain[ExportFieldMapping]
	RemoteListFilters   Chain[RemoteListFilters]

	PreInitiate   Chain[PreInitiate]
	Initiate      Chain[Operation]
	Terminate     Chain[Operation]
	PostTerminate Chain[Operation]

	EntityImported Chain[EntityImported]
	EntityExported Chain[EntityExported]
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}
