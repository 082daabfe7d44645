package types

import (
	"fmt"
	"strconv"
)

// Operation names a unit of work governed by its own settings.
type Operation string

const (
	OperationImportList   Operation = "import_list"
	OperationImportEntity Operation = "import_entity"
	OperationExportEntity Operation = "export_entity"
)

// Operations lists every operation a synchronization can configure.
var Operations = []Operation{
	OperationImportList,
	OperationImportEntity,
	OperationExportEntity,
}

// Valid reports whether the operation is one of the known operations.
func (o Operation) Valid() bool {
	switch o {
	case OperationImportList, OperationImportEntity, OperationExportEntity:
		return true
	}
	return false
}

// Action is the outcome of entity mapping.
type Action string

const (
	ActionExport Action = "export"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Valid reports whether the action is one of the defined actions.
func (a Action) Valid() bool {
	switch a {
	case ActionExport, ActionCreate, ActionUpdate, ActionSkip:
		return true
	}
	return false
}

// Changed field formats.
const (
	ChangedFormatTimestamp = "timestamp"
	ChangedFormatString    = "string"
)

// Sync is a synchronization definition: one local entity type/bundle bound
// to one remote resource. It is read-only once loaded.
type Sync struct {
	ID             string                          `yaml:"id" json:"id"`
	Label          string                          `yaml:"label" json:"label,omitempty"`
	Version        int                             `yaml:"version" json:"version"`
	LocalEntity    LocalEntity                     `yaml:"local_entity" json:"local_entity"`
	RemoteResource RemoteResource                  `yaml:"remote_resource" json:"remote_resource"`
	Operations     map[Operation]OperationSettings `yaml:"operations" json:"operations"`
	FieldMapping   []FieldMapping                  `yaml:"field_mapping" json:"field_mapping"`
}

// LocalEntity describes the local side of a synchronization.
type LocalEntity struct {
	Type               string `yaml:"type" json:"type"`
	Bundle             string `yaml:"bundle" json:"bundle,omitempty"`
	RemoteIDField      string `yaml:"remote_id_field" json:"remote_id_field"`
	RemoteChangedField string `yaml:"remote_changed_field" json:"remote_changed_field"`
}

// RemoteResource describes the remote side of a synchronization.
type RemoteResource struct {
	Client       ClientBinding `yaml:"client" json:"client"`
	IDField      string        `yaml:"id_field" json:"id_field"`
	ChangedField ChangedField  `yaml:"changed_field" json:"changed_field"`
}

// ClientBinding selects the remote client backend for a synchronization.
type ClientBinding struct {
	Type    string         `yaml:"type" json:"type"`
	Name    string         `yaml:"name" json:"name,omitempty"`
	Options map[string]any `yaml:"options" json:"options,omitempty"`
}

// IsZero reports whether no binding was declared.
func (b ClientBinding) IsZero() bool {
	return b.Type == "" && b.Name == ""
}

// ChangedField names the remote property carrying the last-changed time.
type ChangedField struct {
	Name   string `yaml:"name" json:"name"`
	Format string `yaml:"format" json:"format"`
}

// OperationSettings configures a single operation of a synchronization.
type OperationSettings struct {
	Status         bool          `yaml:"status" json:"status"`
	CreateEntities *bool         `yaml:"create_entities" json:"create_entities,omitempty"`
	UpdateEntities *bool         `yaml:"update_entities" json:"update_entities,omitempty"`
	State          StateSettings `yaml:"state" json:"state"`
}

// CanCreate reports whether the operation may create counterparts.
func (o OperationSettings) CanCreate() bool {
	return o.CreateEntities == nil || *o.CreateEntities
}

// CanUpdate reports whether the operation may update counterparts.
func (o OperationSettings) CanUpdate() bool {
	return o.UpdateEntities == nil || *o.UpdateEntities
}

// StateSettings configures managed run state for an operation.
// MaxInterval is in seconds; zero means unbounded.
type StateSettings struct {
	Manager           string `yaml:"manager" json:"manager,omitempty"`
	Lock              bool   `yaml:"lock" json:"lock"`
	MaxInterval       int64  `yaml:"max_interval" json:"max_interval,omitempty"`
	FallbackStartTime *int64 `yaml:"fallback_start_time" json:"fallback_start_time,omitempty"`
}

// Operation returns the settings for op. Unconfigured operations are disabled.
func (s *Sync) Operation(op Operation) OperationSettings {
	if s.Operations == nil {
		return OperationSettings{}
	}
	return s.Operations[op]
}

// OperationEnabled reports whether op is enabled for this synchronization.
func (s *Sync) OperationEnabled(op Operation) bool {
	return s.Operation(op).Status
}

// FieldMapping is one local field to remote property correspondence.
type FieldMapping struct {
	MachineName string         `yaml:"machine_name" json:"machine_name"`
	RemoteName  string         `yaml:"remote_name" json:"remote_name"`
	Import      FieldDirection `yaml:"import" json:"import"`
	Export      FieldDirection `yaml:"export" json:"export"`
}

// FieldDirection holds per-direction field settings. A nil Status means
// enabled.
type FieldDirection struct {
	Status   *bool  `yaml:"status" json:"status,omitempty"`
	Callback string `yaml:"callback" json:"callback,omitempty"`
}

// Enabled reports whether the direction is enabled.
func (d FieldDirection) Enabled() bool {
	return d.Status == nil || *d.Status
}

// WithDefaults returns a copy of the mapping with unset direction statuses
// filled in as enabled and an unset remote name set to the machine name.
func (f FieldMapping) WithDefaults() FieldMapping {
	if f.RemoteName == "" {
		f.RemoteName = f.MachineName
	}
	enabled := true
	if f.Import.Status == nil {
		v := enabled
		f.Import.Status = &v
	}
	if f.Export.Status == nil {
		v := enabled
		f.Export.Status = &v
	}
	return f
}

// EntityMapping is the decision produced for one entity in one operation.
type EntityMapping struct {
	Action     Action         `json:"action"`
	ID         string         `json:"id,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	Bundle     string         `json:"bundle,omitempty"`
	Client     *ClientBinding `json:"client,omitempty"`
}

// IDString renders an identifier value taken from an opaque record.
// JSON numbers decode as float64 and are rendered without exponent.
func IDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case uint64:
		return strconv.FormatUint(id, 10)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(id), 'f', -1, 32)
	case interface{ String() string }:
		return id.String()
	}
	return fmt.Sprint(v)
}
