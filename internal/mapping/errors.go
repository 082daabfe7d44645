package mapping

import (
	"errors"
	"fmt"

	"github.com/hyperengineering/syncbridge/internal/types"
)

var (
	// ErrUnknownLocalField means a mapping names a field the local entity
	// does not have.
	ErrUnknownLocalField = errors.New("local field does not exist")

	// ErrMissingRemoteField means a required remote property is absent.
	ErrMissingRemoteField = errors.New("remote property is missing")

	// ErrFieldFormat means a remote value does not have the configured format.
	ErrFieldFormat = errors.New("invalid field format")

	// ErrUnknownTransform means a mapping references an unregistered transform.
	ErrUnknownTransform = errors.New("unknown transform")
)

// Sync field tags on FieldImportError.
const (
	SyncFieldRemoteID      = "remote_id"
	SyncFieldRemoteChanged = "remote_changed"
)

// FieldExportError wraps a failure exporting one field.
type FieldExportError struct {
	LocalEntity  string
	RemoteEntity string
	Field        types.FieldMapping
	RemoteName   string
	Err          error
}

func (e *FieldExportError) Error() string {
	return fmt.Sprintf("exporting field %q of %s to %q of remote %s: %v",
		e.Field.MachineName, e.LocalEntity, e.RemoteName, e.RemoteEntity, e.Err)
}

func (e *FieldExportError) Unwrap() error {
	return e.Err
}

// FieldImportError wraps a failure importing one field. SyncField is set
// when the failure concerns a mandatory sync field rather than a mapped one.
type FieldImportError struct {
	RemoteID    string
	LocalEntity string
	Field       types.FieldMapping
	SyncField   string
	Err         error
}

func (e *FieldImportError) Error() string {
	remote := e.RemoteID
	if remote == "" {
		remote = "unknown"
	}
	if e.SyncField != "" {
		return fmt.Sprintf("importing %s sync field of remote %s into %s: %v",
			e.SyncField, remote, e.LocalEntity, e.Err)
	}
	return fmt.Sprintf("importing %q of remote %s into field %q of %s: %v",
		e.Field.RemoteName, remote, e.Field.MachineName, e.LocalEntity, e.Err)
}

func (e *FieldImportError) Unwrap() error {
	return e.Err
}
