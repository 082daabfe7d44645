package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/syncbridge/internal/definition"
	"github.com/hyperengineering/syncbridge/internal/managed"
	"github.com/hyperengineering/syncbridge/internal/mapping"
	"github.com/hyperengineering/syncbridge/internal/remote"
	"github.com/hyperengineering/syncbridge/internal/store"
	"github.com/hyperengineering/syncbridge/internal/syncer"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusUnauthorized: {
		typeURI: "https://syncbridge.dev/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://syncbridge.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://syncbridge.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusInternalServerError: {
		typeURI: "https://syncbridge.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://syncbridge.dev/errors/configuration-error",
		title:   "Configuration Error",
	},
	http.StatusBadGateway: {
		typeURI: "https://syncbridge.dev/errors/remote-error",
		title:   "Remote Error",
	},
	http.StatusConflict: {
		typeURI: "https://syncbridge.dev/errors/conflict",
		title:   "Conflict",
	},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt = struct {
			typeURI string
			title   string
		}{
			typeURI: "https://syncbridge.dev/errors/unknown",
			title:   http.StatusText(status),
		}
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// FieldError names the field a mapping failure occurred on.
type FieldError struct {
	Field   string `json:"field"`
	Remote  string `json:"remote,omitempty"`
	Message string `json:"message"`
}

// ProblemWithErrors extends Problem with field mapping error details.
type ProblemWithErrors struct {
	Problem
	Errors []FieldError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []FieldError) {
	pt := problemTypes[http.StatusUnprocessableEntity]

	p := ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// isConfigError reports whether err is a configuration or programming error
// the caller can only fix by changing a definition or the deployment.
func isConfigError(err error) bool {
	for _, target := range []error{
		definition.ErrInvalidDefinition,
		syncer.ErrOperationDisabled,
		syncer.ErrUnsupportedAction,
		managed.ErrMissingFallbackStart,
		remote.ErrNoClientBinding,
		remote.ErrUnsupportedClient,
		remote.ErrInvalidClient,
		mapping.ErrUnknownTransform,
		store.ErrUnknownEntityType,
		store.ErrBundleRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// MapSyncError converts domain errors to Problem Details responses.
func MapSyncError(w http.ResponseWriter, r *http.Request, err error) {
	var exportErr *mapping.FieldExportError
	var importErr *mapping.FieldImportError

	switch {
	case errors.Is(err, definition.ErrUnknownSync):
		WriteProblem(w, r, http.StatusNotFound, "Synchronization not found")
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Local entity not found")
	case errors.Is(err, remote.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Remote entity not found")
	case errors.Is(err, syncer.ErrCancelled):
		WriteProblem(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &exportErr):
		WriteProblemWithErrors(w, r, "Field mapping failed", []FieldError{{
			Field:   exportErr.Field.MachineName,
			Remote:  exportErr.RemoteName,
			Message: exportErr.Err.Error(),
		}})
	case errors.As(err, &importErr):
		field := importErr.Field.MachineName
		if importErr.SyncField != "" {
			field = importErr.SyncField
		}
		WriteProblemWithErrors(w, r, "Field mapping failed", []FieldError{{
			Field:   field,
			Remote:  importErr.Field.RemoteName,
			Message: importErr.Err.Error(),
		}})
	case isConfigError(err):
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, remote.ErrRemote):
		WriteProblem(w, r, http.StatusBadGateway, "Remote request failed")
	default:
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
