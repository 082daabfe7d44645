package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/syncbridge/internal/types"
)

// Definitions serves synchronization definitions. Implemented by
// definition.Registry.
type Definitions interface {
	Get(id string) (*types.Sync, error)
	List() []*types.Sync
}

// Importer runs imports. Implemented by syncer.Importer.
type Importer interface {
	ImportRemoteList(ctx context.Context, syncID string, filters types.Filters, opts types.ImportListOptions) (*types.ImportListReport, error)
	ImportEntity(ctx context.Context, syncID, remoteID string) (*types.ImportResult, error)
}

// Exporter runs exports. Implemented by syncer.Exporter.
type Exporter interface {
	ExportLocalEntity(ctx context.Context, syncID string, local types.Entity, opts types.ExportOptions) (*types.ExportResult, error)
}

// EntityLoader loads local entities. Implemented by store.SQLiteStore.
type EntityLoader interface {
	Load(ctx context.Context, entityType, id string) (types.Entity, error)
}

// StateAdmin reads and resets operation state. Implemented by state.Manager.
type StateAdmin interface {
	State(ctx context.Context, syncID string, op types.Operation) (*types.OperationState, error)
	Unlock(ctx context.Context, syncID string, op types.Operation) error
	UnsetLastRun(ctx context.Context, syncID string, op types.Operation) error
	UnsetCurrentRun(ctx context.Context, syncID string, op types.Operation) error
}

// Services are the collaborators the handlers delegate to.
type Services struct {
	Definitions Definitions
	Importer    Importer
	Exporter    Exporter
	Entities    EntityLoader
	State       StateAdmin
}

// Handler implements the API handlers
type Handler struct {
	svc     Services
	apiKey  string
	version string
}

// NewHandler creates a new Handler.
func NewHandler(svc Services, apiKey, version string) *Handler {
	return &Handler{svc: svc, apiKey: apiKey, version: version}
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Syncs   int    `json:"syncs"`
}

// SyncSummary describes one definition in GET /api/v1/syncs.
type SyncSummary struct {
	ID         string            `json:"id"`
	Label      string            `json:"label,omitempty"`
	EntityType string            `json:"entity_type"`
	Bundle     string            `json:"bundle,omitempty"`
	Client     string            `json:"client"`
	Operations []types.Operation `json:"operations"`
}

// ImportListRequest is the body of POST /api/v1/syncs/{sync_id}/import.
type ImportListRequest struct {
	Filters types.Filters           `json:"filters"`
	Options types.ImportListOptions `json:"options"`
}

// ExportRequest is the optional body of POST /api/v1/syncs/{sync_id}/export/{entity_id}.
type ExportRequest struct {
	Context map[string]any `json:"context,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

// decodeOptional decodes a JSON body into v; an empty body leaves v as is.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Health handles GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Syncs:   len(h.svc.Definitions.List()),
	})
}

// ListSyncs handles GET /api/v1/syncs
func (h *Handler) ListSyncs(w http.ResponseWriter, r *http.Request) {
	syncs := h.svc.Definitions.List()
	out := make([]SyncSummary, 0, len(syncs))
	for _, s := range syncs {
		sum := SyncSummary{
			ID:         s.ID,
			Label:      s.Label,
			EntityType: s.LocalEntity.Type,
			Bundle:     s.LocalEntity.Bundle,
			Client:     s.RemoteResource.Client.Type,
			Operations: []types.Operation{},
		}
		for _, op := range types.Operations {
			if s.OperationEnabled(op) {
				sum.Operations = append(sum.Operations, op)
			}
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

// ImportList handles POST /api/v1/syncs/{sync_id}/import
func (h *Handler) ImportList(w http.ResponseWriter, r *http.Request) {
	syncID := chi.URLParam(r, "sync_id")

	var req ImportListRequest
	if err := decodeOptional(r, &req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	report, err := h.svc.Importer.ImportRemoteList(r.Context(), syncID, req.Filters, req.Options)
	if err != nil {
		slog.Error("import list failed",
			"component", "api",
			"action", "import_list",
			"sync_id", syncID,
			"error", err,
		)
		MapSyncError(w, r, err)
		return
	}
	if report.Cancelled {
		WriteProblem(w, r, http.StatusConflict, report.CancelMessage)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ImportEntity handles POST /api/v1/syncs/{sync_id}/import/{remote_id}
func (h *Handler) ImportEntity(w http.ResponseWriter, r *http.Request) {
	syncID := chi.URLParam(r, "sync_id")
	remoteID := chi.URLParam(r, "remote_id")

	res, err := h.svc.Importer.ImportEntity(r.Context(), syncID, remoteID)
	if err != nil {
		slog.Error("import entity failed",
			"component", "api",
			"action", "import_entity",
			"sync_id", syncID,
			"remote_id", remoteID,
			"error", err,
		)
		MapSyncError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export handles POST /api/v1/syncs/{sync_id}/export/{entity_id}
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	syncID := chi.URLParam(r, "sync_id")
	entityID := chi.URLParam(r, "entity_id")

	var req ExportRequest
	if err := decodeOptional(r, &req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	s, err := h.svc.Definitions.Get(syncID)
	if err != nil {
		MapSyncError(w, r, err)
		return
	}
	local, err := h.svc.Entities.Load(ctx, s.LocalEntity.Type, entityID)
	if err != nil {
		MapSyncError(w, r, err)
		return
	}

	res, err := h.svc.Exporter.ExportLocalEntity(ctx, syncID, local, types.ExportOptions{Context: req.Context})
	if err != nil {
		slog.Error("export failed",
			"component", "api",
			"action", "export_entity",
			"sync_id", syncID,
			"entity_id", entityID,
			"error", err,
		)
		MapSyncError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// operationParam validates the {operation} URL parameter of a known sync.
func (h *Handler) operationParam(w http.ResponseWriter, r *http.Request) (string, types.Operation, bool) {
	syncID := chi.URLParam(r, "sync_id")
	op := types.Operation(chi.URLParam(r, "operation"))
	if _, err := h.svc.Definitions.Get(syncID); err != nil {
		MapSyncError(w, r, err)
		return "", "", false
	}
	if !op.Valid() {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown operation %q", op))
		return "", "", false
	}
	return syncID, op, true
}

// GetState handles GET /api/v1/syncs/{sync_id}/state/{operation}
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	syncID, op, ok := h.operationParam(w, r)
	if !ok {
		return
	}
	st, err := h.svc.State.State(r.Context(), syncID, op)
	if err != nil {
		MapSyncError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Unlock handles DELETE /api/v1/syncs/{sync_id}/state/{operation}/lock
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	syncID, op, ok := h.operationParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.State.Unlock(r.Context(), syncID, op); err != nil {
		MapSyncError(w, r, err)
		return
	}
	slog.Info("operation unlocked",
		"component", "api",
		"action", "unlock",
		"sync_id", syncID,
		"operation", op,
	)
	w.WriteHeader(http.StatusNoContent)
}

// ResetRuns handles DELETE /api/v1/syncs/{sync_id}/state/{operation}/last-run
// The next managed run starts again from the fallback start time.
func (h *Handler) ResetRuns(w http.ResponseWriter, r *http.Request) {
	syncID, op, ok := h.operationParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.svc.State.UnsetLastRun(ctx, syncID, op); err != nil {
		MapSyncError(w, r, err)
		return
	}
	if err := h.svc.State.UnsetCurrentRun(ctx, syncID, op); err != nil {
		MapSyncError(w, r, err)
		return
	}
	slog.Info("operation runs reset",
		"component", "api",
		"action", "reset",
		"sync_id", syncID,
		"operation", op,
	)
	w.WriteHeader(http.StatusNoContent)
}
