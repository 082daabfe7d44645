package types

// Run records one managed run. Times are Unix seconds.
type Run struct {
	RunTime   int64  `json:"run_time"`
	StartTime *int64 `json:"start_time,omitempty"`
	EndTime   *int64 `json:"end_time,omitempty"`
}

// OperationState is the persisted state of one (sync, operation) pair.
type OperationState struct {
	SyncID     string    `json:"sync_id"`
	Operation  Operation `json:"operation"`
	Managed    bool      `json:"managed"`
	LastRun    *Run      `json:"last_run,omitempty"`
	CurrentRun *Run      `json:"current_run,omitempty"`
	Locked     bool      `json:"locked"`
}

// Filters restrict which remote entities a list call returns.
type Filters struct {
	ChangedStart *int64         `json:"changed_start,omitempty"`
	ChangedEnd   *int64         `json:"changed_end,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// ImportListOptions are the options of a list import.
type ImportListOptions struct {
	// Limit is a page size hint passed to the remote client.
	Limit int `json:"limit,omitempty"`

	// ClientParameters are passed through to the remote client untouched.
	ClientParameters map[string]any `json:"client_parameters,omitempty"`

	// Context is handed to lifecycle handlers.
	Context map[string]any `json:"context,omitempty"`
}

// ExportOptions are the options of a local entity export.
type ExportOptions struct {
	Context map[string]any `json:"context,omitempty"`
}

// ImportListReport summarizes a list import.
type ImportListReport struct {
	SyncID        string  `json:"sync_id"`
	Filters       Filters `json:"filters"`
	Processed     int     `json:"processed"`
	Created       int     `json:"created"`
	Updated       int     `json:"updated"`
	Skipped       int     `json:"skipped"`
	Failed        int     `json:"failed"`
	Cancelled     bool    `json:"cancelled"`
	CancelMessage string  `json:"cancel_message,omitempty"`
}

// ImportResult is the outcome of importing one remote entity.
type ImportResult struct {
	Action  Action `json:"action"`
	LocalID string `json:"local_id,omitempty"`
}

// ExportResult is the outcome of exporting one local entity.
type ExportResult struct {
	Action   Action         `json:"action"`
	RemoteID string         `json:"remote_id,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
