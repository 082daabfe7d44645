// Package remote defines the remote client capability used by the sync
// core, the paginated list iterator, and the resolver that binds a
// synchronization to its client backend.
package remote

import (
	"context"
	"errors"

	"github.com/hyperengineering/syncbridge/internal/types"
)

var (
	// ErrNotFound is returned by Get for a remote ID that does not exist.
	ErrNotFound = errors.New("remote entity not found")

	// ErrInvalidPage is returned by Move for a page outside the list.
	ErrInvalidPage = errors.New("invalid page")

	// ErrNoClientBinding means the synchronization declares no remote client.
	ErrNoClientBinding = errors.New("no remote client binding")

	// ErrUnsupportedClient means the binding type has no registered backend.
	ErrUnsupportedClient = errors.New("unsupported remote client type")

	// ErrInvalidClient means the bound object is not a usable remote client.
	ErrInvalidClient = errors.New("invalid remote client")

	// ErrRemote wraps transport and non-success responses of a backend.
	ErrRemote = errors.New("remote request failed")
)

// Item is one remote entity: a bag of named properties.
type Item = map[string]any

// ListOptions are passed to Client.List.
type ListOptions struct {
	// Limit is the page size hint. Zero lets the backend decide.
	Limit int

	// Page selects a single page (1-based) when Paginate is false.
	// Zero means the backend's first page.
	Page int

	// Paginate asks for an iterator that fetches pages on demand. Backends
	// that do not support paging ignore it.
	Paginate bool

	// Parameters are backend-specific and passed through untouched.
	Parameters map[string]any
}

// Client is the capability every remote backend provides.
type Client interface {
	// List returns the remote entities matching filters. A nil iterator
	// means there is nothing to list.
	List(ctx context.Context, filters types.Filters, opts ListOptions) (Iterator, error)

	// Get returns one remote entity, or ErrNotFound.
	Get(ctx context.Context, id string) (Item, error)

	// Create creates a remote entity and returns it as stored remotely.
	Create(ctx context.Context, fields map[string]any) (Item, error)

	// Update changes a remote entity and returns it as stored remotely.
	Update(ctx context.Context, id string, fields map[string]any) (Item, error)

	SupportsPaging() bool
}
