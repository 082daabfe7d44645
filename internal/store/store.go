package store

import (
	"context"

	"github.com/hyperengineering/syncbridge/internal/types"
)

// EntityStore is the local persistence contract used by the sync core.
type EntityStore interface {
	// Load returns the entity with the given ID, or ErrNotFound.
	Load(ctx context.Context, entityType, id string) (types.Entity, error)

	// QueryByField returns the IDs of entities whose field contains value,
	// in ascending ID order. An empty bundle matches every bundle.
	QueryByField(ctx context.Context, entityType, bundle, field string, value any) ([]string, error)

	// Create returns a new unsaved entity.
	Create(ctx context.Context, entityType, bundle string) (types.Entity, error)

	// Save persists the entity, assigning an ID to new entities.
	Save(ctx context.Context, entity types.Entity) error

	// HasBundles reports whether the entity type is sub-typed by bundle.
	HasBundles(entityType string) bool
}

// StateStore is a durable key-value store partitioned by collection.
type StateStore interface {
	GetState(ctx context.Context, collection, key string) (string, bool, error)
	SetState(ctx context.Context, collection, key, value string) error
	DeleteState(ctx context.Context, collection, key string) error

	// InsertStateIfAbsent writes value only if key is not set. It reports
	// whether the write happened and is atomic with respect to other callers.
	InsertStateIfAbsent(ctx context.Context, collection, key, value string) (bool, error)
}
