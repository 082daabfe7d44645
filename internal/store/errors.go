package store

import "errors"

var (
	ErrNotFound          = errors.New("entity not found")
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrUnknownBundle     = errors.New("unknown bundle")
	ErrBundleRequired    = errors.New("bundle required")
	ErrUnknownField      = errors.New("unknown field")
	ErrCardinality       = errors.New("too many values for single-valued field")
	ErrForeignEntity     = errors.New("entity was not created by this store")
)
