package store

import "errors"

var (
	// ErrParentNotFound is returned when the parent node doesn't exist or is deleted.
	ErrParentNotFound = errors.New("canopy: parent node not found")

	// ErrNotFound is returned when a node doesn't exist or is deleted.
	ErrNotFound = errors.New("canopy: node not found")

	// ErrAlreadyExists is returned when creating a node with an existing ID.
	ErrAlreadyExists = errors.New("canopy: node already exists")

	// ErrHasChildren is returned when deleting a node that still has active children.
	ErrHasChildren = errors.New("canopy: node has active children")

	// ErrConcurrentModification is returned when the version check fails.
	ErrConcurrentModification = errors.New("canopy: node was modified concurrently")

	// ErrDuplicateValue is returned when a sibling already holds a unique value.
	ErrDuplicateValue = errors.New("canopy: duplicate value for unique field")

	// ErrUnknownKind is returned when no kind is registered under a name.
	ErrUnknownKind = errors.New("canopy: unknown node kind")
)
