package relationships

import "errors"

var (
	// ErrUnknownRelationship is returned when a relationship is not found
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrInvalidRelationType is returned when an operation does not apply to the relationship type
	ErrInvalidRelationType = errors.New("invalid relationship type")

	// ErrInvalidOperation is returned for an unknown many-to-many operation
	ErrInvalidOperation = errors.New("invalid many-to-many operation")
)
