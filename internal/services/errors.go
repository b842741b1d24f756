package services

import "errors"

// Validation errors surfaced to the caller as 4xx responses. They are
// never retried.
var (
	ErrInvalidHabitID    = errors.New("habit_id must be a positive identifier")
	ErrMissingEventType  = errors.New("event_type is required")
	ErrNameRequired      = errors.New("name is required")
	ErrDuplicateName     = errors.New("a habit with this name already exists")
	ErrNoUpdatableFields = errors.New("no updatable fields provided")
)

// ErrSearchUnavailable is returned when the search index integration is
// disabled. Mapped to 503 rather than 4xx: the request is fine, the
// deployment just does not carry the index.
var ErrSearchUnavailable = errors.New("event search is unavailable")
