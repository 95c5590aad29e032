package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrConfigDisabled      = errors.New("automation config is disabled")
	ErrTargetEntityMissing = errors.New("target entity no longer exists")
	ErrSuggestionPending   = errors.New("a suggested query is already pending")
	ErrRunInProgress       = errors.New("a run is already in progress for this config")
)
