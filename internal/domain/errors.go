package domain

import "errors"

var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrMissingArtifact = errors.New("missing upstream artifact")
	ErrPollTimeout     = errors.New("completion poll timed out")
)
