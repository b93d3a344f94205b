package domain

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrMissingRoomKey = errors.New("missing room key")
	ErrConflict       = errors.New("conflict")
)
