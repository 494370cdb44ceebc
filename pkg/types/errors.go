package types

import "errors"

// Input validation errors shared by the HTTP boundary and the session manager.
var (
	ErrInvalidSprintName      = errors.New("sprint name must be 1-200 characters")
	ErrInvalidParticipantName = errors.New("participant name must be 1-50 characters")
	ErrInvalidCategory        = errors.New("category must be 'good' or 'improve'")
	ErrEmptyText              = errors.New("text cannot be empty")
	ErrInvalidTimerDuration   = errors.New("timer duration must be a positive number of seconds")
)
