package ids

import "github.com/google/uuid"

// ShortIDLength is the length of session and entity ids.
const ShortIDLength = 8

//go:generate mockgen -package=mocks -destination=mocks/mock_generator.go retroboard/internal/ids Generator

// Generator produces entity ids and bearer secrets
type Generator interface {
	// NewID returns a short id for sessions, items, comments and action points
	NewID() string
	// NewSecret returns an unguessable token
	NewSecret() string
}

// DefaultGenerator implements the Generator interface using random UUIDs
type DefaultGenerator struct{}

func New() *DefaultGenerator {
	return &DefaultGenerator{}
}

// NewID returns the first 8 hex characters of a random UUID
func (d *DefaultGenerator) NewID() string {
	return uuid.New().String()[:ShortIDLength]
}

// NewSecret returns a full random UUID
func (d *DefaultGenerator) NewSecret() string {
	return uuid.New().String()
}
