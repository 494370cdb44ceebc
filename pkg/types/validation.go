package types

import (
	"strings"
	"unicode/utf8"
)

// ValidateSprintName checks the 1-200 character limit on sprint names.
func ValidateSprintName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 1 || n > 200 {
		return ErrInvalidSprintName
	}
	return nil
}

// ValidateParticipantName checks the 1-50 character limit on names.
// Names are compared case-sensitively and are not trimmed.
func ValidateParticipantName(name string) error {
	if strings.TrimSpace(name) == "" || utf8.RuneCountInString(name) > 50 {
		return ErrInvalidParticipantName
	}
	return nil
}

// ValidateText rejects blank free text.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}

// IsValidCategory checks if the category is one of the two item columns.
func IsValidCategory(c Category) bool {
	switch c {
	case CategoryGood, CategoryImprove:
		return true
	default:
		return false
	}
}

// IsValidPhase checks if p is a known phase.
func IsValidPhase(p Phase) bool {
	return p.Index() >= 0
}
