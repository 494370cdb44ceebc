// Package storage implements the file, redis and in-memory session stores.
package storage

import (
	"retroboard/internal/export"
	"retroboard/pkg/types"
)

// summaryOf builds the archive listing entry for a session. The listed date
// is the session's creation time.
func summaryOf(s *types.Session, file string) types.ArchiveSummary {
	return types.ArchiveSummary{
		ID:         s.ID,
		SprintName: s.SprintName,
		Date:       s.CreatedAt.UTC().Format(export.TimestampLayout),
		File:       file,
	}
}
