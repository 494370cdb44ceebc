// Package export renders closed retrospectives into their archive formats.
package export

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"retroboard/pkg/types"
)

// TimestampLayout is the ISO-8601 UTC layout with millisecond precision used
// in report headers.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// RenderCSV renders the session as the plain-text CSV report. Output depends
// only on the session, so the same session always renders the same bytes.
func RenderCSV(s *types.PublicSession) string {
	names := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		names = append(names, p.Name)
	}

	lines := []string{
		"=== Sprint Retrospective: " + s.SprintName + " ===",
		"=== Date: " + s.CreatedAt.UTC().Format(TimestampLayout) + " ===",
		"=== Participants: " + strings.Join(names, ", ") + " ===",
		"",
		"Section,Item,Author,Votes,VotedBy",
	}

	for _, category := range []types.Category{types.CategoryGood, types.CategoryImprove} {
		for _, item := range s.Items {
			if item.Category != category {
				continue
			}
			lines = append(lines, strings.Join([]string{
				category.SectionLabel(),
				quote(item.Text),
				quote(item.Author),
				strconv.Itoa(len(item.Votes)),
				quote(strings.Join(item.Votes, ", ")),
			}, ","))
		}
	}

	if len(s.BrainstormComments) > 0 {
		lines = append(lines, "", "=== Brainstorming Notes ===", "Item,Comment,Author")
		for _, c := range s.BrainstormComments {
			itemText := "Unknown"
			if item, ok := s.FindItem(c.ItemID); ok {
				itemText = item.Text
			}
			lines = append(lines, quote(itemText)+","+quote(c.Text)+","+quote(c.Author))
		}
	}

	if len(s.ActionPoints) > 0 {
		lines = append(lines, "", "=== Action Points ===", "Action,Assignee,CreatedBy")
		for _, ap := range s.ActionPoints {
			lines = append(lines, quote(ap.Text)+","+quote(ap.Assignee)+","+quote(ap.CreatedBy))
		}
	}

	return strings.Join(lines, "\n")
}

// quote wraps free text in double quotes, doubling embedded quotes.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SafeName folds accents and replaces every character outside [A-Za-z0-9_-]
// with an underscore, so sprint names can be used in file names.
func SafeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ArchiveBaseName returns the file stem of an archived session:
// retro-<id>-<safe sprint name>-<closing date>. Sessions that were never
// closed use their creation date.
func ArchiveBaseName(s *types.PublicSession) string {
	date := s.CreatedAt
	if s.ClosedAt != nil {
		date = *s.ClosedAt
	}
	return "retro-" + s.ID + "-" + SafeName(s.SprintName) + "-" + date.UTC().Format(time.DateOnly)
}

// DownloadName is the attachment file name offered for an export download.
func DownloadName(s *types.PublicSession) string {
	return "retro-" + SafeName(s.SprintName) + ".csv"
}
