package projection

import (
	"fmt"
	"sort"
	"time"

	"retroboard/pkg/types"
)

// SortedByVotes returns a copy of items ordered by vote count, most first.
// Items with equal votes keep their submission order.
func SortedByVotes(items []types.RetroItem) []types.RetroItem {
	sorted := append([]types.RetroItem{}, items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Votes) > len(sorted[j].Votes)
	})
	return sorted
}

// VisibleItems returns the items shown in the current phase: one category
// while it is collected and voted on, the selection while brainstorming,
// everything otherwise.
func VisibleItems(s *types.PublicSession) []types.RetroItem {
	if s == nil {
		return nil
	}
	switch s.Phase {
	case types.PhaseGoodItems, types.PhaseGoodVoting:
		return byCategory(s.Items, types.CategoryGood)
	case types.PhaseImproveItems, types.PhaseImproveVoting:
		return byCategory(s.Items, types.CategoryImprove)
	case types.PhaseBrainstorming:
		return BrainstormItems(s)
	default:
		return append([]types.RetroItem{}, s.Items...)
	}
}

// SortedVisibleItems is VisibleItems ranked by votes once voting has started
// on them (voting phases, brainstorming and closed).
func SortedVisibleItems(s *types.PublicSession) []types.RetroItem {
	visible := VisibleItems(s)
	if s == nil {
		return visible
	}
	if s.Phase.IsVoting() || s.Phase == types.PhaseBrainstorming || s.Phase == types.PhaseClosed {
		return SortedByVotes(visible)
	}
	return visible
}

// GoodItems returns the good items ranked by votes
func GoodItems(s *types.PublicSession) []types.RetroItem {
	if s == nil {
		return nil
	}
	return SortedByVotes(byCategory(s.Items, types.CategoryGood))
}

// ImproveItems returns the improve items ranked by votes
func ImproveItems(s *types.PublicSession) []types.RetroItem {
	if s == nil {
		return nil
	}
	return SortedByVotes(byCategory(s.Items, types.CategoryImprove))
}

// BrainstormItems returns the selected items in submission order
func BrainstormItems(s *types.PublicSession) []types.RetroItem {
	if s == nil {
		return nil
	}
	selected := make(map[string]bool, len(s.BrainstormItemIDs))
	for _, id := range s.BrainstormItemIDs {
		selected[id] = true
	}
	var items []types.RetroItem
	for _, item := range s.Items {
		if selected[item.ID] {
			items = append(items, item)
		}
	}
	return items
}

// ActionPointsForItem returns the action points linked to itemID
func ActionPointsForItem(s *types.PublicSession, itemID string) []types.ActionPoint {
	if s == nil {
		return nil
	}
	var points []types.ActionPoint
	for _, ap := range s.ActionPoints {
		if ap.ItemID == itemID {
			points = append(points, ap)
		}
	}
	return points
}

// CommentsForItem returns the brainstorm comments attached to itemID
func CommentsForItem(s *types.PublicSession, itemID string) []types.BrainstormComment {
	if s == nil {
		return nil
	}
	var comments []types.BrainstormComment
	for _, c := range s.BrainstormComments {
		if c.ItemID == itemID {
			comments = append(comments, c)
		}
	}
	return comments
}

// HasVoted reports whether name voted for item
func HasVoted(item types.RetroItem, name string) bool {
	return item.HasVote(name)
}

// TimerDisplay renders the countdown to endsAt as m:ss. It returns "" when
// no timer is set and "Time is up!" once it has run out.
func TimerDisplay(endsAt *time.Time, now time.Time) string {
	if endsAt == nil {
		return ""
	}
	remaining := endsAt.Sub(now)
	if remaining <= 0 {
		return "Time is up!"
	}
	minutes := int(remaining / time.Minute)
	seconds := int((remaining % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func byCategory(items []types.RetroItem, category types.Category) []types.RetroItem {
	var out []types.RetroItem
	for _, item := range items {
		if item.Category == category {
			out = append(out, item)
		}
	}
	return out
}
