package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"retroboard/internal/projection"
	"retroboard/pkg/types"
)

// commander is the part of client.Client the watch prompt drives
type commander interface {
	AddItem(text string, category types.Category) error
	Vote(itemID string) error
	Unvote(itemID string) error
	ChangePhase() error
	StartTimer(seconds int) error
	SelectBrainstormItems(itemIDs []string) error
	AddBrainstormComment(itemID, text string) error
	AddActionPoint(text, assignee, itemID string) error
	AssignActionPoint(actionPointID, assignee string) error
}

const helpText = `Commands:
  add good|improve <text>           submit an item
  vote <item> / unvote <item>       vote or withdraw a vote
  next                              advance the phase (admin)
  timer [seconds]                   start the countdown (admin)
  select <item>...                  pick items to brainstorm (admin)
  comment <item> <text>             add a brainstorm note
  action <text> [assignee] [item]   add an action point
  assign <action> <assignee>        reassign an action point
<item> and <action> are ids or the #N shown on the board.
`

var errUsage = errors.New("usage error, type help")

// runCommand parses one prompt line and sends the matching command
func runCommand(c commander, m projection.Mirror, line string, out io.Writer) error {
	args, err := shellwords.Parse(line)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if len(args) == 0 {
		return nil
	}
	name, args := args[0], args[1:]

	switch name {
	case "help":
		fmt.Fprint(out, helpText)
		return nil

	case "add":
		if len(args) < 2 {
			return errUsage
		}
		return c.AddItem(strings.Join(args[1:], " "), types.Category(args[0]))

	case "vote", "unvote":
		if len(args) != 1 {
			return errUsage
		}
		id, err := itemRef(m, args[0])
		if err != nil {
			return err
		}
		if name == "vote" {
			return c.Vote(id)
		}
		return c.Unvote(id)

	case "next":
		return c.ChangePhase()

	case "timer":
		seconds := 0
		if len(args) == 1 {
			if seconds, err = strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("invalid seconds %q", args[0])
			}
		} else if m.Session != nil {
			seconds = m.Session.TimerDuration
		}
		return c.StartTimer(seconds)

	case "select":
		ids := make([]string, 0, len(args))
		for _, ref := range args {
			id, err := itemRef(m, ref)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return c.SelectBrainstormItems(ids)

	case "comment":
		if len(args) < 2 {
			return errUsage
		}
		id, err := itemRef(m, args[0])
		if err != nil {
			return err
		}
		return c.AddBrainstormComment(id, strings.Join(args[1:], " "))

	case "action":
		if len(args) < 1 || len(args) > 3 {
			return errUsage
		}
		var assignee, itemID string
		if len(args) > 1 {
			assignee = args[1]
		}
		if len(args) > 2 {
			if itemID, err = itemRef(m, args[2]); err != nil {
				return err
			}
		}
		return c.AddActionPoint(args[0], assignee, itemID)

	case "assign":
		if len(args) != 2 {
			return errUsage
		}
		id, err := actionPointRef(m, args[0])
		if err != nil {
			return err
		}
		return c.AssignActionPoint(id, args[1])

	default:
		return fmt.Errorf("unknown command %q, type help", name)
	}
}

// itemRef resolves #N against the items currently on the board
func itemRef(m projection.Mirror, ref string) (string, error) {
	n, ok := boardIndex(ref)
	if !ok {
		return ref, nil
	}
	items := projection.SortedVisibleItems(m.Session)
	if n > len(items) {
		return "", fmt.Errorf("no item %s on the board", ref)
	}
	return items[n-1].ID, nil
}

func actionPointRef(m projection.Mirror, ref string) (string, error) {
	n, ok := boardIndex(ref)
	if !ok {
		return ref, nil
	}
	if m.Session == nil || n > len(m.Session.ActionPoints) {
		return "", fmt.Errorf("no action point %s", ref)
	}
	return m.Session.ActionPoints[n-1].ID, nil
}

func boardIndex(ref string) (int, bool) {
	if !strings.HasPrefix(ref, "#") {
		return 0, false
	}
	n, err := strconv.Atoi(ref[1:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
