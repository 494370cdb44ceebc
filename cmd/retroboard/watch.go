package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"retroboard/internal/client"
	"retroboard/internal/projection"
	"retroboard/pkg/types"
)

// watch joins a retro and renders the mirror after every event until ctx
// ends or the server goes away. Lines read from in are run as commands.
func watch(ctx context.Context, in io.Reader, out io.Writer, server, retroID, name, adminToken string) error {
	updates := make(chan projection.Mirror, 16)
	c := client.New(server, client.WithEventHook(func(m projection.Mirror, env *types.Envelope) {
		select {
		case updates <- m:
		default:
		}
	}))

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	if err := c.Join(retroID, name, adminToken); err != nil {
		return err
	}

	lines := make(chan string)
	go readLines(ctx, in, lines)

	for {
		select {
		case m := <-updates:
			if m.Error != "" && m.Session == nil {
				return fmt.Errorf("join failed: %s", m.Error)
			}
			render(out, m, time.Now())
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := runCommand(c, c.Mirror(), line, out); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
		case <-c.Done():
			return fmt.Errorf("connection closed")
		case <-ctx.Done():
			return nil
		}
	}
}

// readLines forwards non-empty lines until in is exhausted, then closes lines
func readLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return
		}
	}
}

// render prints a plain-text view of the board. Visible items and action
// points are numbered for use as #N in commands.
func render(out io.Writer, m projection.Mirror, now time.Time) {
	s := m.Session
	if s == nil {
		return
	}

	fmt.Fprintf(out, "\n== %s - %s ==\n", s.SprintName, s.Phase.Label())
	if timer := projection.TimerDisplay(s.TimerEndsAt, now); timer != "" {
		fmt.Fprintf(out, "Timer: %s\n", timer)
	}

	names := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.IsAdmin {
			names = append(names, p.Name+" (admin)")
		} else {
			names = append(names, p.Name)
		}
	}
	fmt.Fprintf(out, "Participants: %s\n", strings.Join(names, ", "))

	for i, item := range projection.SortedVisibleItems(s) {
		fmt.Fprintf(out, "  #%d [%s] %s (%s) %d votes\n", i+1, item.Category, item.Text, item.Author, len(item.Votes))
		for _, c := range projection.CommentsForItem(s, item.ID) {
			fmt.Fprintf(out, "      > %s (%s)\n", c.Text, c.Author)
		}
	}

	if len(s.ActionPoints) > 0 {
		fmt.Fprintln(out, "Action points:")
		for i, ap := range s.ActionPoints {
			fmt.Fprintf(out, "  #%d %s -> %s\n", i+1, ap.Text, ap.Assignee)
		}
	}

	if m.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", m.Error)
	}
	if next := s.Phase.NextLabel(); next != "" {
		fmt.Fprintf(out, "Next: %s\n", next)
	}
}
