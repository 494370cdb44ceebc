package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"retroboard/internal/app"
	"retroboard/internal/config"
	"retroboard/internal/projection"
	"retroboard/pkg/types"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Storage.Backend = config.BackendMemory

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(context.Background()) })
	return "http://" + application.GetAddr()
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "create", "watch"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("Missing subcommand %s", name)
		}
	}
}

func TestServeCmd_InvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retroboard.json")
	if err := os.WriteFile(path, []byte(`{"storage": {"backend": "tape"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--config", path})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	if err := root.Execute(); err == nil {
		t.Error("serve should fail with an unknown backend")
	}
}

func TestServeCmd_EnvFile(t *testing.T) {
	t.Cleanup(func() { os.Unsetenv("RETROBOARD_STORAGE_BACKEND") })
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("RETROBOARD_STORAGE_BACKEND=tape\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--env-file", path})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "tape") {
		t.Errorf("Expected the env file backend to be rejected, got %v", err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"serve", "--env-file", filepath.Join(t.TempDir(), "missing.env")})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Error("Expected error for a missing env file")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Storage.Backend = config.BackendMemory

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestCreateCmd(t *testing.T) {
	server := startTestServer(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"create", "--server", server, "Sprint", "12"})
	root.SetOut(&out)

	if err := root.Execute(); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.Contains(out.String(), "retro id:") || !strings.Contains(out.String(), "admin token:") {
		t.Errorf("Unexpected output %q", out.String())
	}
}

// syncBuffer lets the test read output written by the watch goroutine
type syncBuffer struct {
	ch chan string
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.ch <- string(p)
	return len(p), nil
}

func TestWatch_RendersBoard(t *testing.T) {
	server := startTestServer(t)

	var created bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"create", "--server", server, "Sprint 12"})
	root.SetOut(&created)
	if err := root.Execute(); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	retroID := strings.TrimSpace(strings.TrimPrefix(strings.Split(created.String(), "\n")[0], "retro id:"))

	out := &syncBuffer{ch: make(chan string, 256)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watch(ctx, strings.NewReader(""), out, server, retroID, "Alice", "") }()

	deadline := time.After(5 * time.Second)
	var seen strings.Builder
	for !strings.Contains(seen.String(), "Participants: Alice") {
		select {
		case s := <-out.ch:
			seen.WriteString(s)
		case <-deadline:
			t.Fatalf("Board never rendered, got %q", seen.String())
		}
	}

	cancel()
	go func() {
		for range out.ch {
		}
	}()
	if err := <-done; err != nil {
		t.Errorf("watch returned %v", err)
	}
}

func TestWatch_UnknownRetro(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := watch(ctx, strings.NewReader(""), &bytes.Buffer{}, server, "nope1234", "Alice", "")
	if err == nil || !strings.Contains(err.Error(), "Retro not found") {
		t.Errorf("Expected join failure, got %v", err)
	}
}

func TestRender(t *testing.T) {
	ends := time.Date(2026, 10, 19, 10, 1, 30, 0, time.UTC)
	m := projection.Mirror{Session: &types.PublicSession{
		SprintName:   "Sprint 12",
		Phase:        types.PhaseGoodVoting,
		Participants: []types.Participant{{Name: "Alice", IsAdmin: true}, {Name: "Bob"}},
		Items: []types.RetroItem{
			{ID: "i1", Text: "Ship faster", Author: "Bob", Category: types.CategoryGood, Votes: []string{"Alice"}},
		},
		TimerEndsAt: &ends,
	}}

	var out bytes.Buffer
	render(&out, m, ends.Add(-90*time.Second))

	for _, want := range []string{
		"== Sprint 12 - Vote: What Went Well ==",
		"Timer: 1:30",
		"Participants: Alice (admin), Bob",
		"#1 [good] Ship faster (Bob) 1 votes",
		"Next: Start: What Could Be Better",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Render missing %q:\n%s", want, out.String())
		}
	}
}
