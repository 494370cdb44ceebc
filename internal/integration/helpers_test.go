package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"retroboard/internal/app"
	"retroboard/internal/client"
	"retroboard/internal/config"
	"retroboard/pkg/types"
)

const eventTimeout = 2 * time.Second

// startServer runs a full application on an ephemeral port
func startServer(t *testing.T, mutate func(c *config.Config)) (*app.Application, string) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Storage.Backend = config.BackendMemory
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})

	return application, "http://" + application.GetAddr()
}

func sqliteConfig(path string) func(c *config.Config) {
	return func(c *config.Config) {
		c.Storage.Backend = config.BackendSQLite
		c.Storage.SQLitePath = path
	}
}

func fileConfig(dir string) func(c *config.Config) {
	return func(c *config.Config) {
		c.Storage.Backend = config.BackendFile
		c.Storage.DataDir = filepath.Join(dir, "data")
	}
}

// joinClient connects a participant and waits for its initial state
func joinClient(t *testing.T, baseURL, retroID, name, adminToken string) *client.Client {
	t.Helper()

	c := client.New(baseURL)
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("%s failed to connect: %v", name, err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Join(retroID, name, adminToken); err != nil {
		t.Fatalf("%s failed to join: %v", name, err)
	}
	if _, err := c.WaitFor(types.EventState, eventTimeout); err != nil {
		t.Fatalf("%s never received state: %v", name, err)
	}
	return c
}

func expectEvent(t *testing.T, c *client.Client, eventType string) *types.Envelope {
	t.Helper()
	env, err := c.WaitFor(eventType, eventTimeout)
	if err != nil {
		t.Fatalf("Expected %s: %v", eventType, err)
	}
	return env
}

func expectError(t *testing.T, c *client.Client) string {
	t.Helper()
	var payload types.ErrorPayload
	if err := expectEvent(t, c, types.EventError).Decode(&payload); err != nil {
		t.Fatalf("Invalid error payload: %v", err)
	}
	return payload.Message
}

// advance moves the retro one phase forward and waits until both clients saw it
func advance(t *testing.T, admin *client.Client, others ...*client.Client) types.Phase {
	t.Helper()
	if err := admin.ChangePhase(); err != nil {
		t.Fatalf("ChangePhase failed: %v", err)
	}
	var payload types.PhaseChangedPayload
	if err := expectEvent(t, admin, types.EventPhaseChanged).Decode(&payload); err != nil {
		t.Fatalf("Invalid phase payload: %v", err)
	}
	for _, c := range others {
		expectEvent(t, c, types.EventPhaseChanged)
	}
	return payload.Phase
}
