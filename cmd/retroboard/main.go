package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"retroboard/internal/app"
	"retroboard/internal/client"
	"retroboard/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "retroboard",
		Short:        "Real-time sprint retrospective board",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(), newCreateCmd(), newWatchCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath, envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the retro server",
		Long: `Run the HTTP API and event stream.

Configuration precedence is file > RETROBOARD_* environment > defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				// Variables already set in the environment win over the file
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("failed to load env file %s: %w", envFile, err)
				}
			}
			if configPath == "" {
				configPath = os.Getenv("RETROBOARD_CONFIG_FILE")
			}
			cfg, err := config.LoadConfigWithPrecedence(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (JSON or YAML)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file with RETROBOARD_* variables")
	return cmd
}

// serve runs the application until ctx is cancelled
func serve(ctx context.Context, cfg *config.Config) error {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	<-ctx.Done()
	log.Printf("Shutdown requested, stopping gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return application.Stop(shutdownCtx)
}

func newCreateCmd() *cobra.Command {
	var server string
	var timer int

	cmd := &cobra.Command{
		Use:   "create <sprint name>",
		Short: "Create a retro and print its id and admin token",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := client.NewAPI(server).CreateRetro(cmd.Context(), strings.Join(args, " "), timer)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retro id:    %s\nadmin token: %s\n", creds.RetroID, creds.AdminToken)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:3001", "server base URL")
	cmd.Flags().IntVar(&timer, "timer", 0, "default timer in seconds (0 uses the server default)")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var server, retroID, name, adminToken string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a retro, print the board as it changes and read commands from stdin",
		Long: `Join a retro and print the board after every change.

Lines typed on stdin are sent as commands (type "help" for the list).
Items and action points can be referenced by the #N shown on the board.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), server, retroID, name, adminToken)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:3001", "server base URL")
	cmd.Flags().StringVar(&retroID, "retro", "", "retro id")
	cmd.Flags().StringVar(&name, "name", "", "participant name")
	cmd.Flags().StringVar(&adminToken, "admin-token", "", "admin token, if you created the retro")
	_ = cmd.MarkFlagRequired("retro")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
