package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/course-assistant-backend/internal/app"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

var log *logger.Logger

var rootCmd = &cobra.Command{
	Use:   "course-assistant",
	Short: "Course knowledge base and AI assistant backend",
	Long: `Serves the course knowledge base: a live-synchronised list of courses,
the selection used as chat context, and the Gemini-backed assistant.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		mode := os.Getenv("LOG_MODE")
		if mode == "" {
			mode = "development"
		}
		l, err := logger.New(mode)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		log = l
		return app.LoadEnvFiles(log)
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the knowledge_bases table and its change trigger",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer log.Sync()
		return app.Migrate(log, app.LoadConfig(log))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	defer log.Sync()

	log.Info("Loading environment variables...")
	cfg := app.LoadConfig(log)
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log, cfg, app.Deps{})
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
