package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pennsieve/agent/internal/config"
	"github.com/pennsieve/agent/internal/logger"
	"github.com/pennsieve/agent/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations for the agent's local SQLite store.

This command applies pending schema migrations to the configured
database path. It is useful after upgrading the agent when schema
changes have been made, or to pre-create the database before the first
"agent start".

Examples:
  # Run migrations with default config
  agent migrate

  # Run migrations with a custom config
  agent migrate --config /etc/agent/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("running database migrations", "path", cfg.DatabasePath)

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.DatabasePath, false)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = st.Close() }()

	version, err := st.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("migration verification failed: %w", err)
	}

	fmt.Printf("migrations completed successfully (schema version: %d)\n", version)
	return nil
}
