package cmd

import (
	"context"
	"time"

	"Tunedrop/db"
	"Tunedrop/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the profiles and tracks tables",
	Long:  `Create the profiles and tracks tables together with their full-text, tag and exposed indexes. Safe to run repeatedly.`,
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.DatabaseURL == "" {
			logger.Fatal("[Migrate] DATABASE_URL is required")
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		pool, err := db.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("[Migrate] failed to connect", logger.ErrorField(err))
		}
		defer pool.Close()

		if err := db.InitDB(ctx, pool); err != nil {
			logger.Fatal("[Migrate] failed to initialise schema", logger.ErrorField(err))
		}
		logger.Info("[Migrate] schema is up to date")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
