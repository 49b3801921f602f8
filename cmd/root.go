package cmd

import (
	"fmt"
	"os"

	"Tunedrop/config"
	"Tunedrop/logger"
	"Tunedrop/server"

	"github.com/spf13/cobra"
)

// cfg is loaded once before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tunedrop",
	Short: "Tunedrop is an audio track sharing API.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogFile,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAge,
			Compress:   true,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

func runServer() {
	logger.Info("[Server] starting Tunedrop", logger.String("port", cfg.Port))
	if err := server.Start(cfg); err != nil {
		logger.Fatal("[Server] stopped with error", logger.ErrorField(err))
	}
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
