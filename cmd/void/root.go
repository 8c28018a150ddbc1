package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/morezero/void-worker/internal/config"
	"github.com/morezero/void-worker/internal/server"
)

// envFile is loaded before the environment is read; "" means ".env".
var envFile string

var rootCmd = &cobra.Command{
	Use:   "void",
	Short: "void-worker: multiplexed RPC worker and resource resolver",
	Long: `void-worker serves commands over a multiplexed call protocol (NATS and
WebSocket) and answers HTTP requests from overrides, a virtual filesystem,
then the network.

Environment: COMMS_URL or COMMS_EMBEDDED, HTTP_ADDR, ORIGIN_URL, VFS_ROOT,
DATABASE_URL (optional), MIGRATION_PATH, WIRE_CODEC, LOG_LEVEL. See README.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the worker (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(
		serveCmd,
		migrateCmd,
		ensureDBCmd,
		configCmd,
		callCmd,
		versionCmd,
	)
	rootCmd.PersistentFlags().StringVarP(&envFile, "env", "e", "", "Environment file (default .env)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.LoadConfig(files...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runServe() error {
	if envFile != "" {
		return server.Run(envFile)
	}
	return server.Run()
}
