package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"sage/internal/config"
	logx "sage/pkg/logx"
)

var (
	version = "dev"

	cfgPath  string
	envFiles []string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sage",
		Short: "Broadcast a bestseller quote of the day to Telegram chats",
		Long: `sage fetches the current NYT bestseller lists and, once per interval, sends the
top book's description and author to every chat subscribed to that list.

Secrets are read from the environment (or --env-file):
  NYT_TOKEN  Books API key (required)
  API_TOKEN  Telegram bot token
  DB_DSN     Postgres DSN (overrides storage.dsn)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFiles(envFiles...)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config file (json or yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env", ".env.local"}, "env files to load; missing files are skipped")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for one-shot commands")

	rootCmd.AddCommand(
		newRunCmd(),
		newCategoriesCmd(),
		newBooksCmd(),
		newTickCmd(),
		newSubscribersCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file for one-shot commands. A missing file
// yields the defaults so catalog commands work without one.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if errors.Is(err, fs.ErrNotExist) {
		return &config.Config{}, nil
	}
	return cfg, err
}

func cliLogger() logx.Logger {
	return logx.NewConsole(logLevel)
}
