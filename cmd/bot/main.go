package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artur/tubegate/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "tubegate",
		Short:        "Telegram bot that downloads videos and delivers them as files or links",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to config.toml")

	root.AddCommand(
		newServeCmd(&configPath),
		newResetCmd(&configPath),
		newFormatsCmd(&configPath),
	)
	return root
}

func defaultConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("CONFIG_PATH")); p != "" {
		return p
	}
	return config.DefaultConfigPath
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the file server and the cleanup janitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}
