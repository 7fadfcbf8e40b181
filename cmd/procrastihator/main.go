package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:          "procrastihator",
		Short:        "A voice agent that scolds you when your webcam catches you slacking",
		Long:         "procrastihator listens for detection packets from a vision client, decides whether they deserve a reaction, and answers with a persona-voiced scolding synthesized to speech.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "configs/agent.yaml", "path to the agent YAML config")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with credentials (optional)")

	rootCmd.AddCommand(
		newAgentCmd(flags),
		newSendCmd(flags),
		newListenCmd(flags),
	)
	return rootCmd
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

func newLogger(level *slog.LevelVar) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
