package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	log "log/slog"

	"rollcage/internal/config"
	"rollcage/internal/logging"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "rollcage",
	Short: "Voice and text chat with local Ollama agents",
	Long: `rollcage is an interactive chat front-end for a local Ollama server.

Type a prompt or a slash command (/help lists them). With /listen on, press
the hotkey bound to "rollcage-ctl auto" to speak instead of typing.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Config file path")
	rootCmd.PersistentFlags().StringVarP(&envFile, "env", "e", ".env", "Env file path")
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(modelsCmd)
}

// loadConfig layers file, environment and flags, then installs the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := cfg.Finish(); err != nil {
		return nil, err
	}
	if err := logging.Setup(os.Stderr, cfg.Log.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error("Exiting", "err", err)
		stop()
		os.Exit(1)
	}
}
