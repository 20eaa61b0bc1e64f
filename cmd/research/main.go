package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/research-chat/internal/bootstrap"
	"github.com/suPer8Hu/research-chat/internal/config"
	"go.uber.org/zap"
)

var (
	// Global flags
	logLevel string
	locale   string
	backend  string
	provider string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "research",
	Short: "Multi-session academic research chat",
	Long: `research keeps a list of research discussions, sends prompts to a
text-generation service and parses each reply into a structured academic
record (title, type, summary, main content, notes, sources).

Configuration is read from the environment; flags override it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = bootstrap.NewLogger(loadConfig().LogLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&locale, "locale", "", "label locale: id or en (overrides LOCALE)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "session backend: sqlite, mysql, redis, dynamodb, memory (overrides BLOB_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "generation provider: gemini, ollama, openrouter (overrides AI_PROVIDER)")

	rootCmd.AddCommand(serveCmd, chatCmd, askCmd, sessionsCmd)
}

func loadConfig() config.Config {
	cfg := config.Load()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if locale != "" {
		cfg.Locale = locale
	}
	if backend != "" {
		cfg.BlobBackend = backend
	}
	if provider != "" {
		cfg.AIProvider = provider
	}
	return cfg
}

func openApp(ctx context.Context) (*bootstrap.App, error) {
	return bootstrap.New(ctx, loadConfig(), logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
