// Package cli implements the vidrag command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"vidrag/internal/config"
	"vidrag/internal/logger"
)

var (
	cfgPath string
	verbose bool

	// appConfig is loaded once per invocation by the root pre-run hook.
	appConfig *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "vidrag",
	Short: "Ask questions about a library of video transcripts",
	Long: `vidrag splits video transcripts into fixed-duration chunks, indexes them
in a vector store and answers questions from the retrieved chunks with
numbered citations that link back to the moment in the video.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./vidrag.yaml or ~/.config/vidrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Sync() }()

	rootCmd.SetOut(os.Stdout)
	return rootCmd.ExecuteContext(ctx)
}

func setup(_ *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Options{Level: level, Development: cfg.Log.Development}); err != nil {
		return err
	}
	appConfig = cfg
	return nil
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, path, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	logger.Debugw("loaded config", "path", path)
	return cfg, nil
}
