package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	dryRun           bool
	fullRebuild      bool
	workers          int
	inboxDir         string
	storeDir         string
	siteDir          string
	settingsPath     string
	criticPromptPath string
	editorPromptPath string
	templateDir      string
	serveAddr        string
	debugMode        bool
)

var rootCmd = &cobra.Command{
	Use:   "photo-refinery",
	Short: "Multi-critic photo analysis and enhancement pipeline",
	Long: `Analyzes inbox photographs with a panel of vision models, merges their
critiques into a consensus, applies the suggested edits, and publishes a
static gallery of before/after entries.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync()

		pipeline, err := buildPipeline(logger)
		if err != nil {
			return err
		}
		pipeline.SetDryRun(dryRun)
		pipeline.SetFullRebuild(fullRebuild)

		summary, err := pipeline.Run(context.Background())
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d image(s) failed", summary.Failed)
		}
		return nil
	},
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Regenerate every site page from the processed entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync()

		pipeline, err := buildPipeline(logger)
		if err != nil {
			return err
		}
		return pipeline.Rebuild(PublishFull)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the inbox and process new images as they arrive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync()

		pipeline, err := buildPipeline(logger)
		if err != nil {
			return err
		}
		return watchInbox(context.Background(), pipeline, logger)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generated site locally",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer logger.Sync()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serveSite(cfg.Settings.SiteDirectory, serveAddr, logger)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Analyze and report consensus without editing or publishing")
	rootCmd.Flags().BoolVar(&fullRebuild, "full-rebuild", false, "Regenerate every site page, not just new ones")

	for _, cmd := range []*cobra.Command{rootCmd, buildCmd, watchCmd, serveCmd} {
		cmd.Flags().StringVar(&settingsPath, "settings", "", "Path to settings file")
		cmd.Flags().StringVar(&inboxDir, "inbox", "", "Inbox directory (overrides settings)")
		cmd.Flags().StringVar(&storeDir, "store", "", "Processed entry directory (overrides settings)")
		cmd.Flags().StringVar(&siteDir, "site", "", "Site output directory (overrides settings)")
		cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (overrides settings)")
		cmd.Flags().StringVar(&criticPromptPath, "critic-prompt", "", "Path to custom critique prompt file")
		cmd.Flags().StringVar(&editorPromptPath, "editor-prompt", "", "Path to custom edit prompt file")
		cmd.Flags().StringVar(&templateDir, "templates", "", "Directory with custom site templates")
		cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	}

	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "Address to serve on")

	rootCmd.AddCommand(buildCmd, watchCmd, serveCmd)
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !debugMode {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger.Sugar()
}

func loadConfig() (*Config, error) {
	overrides := &ConfigOverrides{}
	if criticPromptPath != "" {
		overrides.CriticPromptPath = &criticPromptPath
	}
	if editorPromptPath != "" {
		overrides.EditorPromptPath = &editorPromptPath
	}
	if templateDir != "" {
		overrides.TemplateDir = &templateDir
	}
	if settingsPath != "" {
		overrides.SettingsPath = &settingsPath
	}

	cfg, err := NewConfig(overrides)
	if err != nil {
		return nil, err
	}

	if inboxDir != "" {
		cfg.Settings.InboxDirectory = inboxDir
	}
	if storeDir != "" {
		cfg.Settings.StoreDirectory = storeDir
	}
	if siteDir != "" {
		cfg.Settings.SiteDirectory = siteDir
	}
	if workers > 0 {
		cfg.Settings.Workers = workers
	}

	return cfg, nil
}

func buildPipeline(logger *zap.SugaredLogger) (*Pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return NewPipeline(cfg, logger)
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
