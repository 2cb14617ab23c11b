// Package cmd defines and implements the CLI commands for the extractor executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-extractor/internal/api"
	"github.com/JakeFAU/campus-extractor/internal/config"
	"github.com/JakeFAU/campus-extractor/internal/logging"
	"github.com/JakeFAU/campus-extractor/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands need from the application. Tests inject a fake.
type App interface {
	Run(ctx context.Context) error
	Pipelines() api.Pipelines
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return app, nil
}

// newRootCmd creates and configures the root command. The returned func
// closes the application if a subcommand built one; callers must run it
// whether or not the command succeeded.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile     string
		appInstance App
	)
	cmd := &cobra.Command{
		Use:   "extractor",
		Short: "Crawls university department sites and extracts structured records.",
		Long: `extractor discovers faculty, course catalog and event pages for the
configured departments, extracts structured records from them with a language
model, and normalizes research interests against a fixed taxonomy. It runs as
an HTTP service (serve) or as a one-shot command (extract).`,
		SilenceUsage: true,

		// Runs after flags are parsed but before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			appInstance = app
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the EXTRACTOR_ prefix")
	cmd.AddCommand(newServeCmd(), newExtractCmd())

	closeApp := func() {
		if appInstance != nil {
			appInstance.Close()
			appInstance = nil
		}
	}
	return cmd, closeApp
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// run executes the CLI and always releases the application afterwards.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root, closeApp := newRootCmd()
	defer closeApp()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// Execute is the main entry point.
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
