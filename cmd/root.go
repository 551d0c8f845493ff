// Package cmd defines and implements the CLI commands for the slcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacorycyjin/smart-library-crawler/internal/app"
	collyfetcher "github.com/jacorycyjin/smart-library-crawler/internal/fetcher/colly"
	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
	"github.com/jacorycyjin/smart-library-crawler/internal/logging"
	"github.com/jacorycyjin/smart-library-crawler/internal/source/douban"
	"github.com/jacorycyjin/smart-library-crawler/internal/source/zlibrary"
	"github.com/jacorycyjin/smart-library-crawler/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetTasks() harvest.TaskStore
	GetRecords() harvest.RecordStore
	GetAssets() harvest.AssetStore
	GetFetcher() *collyfetcher.Fetcher
	GetBookSource() *douban.BookSource
	GetAuthorSource() *douban.AuthorSource
	GetEbookSource() *zlibrary.EbookSource
	GetIDGenerator() harvest.IDGenerator
	GetBuckets() harvest.Buckets
}

// newApp is the application factory. It is a variable so tests can replace
// it with a mock factory.
var newApp func(ctx context.Context) (App, error) = func(ctx context.Context) (App, error) {
	return app.NewApp(ctx)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slcrawler",
		Short: "A task-queue-driven crawler for the smart library catalog.",
		Long: `slcrawler harvests book, author, and e-book file records from external
catalog sites into the library's relational store and object store. Work is
driven by persisted task queues, so crawls are resumable and idempotent.`,

		// Runs after config is loaded but before the subcommand's RunE; the
		// application container is built here and injected via context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cobra.OnInitialize(config.InitConfig)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.slcrawler/config.yaml)")

	cmd.AddCommand(newSeedCategoriesCmd())
	cmd.AddCommand(newSeedBookTasksCmd())
	cmd.AddCommand(newSeedFileTasksCmd())
	cmd.AddCommand(newRunBookCrawlCmd())
	cmd.AddCommand(newRunAuthorEnrichmentCmd())
	cmd.AddCommand(newRunFileAcquisitionCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	logging.InitLogger()

	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
