// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	assetmemory "github.com/jacorycyjin/smart-library-crawler/internal/assets/memory"
	assetminio "github.com/jacorycyjin/smart-library-crawler/internal/assets/minio"
	collyfetcher "github.com/jacorycyjin/smart-library-crawler/internal/fetcher/colly"
	"github.com/jacorycyjin/smart-library-crawler/internal/harvest"
	"github.com/jacorycyjin/smart-library-crawler/internal/id/uuid"
	"github.com/jacorycyjin/smart-library-crawler/internal/logging"
	"github.com/jacorycyjin/smart-library-crawler/internal/policy/ratelimit"
	recordmemory "github.com/jacorycyjin/smart-library-crawler/internal/records/memory"
	recordpostgres "github.com/jacorycyjin/smart-library-crawler/internal/records/postgres"
	"github.com/jacorycyjin/smart-library-crawler/internal/source/douban"
	"github.com/jacorycyjin/smart-library-crawler/internal/source/zlibrary"
	taskmemory "github.com/jacorycyjin/smart-library-crawler/internal/tasks/memory"
	taskpostgres "github.com/jacorycyjin/smart-library-crawler/internal/tasks/postgres"
)

type closer interface {
	Close()
}

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup and passed to the commands that need it.
type App struct {
	logger  *zap.Logger
	tasks   harvest.TaskStore
	records harvest.RecordStore
	assets  harvest.AssetStore
	fetcher *collyfetcher.Fetcher
	books   *douban.BookSource
	authors *douban.AuthorSource
	ebooks  *zlibrary.EbookSource
	ids     harvest.IDGenerator
	buckets harvest.Buckets

	closers []closer
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetTasks exposes the configured task store.
func (a *App) GetTasks() harvest.TaskStore { return a.tasks }

// GetRecords exposes the configured record store.
func (a *App) GetRecords() harvest.RecordStore { return a.records }

// GetAssets exposes the configured asset store.
func (a *App) GetAssets() harvest.AssetStore { return a.assets }

// GetFetcher returns the shared page fetcher.
func (a *App) GetFetcher() *collyfetcher.Fetcher { return a.fetcher }

// GetBookSource returns the book discovery source.
func (a *App) GetBookSource() *douban.BookSource { return a.books }

// GetAuthorSource returns the author detail source.
func (a *App) GetAuthorSource() *douban.AuthorSource { return a.authors }

// GetEbookSource returns the e-book acquisition source.
func (a *App) GetEbookSource() *zlibrary.EbookSource { return a.ebooks }

// GetIDGenerator returns the record id generator.
func (a *App) GetIDGenerator() harvest.IDGenerator { return a.ids }

// GetBuckets returns the configured asset bucket names.
func (a *App) GetBuckets() harvest.Buckets { return a.buckets }

// NewApp creates and initializes a new App struct based on the application's
// configuration. It reads values from Viper and instantiates the appropriate
// providers, failing fast when a critical service cannot be reached.
func NewApp(ctx context.Context) (*App, error) {
	l := logging.L
	l.Info("Initializing application services...")

	a := &App{
		logger: l,
		ids:    uuid.NewGenerator(),
		buckets: harvest.Buckets{
			Covers:      viper.GetString("assets.buckets.covers"),
			Attachments: viper.GetString("assets.buckets.attachments"),
			Avatars:     viper.GetString("assets.buckets.avatars"),
		},
	}

	switch provider := viper.GetString("tasks.provider"); provider {
	case "postgres":
		dsn := viper.GetString("database.dsn")
		if dsn == "" {
			return nil, fmt.Errorf("tasks provider is 'postgres' but database.dsn is not set")
		}
		l.Info("Connecting task store to PostgreSQL...")
		store, err := taskpostgres.NewStore(ctx, taskpostgres.StoreConfig{DSN: dsn})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize task store: %w", err)
		}
		a.tasks = store
		a.closers = append(a.closers, store)
	case "memory":
		l.Info("Using in-memory task store. Tasks will not survive a restart.")
		a.tasks = taskmemory.NewStore()
	default:
		return nil, fmt.Errorf("unknown tasks provider: %s", provider)
	}

	switch provider := viper.GetString("records.provider"); provider {
	case "postgres":
		dsn := viper.GetString("database.dsn")
		if dsn == "" {
			return nil, fmt.Errorf("records provider is 'postgres' but database.dsn is not set")
		}
		l.Info("Connecting record store to PostgreSQL...")
		store, err := recordpostgres.NewStore(ctx, recordpostgres.StoreConfig{DSN: dsn})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize record store: %w", err)
		}
		a.records = store
		a.closers = append(a.closers, store)
	case "memory":
		l.Info("Using in-memory record store. Records will not survive a restart.")
		a.records = recordmemory.NewStore()
	default:
		return nil, fmt.Errorf("unknown records provider: %s", provider)
	}

	switch provider := viper.GetString("assets.provider"); provider {
	case "minio":
		endpoint := viper.GetString("assets.minio.endpoint")
		l.Info("Connecting to MinIO", zap.String("endpoint", endpoint))
		store, err := assetminio.NewStore(ctx, assetminio.StoreConfig{
			Endpoint:  endpoint,
			AccessKey: viper.GetString("assets.minio.access_key"),
			SecretKey: viper.GetString("assets.minio.secret_key"),
			UseSSL:    viper.GetBool("assets.minio.use_ssl"),
			Buckets:   []string{a.buckets.Covers, a.buckets.Attachments, a.buckets.Avatars},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize asset store: %w", err)
		}
		a.assets = store
	case "memory":
		l.Info("Using in-memory asset store. Uploads will be discarded on exit.")
		a.assets = assetmemory.NewStore()
	default:
		return nil, fmt.Errorf("unknown assets provider: %s", provider)
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   viper.GetFloat64("crawler.requests_per_second"),
		DefaultBurst: viper.GetInt("crawler.burst"),
	})
	a.fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:       viper.GetString("crawler.user_agent"),
		Timeout:         viper.GetDuration("crawler.request_timeout"),
		DownloadTimeout: viper.GetDuration("crawler.download_timeout"),
		ChallengeHosts:  viper.GetStringSlice("crawler.challenge_hosts"),
	}, limiter)

	doubanCfg := douban.Config{
		BaseURL:   viper.GetString("sources.douban.base_url"),
		SearchURL: viper.GetString("sources.douban.search_url"),
	}
	a.books = douban.NewBookSource(a.fetcher, doubanCfg, l)
	a.authors = douban.NewAuthorSource(a.fetcher, doubanCfg, l)

	ebooks, err := zlibrary.NewEbookSource(a.fetcher, zlibrary.Config{
		BaseURLs: viper.GetStringSlice("sources.zlibrary.base_urls"),
	}, l)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize e-book source: %w", err)
	}
	a.ebooks = ebooks

	l.Info("Application services initialized successfully.")
	return a, nil
}

// Close gracefully shuts down all services in the App container.
// It is called by a Cobra hook after the command finishes execution.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	for _, c := range a.closers {
		c.Close()
	}
	// Best effort; stderr sync commonly fails on some platforms.
	_ = a.logger.Sync()
}
