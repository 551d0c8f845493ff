// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration system.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jacorycyjin/smart-library-crawler/internal/logging"
)

// InitConfig initializes the application's configuration using Viper.
// It sets up default values, defines configuration search paths, and enables
// reading from environment variables. This function is designed to be called
// once at application startup so configuration is available to all packages.
func InitConfig() {
	// --- Set Search Paths ---
	viper.SetConfigName("config")
	viper.AddConfigPath(".")                // Current working directory
	viper.AddConfigPath("/etc/slcrawler/")  // System-wide configuration
	viper.AddConfigPath("$HOME/.slcrawler") // User-specific configuration

	// --- Set Defaults ---
	viper.SetDefault("tasks.provider", "postgres")
	viper.SetDefault("records.provider", "postgres")
	viper.SetDefault("database.dsn", "")

	viper.SetDefault("assets.provider", "minio")
	viper.SetDefault("assets.minio.endpoint", "127.0.0.1:9000")
	viper.SetDefault("assets.minio.access_key", "minioadmin")
	viper.SetDefault("assets.minio.secret_key", "minioadmin")
	viper.SetDefault("assets.minio.use_ssl", false)
	viper.SetDefault("assets.buckets.covers", "library-covers")
	viper.SetDefault("assets.buckets.attachments", "library-attachments")
	viper.SetDefault("assets.buckets.avatars", "library-avatars")

	const defaultUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	viper.SetDefault("crawler.user_agent", defaultUA)
	viper.SetDefault("crawler.request_timeout", "15s")
	viper.SetDefault("crawler.download_timeout", "60s")
	viper.SetDefault("crawler.requests_per_second", 0.5)
	viper.SetDefault("crawler.burst", 1)
	viper.SetDefault("crawler.challenge_hosts", []string{"sec.douban.com"})

	viper.SetDefault("sources.douban.base_url", "https://book.douban.com")
	viper.SetDefault("sources.douban.search_url", "https://www.douban.com/search")
	viper.SetDefault("sources.zlibrary.base_urls", []string{
		"https://zh.singlelogin.re",
		"https://zh.z-lib.gs",
	})

	viper.SetDefault("server.listen_addr", ":8080")

	// --- Environment Variables ---
	viper.SetEnvPrefix("SLCRAWLER") // e.g., SLCRAWLER_DATABASE_DSN=...
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// --- Read Config File ---
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logging.L.Warn("Config file not found; using defaults and environment variables.")
		} else {
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
