// Package config loads server configuration from TGCS_-prefixed environment
// variables and wires up the service: store, blob backends, and authorizer.
package config

import (
	"context"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/auth"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/repo/postgres"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/repo/sqlite"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/storage/fs"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/storage/memory"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/storage/s3"
)

// ServerConfig is the full server configuration.
type ServerConfig struct {
	Port string `env:"TGCS_PORT" env-default:"8000"`

	// DatabaseType selects the store implementation: "sqlite" or "postgres".
	DatabaseType string `env:"TGCS_DATABASE_TYPE" env-default:"sqlite"`
	// Database is the SQLite file path or the PostgreSQL connection URL.
	Database string `env:"TGCS_DATABASE" env-default:"trail_guide_content.db"`

	// AssetStorage selects the blob backend: "fs", "s3", or "memory".
	AssetStorage string `env:"TGCS_ASSET_STORAGE" env-default:"fs"`
	AssetDir     string `env:"TGCS_ASSET_DIR" env-default:"assets"`
	BundleDir    string `env:"TGCS_BUNDLE_DIR" env-default:"bundles"`

	BaseURL          string `env:"TGCS_BASE_URL" env-default:"http://localhost:8000"`
	MaxContentLength int64  `env:"TGCS_MAX_CONTENT_LENGTH" env-default:"5242880"`
	// LinkingScheme is the mobile app's deep-link URL scheme.
	LinkingScheme string `env:"TGCS_LINKING_SCHEME" env-default:"trail-guide"`
	CORSOrigins   string `env:"TGCS_CORS_ORIGINS" env-default:"*"`

	// Auth. When AuthSecret is empty the server runs with the pass-all gate.
	AuthSecret   string `env:"TGCS_AUTH_SECRET"`
	AuthIssuer   string `env:"TGCS_AUTH_ISSUER"`
	AuthAudience string `env:"TGCS_AUTH_AUDIENCE"`

	LogLevel  string `env:"TGCS_LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"TGCS_LOG_FORMAT" env-default:"console"`

	// S3 settings, used when AssetStorage is "s3".
	S3Region          string `env:"TGCS_S3_REGION"`
	S3Bucket          string `env:"TGCS_S3_BUCKET"`
	S3AccessKeyID     string `env:"TGCS_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"TGCS_S3_SECRET_ACCESS_KEY"`
	S3Endpoint        string `env:"TGCS_S3_ENDPOINT"`
	S3UsePathStyle    bool   `env:"TGCS_S3_USE_PATH_STYLE" env-default:"false"`
}

// Load reads configuration from the environment.
func Load() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// PublicConfig is the client-visible configuration subset, served at
// GET /config and shipped in each bundle's config.json.
func (c *ServerConfig) PublicConfig() map[string]any {
	return map[string]any{
		"AUTH_AUDIENCE":      c.AuthAudience,
		"AUTH_ISSUER":        c.AuthIssuer,
		"BASE_URL":           c.BaseURL,
		"MAX_CONTENT_LENGTH": c.MaxContentLength,
		"LINKING_SCHEME":     c.LinkingScheme,
	}
}

// BuildStore opens the configured database backend.
func (c *ServerConfig) BuildStore(ctx context.Context) (trailguide.Store, error) {
	switch c.DatabaseType {
	case "sqlite", "":
		return sqlite.Open(c.Database)
	case "postgres":
		return postgres.Open(ctx, c.Database)
	default:
		return nil, fmt.Errorf("unknown database type: %s", c.DatabaseType)
	}
}

// BuildBlobStores opens the configured asset and bundle blob backends.
func (c *ServerConfig) BuildBlobStores() (assets, bundles trailguide.BlobStore, err error) {
	switch c.AssetStorage {
	case "fs", "":
		assets, err = fs.New(fs.Config{BaseDir: c.AssetDir})
		if err != nil {
			return nil, nil, err
		}
		bundles, err = fs.New(fs.Config{BaseDir: c.BundleDir})
		if err != nil {
			return nil, nil, err
		}
		return assets, bundles, nil

	case "s3":
		base := s3.Config{
			Region:          c.S3Region,
			Bucket:          c.S3Bucket,
			AccessKeyID:     c.S3AccessKeyID,
			SecretAccessKey: c.S3SecretAccessKey,
			Endpoint:        c.S3Endpoint,
			UsePathStyle:    c.S3UsePathStyle,
		}

		assetCfg := base
		assetCfg.KeyPrefix = "assets"
		assets, err = s3.New(assetCfg)
		if err != nil {
			return nil, nil, err
		}

		bundleCfg := base
		bundleCfg.KeyPrefix = "bundles"
		bundles, err = s3.New(bundleCfg)
		if err != nil {
			return nil, nil, err
		}
		return assets, bundles, nil

	case "memory":
		return memory.New(), memory.New(), nil

	default:
		return nil, nil, fmt.Errorf("unknown asset storage backend: %s", c.AssetStorage)
	}
}

// BuildService wires the store and blob backends into a Service.
func (c *ServerConfig) BuildService(ctx context.Context) (*trailguide.Service, error) {
	store, err := c.BuildStore(ctx)
	if err != nil {
		return nil, err
	}

	assets, bundles, err := c.BuildBlobStores()
	if err != nil {
		store.Close()
		return nil, err
	}

	return trailguide.NewService(store, assets, bundles, c.PublicConfig()), nil
}

// BuildAuthorizer returns the JWT gate when a secret is configured and the
// pass-all gate otherwise.
func (c *ServerConfig) BuildAuthorizer() (auth.Authorizer, error) {
	if c.AuthSecret == "" {
		return auth.Static{}, nil
	}
	return auth.NewJWT(auth.JWTConfig{
		Secret:   c.AuthSecret,
		Issuer:   c.AuthIssuer,
		Audience: c.AuthAudience,
	})
}
