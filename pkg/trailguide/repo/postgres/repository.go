// Package postgres implements trailguide.Store on PostgreSQL via pgx. It is
// behaviorally equivalent to the sqlite package; per-object write
// serialization uses transaction-scoped advisory locks instead of a global
// write lock.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

// Repository implements trailguide.Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool

	stations *revisionStore
	pages    *revisionStore
	modals   *revisionStore
	assets   *assetStore
}

// Open connects to the database at databaseURL and ensures the schema.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &Repository{pool: pool}
	r.stations = &revisionStore{pool: pool, spec: trailguide.StationSpec}
	r.pages = &revisionStore{pool: pool, spec: trailguide.PageSpec}
	r.modals = &revisionStore{pool: pool, spec: trailguide.ModalSpec}
	r.assets = &assetStore{pool: pool, collections: r.revisionSpecs()}

	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) revisionSpecs() []trailguide.CollectionSpec {
	return []trailguide.CollectionSpec{trailguide.StationSpec, trailguide.PageSpec, trailguide.ModalSpec}
}

// Close releases the connection pool.
func (r *Repository) Close() error {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *Repository) Stations() trailguide.RevisionStore { return r.stations }
func (r *Repository) Pages() trailguide.RevisionStore    { return r.pages }
func (r *Repository) Modals() trailguide.RevisionStore   { return r.modals }
func (r *Repository) Assets() trailguide.AssetStore      { return r.assets }
func (r *Repository) Releases() trailguide.ReleaseStore  { return &releaseStore{pool: r.pool} }
func (r *Repository) Sections() trailguide.SectionStore  { return &sectionStore{pool: r.pool} }
func (r *Repository) Categories() trailguide.CategoryStore {
	return &categoryStore{pool: r.pool}
}

func (r *Repository) Layers() trailguide.LayerStore      { return &layerStore{pool: r.pool} }
func (r *Repository) Settings() trailguide.SettingsStore { return &settingsStore{pool: r.pool} }
func (r *Repository) Feedback() trailguide.FeedbackStore { return &feedbackStore{pool: r.pool} }
func (r *Repository) Tokens() trailguide.TokenStore      { return &tokenStore{pool: r.pool} }

func (r *Repository) ensureSchema(ctx context.Context) error {
	var stmts []string

	for _, spec := range r.revisionSpecs() {
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT NOT NULL,
				revision INTEGER NOT NULL,
				doc JSONB NOT NULL,
				enabled BOOLEAN,
				rank INTEGER,
				revision_dt TEXT NOT NULL,
				revision_message TEXT NOT NULL,
				deleted BOOLEAN NOT NULL DEFAULT FALSE,
				PRIMARY KEY (id, revision)
			)`, spec.Name),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_current (
				id TEXT PRIMARY KEY,
				revision INTEGER NOT NULL
			)`, spec.Name),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_asset_usage (
				object_id TEXT NOT NULL,
				revision INTEGER NOT NULL,
				asset_id TEXT NOT NULL,
				PRIMARY KEY (object_id, revision, asset_id)
			)`, spec.Name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_asset_usage_by_asset
				ON %s_asset_usage (asset_id)`, spec.Name, spec.Name),
		)
	}

	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS assets (
			id TEXT PRIMARY KEY,
			asset_type TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_size BIGINT NOT NULL,
			sha1_checksum TEXT NOT NULL,
			deleted BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS releases (
			version SERIAL PRIMARY KEY,
			release_notes TEXT NOT NULL,
			bundle_path TEXT NOT NULL UNIQUE,
			bundle_size BIGINT NOT NULL DEFAULT 0,
			submitted_dt TEXT NOT NULL,
			published_dt TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sections (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			rank INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			rank INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS layers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			geojson JSONB NOT NULL,
			rank INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			setting_key TEXT PRIMARY KEY,
			setting_value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			from_name TEXT NOT NULL,
			from_email TEXT NOT NULL,
			content TEXT NOT NULL,
			submitted TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS one_time_tokens (
			token TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			expiry TEXT NOT NULL
		)`,
	)

	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
