// Package sqlite is the default Store implementation, backed by a single
// SQLite database file via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

// Repository implements trailguide.Store on SQLite.
type Repository struct {
	db *sql.DB

	stations *revisionStore
	pages    *revisionStore
	modals   *revisionStore
	assets   *assetStore
}

// Open connects to (or creates) the database at path and ensures the schema.
// Connections use BEGIN IMMEDIATE transactions so concurrent writers to the
// same object serialize instead of failing at commit time.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	r := &Repository{db: db}
	r.stations = &revisionStore{db: db, spec: trailguide.StationSpec}
	r.pages = &revisionStore{db: db, spec: trailguide.PageSpec}
	r.modals = &revisionStore{db: db, spec: trailguide.ModalSpec}
	r.assets = &assetStore{db: db, collections: r.revisionSpecs()}

	if err := r.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) revisionSpecs() []trailguide.CollectionSpec {
	return []trailguide.CollectionSpec{trailguide.StationSpec, trailguide.PageSpec, trailguide.ModalSpec}
}

// Close closes the underlying database handle.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) Stations() trailguide.RevisionStore { return r.stations }
func (r *Repository) Pages() trailguide.RevisionStore    { return r.pages }
func (r *Repository) Modals() trailguide.RevisionStore   { return r.modals }
func (r *Repository) Assets() trailguide.AssetStore      { return r.assets }
func (r *Repository) Releases() trailguide.ReleaseStore  { return &releaseStore{db: r.db} }
func (r *Repository) Sections() trailguide.SectionStore  { return &sectionStore{db: r.db} }

func (r *Repository) Categories() trailguide.CategoryStore {
	return &categoryStore{db: r.db}
}

func (r *Repository) Layers() trailguide.LayerStore      { return &layerStore{db: r.db} }
func (r *Repository) Settings() trailguide.SettingsStore { return &settingsStore{db: r.db} }
func (r *Repository) Feedback() trailguide.FeedbackStore { return &feedbackStore{db: r.db} }
func (r *Repository) Tokens() trailguide.TokenStore      { return &tokenStore{db: r.db} }

func (r *Repository) ensureSchema(ctx context.Context) error {
	var stmts []string

	for _, spec := range r.revisionSpecs() {
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT NOT NULL,
				revision INTEGER NOT NULL,
				doc TEXT NOT NULL,
				enabled INTEGER,
				rank INTEGER,
				revision_dt TEXT NOT NULL,
				revision_message TEXT NOT NULL,
				deleted INTEGER NOT NULL DEFAULT 0,
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
			file_size INTEGER NOT NULL,
			sha1_checksum TEXT NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS releases (
			version INTEGER PRIMARY KEY AUTOINCREMENT,
			release_notes TEXT NOT NULL,
			bundle_path TEXT NOT NULL UNIQUE,
			bundle_size INTEGER NOT NULL DEFAULT 0,
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
			geojson TEXT NOT NULL,
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
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nullableBool(value *bool) any {
	if value == nil {
		return nil
	}
	return boolToInt(*value)
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func likePattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(query))
	return "%" + escaped + "%"
}
