package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

// Stores for the simple, non-revisioned entities: releases, sections,
// categories, layers, settings, feedback, and one-time tokens.

type releaseStore struct {
	db *sql.DB
}

const releaseColumns = "version, release_notes, bundle_path, bundle_size, submitted_dt, published_dt"

func scanRelease(scanner rowScanner) (*trailguide.Release, error) {
	var (
		r         trailguide.Release
		published sql.NullString
	)
	if err := scanner.Scan(
		&r.Version, &r.ReleaseNotes, &r.BundlePath, &r.BundleSize, &r.SubmittedDT, &published,
	); err != nil {
		return nil, err
	}
	if published.Valid {
		r.PublishedDT = &published.String
	}
	return &r, nil
}

func (s *releaseStore) List(ctx context.Context) ([]*trailguide.Release, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+releaseColumns+` FROM releases ORDER BY version DESC`)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "releases", Op: "list", Err: err}
	}
	defer rows.Close()

	var releases []*trailguide.Release
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, &trailguide.StoreError{Collection: "releases", Op: "list", Err: err}
		}
		releases = append(releases, r)
	}
	return releases, rows.Err()
}

func (s *releaseStore) Get(ctx context.Context, version int) (*trailguide.Release, error) {
	r, err := scanRelease(s.db.QueryRowContext(ctx,
		`SELECT `+releaseColumns+` FROM releases WHERE version = ?`, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &trailguide.NotFoundError{Kind: "release", ID: fmt.Sprintf("%d", version)}
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "releases", Op: "get", Err: err}
	}
	return r, nil
}

func (s *releaseStore) Latest(ctx context.Context) (*trailguide.Release, error) {
	r, err := scanRelease(s.db.QueryRowContext(ctx,
		`SELECT `+releaseColumns+` FROM releases ORDER BY version DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trailguide.ErrNotFound
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "releases", Op: "latest", Err: err}
	}
	return r, nil
}

func (s *releaseStore) Create(ctx context.Context, r *trailguide.Release) (*trailguide.Release, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO releases (release_notes, bundle_path, bundle_size, submitted_dt, published_dt)
		 VALUES (?, ?, 0, ?, NULL)`,
		r.ReleaseNotes, r.BundlePath, r.SubmittedDT)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "releases", Op: "create", Err: err}
	}

	version, err := res.LastInsertId()
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "releases", Op: "create", Err: err}
	}
	return s.Get(ctx, int(version))
}

func (s *releaseStore) Update(ctx context.Context, r *trailguide.Release) (*trailguide.Release, error) {
	var published any
	if r.PublishedDT != nil {
		published = *r.PublishedDT
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE releases SET release_notes = ?, published_dt = ? WHERE version = ?`,
		r.ReleaseNotes, published, r.Version)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "releases", Op: "update", Err: err}
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, &trailguide.NotFoundError{Kind: "release", ID: fmt.Sprintf("%d", r.Version)}
	}
	return s.Get(ctx, r.Version)
}

func (s *releaseStore) SetBundleSize(ctx context.Context, version int, size int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE releases SET bundle_size = ? WHERE version = ?`, size, version)
	if err != nil {
		return &trailguide.StoreError{Collection: "releases", Op: "set bundle size", Err: err}
	}
	return nil
}

func (s *releaseStore) Remove(ctx context.Context, version int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM releases WHERE version = ?`, version)
	if err != nil {
		return &trailguide.StoreError{Collection: "releases", Op: "remove", Err: err}
	}
	return nil
}

type sectionStore struct {
	db *sql.DB
}

func (s *sectionStore) List(ctx context.Context) ([]*trailguide.Section, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, rank FROM sections ORDER BY rank, id`)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "sections", Op: "list", Err: err}
	}
	defer rows.Close()

	var sections []*trailguide.Section
	for rows.Next() {
		var sec trailguide.Section
		if err := rows.Scan(&sec.ID, &sec.Title, &sec.Rank); err != nil {
			return nil, &trailguide.StoreError{Collection: "sections", Op: "list", Err: err}
		}
		sections = append(sections, &sec)
	}
	return sections, rows.Err()
}

func (s *sectionStore) Get(ctx context.Context, id string) (*trailguide.Section, error) {
	var sec trailguide.Section
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, rank FROM sections WHERE id = ?`, id,
	).Scan(&sec.ID, &sec.Title, &sec.Rank)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &trailguide.NotFoundError{Kind: "section", ID: id}
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "sections", Op: "get", Err: err}
	}
	return &sec, nil
}

func (s *sectionStore) Set(ctx context.Context, sec *trailguide.Section) (*trailguide.Section, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sections (id, title, rank) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET title = excluded.title, rank = excluded.rank`,
		sec.ID, sec.Title, sec.Rank)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "sections", Op: "set", Err: err}
	}
	return s.Get(ctx, sec.ID)
}

type categoryStore struct {
	db *sql.DB
}

func (s *categoryStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM categories ORDER BY rank, id`)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "categories", Op: "list", Err: err}
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &trailguide.StoreError{Collection: "categories", Op: "list", Err: err}
		}
		categories = append(categories, id)
	}
	return categories, rows.Err()
}

func (s *categoryStore) Replace(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &trailguide.StoreError{Collection: "categories", Op: "replace", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return &trailguide.StoreError{Collection: "categories", Op: "replace", Err: err}
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, rank) VALUES (?, ?)`, id, i); err != nil {
			return &trailguide.StoreError{Collection: "categories", Op: "replace", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &trailguide.StoreError{Collection: "categories", Op: "replace", Err: err}
	}
	return nil
}

type layerStore struct {
	db *sql.DB
}

func scanLayer(scanner rowScanner) (*trailguide.Layer, error) {
	var (
		l       trailguide.Layer
		geojson string
	)
	if err := scanner.Scan(&l.ID, &l.Name, &geojson, &l.Rank); err != nil {
		return nil, err
	}
	l.GeoJSON = json.RawMessage(geojson)
	return &l, nil
}

func (s *layerStore) List(ctx context.Context) ([]*trailguide.Layer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, geojson, rank FROM layers ORDER BY rank, id`)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "layers", Op: "list", Err: err}
	}
	defer rows.Close()

	layers := []*trailguide.Layer{}
	for rows.Next() {
		l, err := scanLayer(rows)
		if err != nil {
			return nil, &trailguide.StoreError{Collection: "layers", Op: "list", Err: err}
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

func (s *layerStore) Get(ctx context.Context, id string) (*trailguide.Layer, error) {
	l, err := scanLayer(s.db.QueryRowContext(ctx,
		`SELECT id, name, geojson, rank FROM layers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &trailguide.NotFoundError{Kind: "layer", ID: id}
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "layers", Op: "get", Err: err}
	}
	return l, nil
}

func (s *layerStore) Set(ctx context.Context, l *trailguide.Layer) (*trailguide.Layer, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO layers (id, name, geojson, rank) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, geojson = excluded.geojson, rank = excluded.rank`,
		l.ID, l.Name, string(l.GeoJSON), l.Rank)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "layers", Op: "set", Err: err}
	}
	return s.Get(ctx, l.ID)
}

func (s *layerStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM layers WHERE id = ?`, id)
	if err != nil {
		return &trailguide.StoreError{Collection: "layers", Op: "delete", Err: err}
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return &trailguide.NotFoundError{Kind: "layer", ID: id}
	}
	return nil
}

type settingsStore struct {
	db *sql.DB
}

func (s *settingsStore) Get(ctx context.Context) (trailguide.Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT setting_key, setting_value FROM settings`)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "settings", Op: "get", Err: err}
	}
	defer rows.Close()

	settings := trailguide.Settings{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, &trailguide.StoreError{Collection: "settings", Op: "get", Err: err}
		}

		// Values are stored JSON-encoded so numbers and booleans round-trip.
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *settingsStore) Merge(ctx context.Context, in trailguide.Settings) (trailguide.Settings, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "settings", Op: "merge", Err: err}
	}
	defer tx.Rollback()

	for key, value := range in {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, &trailguide.StoreError{Collection: "settings", Op: "merge", Err: err}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (setting_key, setting_value) VALUES (?, ?)
			 ON CONFLICT (setting_key) DO UPDATE SET setting_value = excluded.setting_value`,
			key, string(raw)); err != nil {
			return nil, &trailguide.StoreError{Collection: "settings", Op: "merge", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &trailguide.StoreError{Collection: "settings", Op: "merge", Err: err}
	}
	return s.Get(ctx)
}

type feedbackStore struct {
	db *sql.DB
}

const feedbackColumns = "id, from_name, from_email, content, submitted"

func scanFeedback(scanner rowScanner) (*trailguide.FeedbackItem, error) {
	var f trailguide.FeedbackItem
	if err := scanner.Scan(&f.ID, &f.From.Name, &f.From.Email, &f.Content, &f.Submitted); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *feedbackStore) List(ctx context.Context) ([]*trailguide.FeedbackItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback ORDER BY submitted DESC`)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "feedback", Op: "list", Err: err}
	}
	defer rows.Close()

	items := []*trailguide.FeedbackItem{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, &trailguide.StoreError{Collection: "feedback", Op: "list", Err: err}
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (s *feedbackStore) Get(ctx context.Context, id string) (*trailguide.FeedbackItem, error) {
	f, err := scanFeedback(s.db.QueryRowContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &trailguide.NotFoundError{Kind: "feedback item", ID: id}
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "feedback", Op: "get", Err: err}
	}
	return f, nil
}

func (s *feedbackStore) Set(ctx context.Context, f *trailguide.FeedbackItem) (*trailguide.FeedbackItem, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, from_name, from_email, content, submitted) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			from_name = excluded.from_name, from_email = excluded.from_email,
			content = excluded.content, submitted = excluded.submitted`,
		f.ID, f.From.Name, f.From.Email, f.Content, f.Submitted)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "feedback", Op: "set", Err: err}
	}
	return s.Get(ctx, f.ID)
}

type tokenStore struct {
	db *sql.DB
}

func (s *tokenStore) Get(ctx context.Context, token string) (*trailguide.OneTimeToken, error) {
	var t trailguide.OneTimeToken
	err := s.db.QueryRowContext(ctx,
		`SELECT token, scope, expiry FROM one_time_tokens WHERE token = ?`, token,
	).Scan(&t.Token, &t.Scope, &t.Expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trailguide.ErrNotFound
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "one_time_tokens", Op: "get", Err: err}
	}
	return &t, nil
}

func (s *tokenStore) Set(ctx context.Context, t *trailguide.OneTimeToken) (*trailguide.OneTimeToken, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO one_time_tokens (token, scope, expiry) VALUES (?, ?, ?)
		 ON CONFLICT (token) DO UPDATE SET scope = excluded.scope, expiry = excluded.expiry`,
		t.Token, t.Scope, t.Expiry)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "one_time_tokens", Op: "set", Err: err}
	}
	return s.Get(ctx, t.Token)
}

func (s *tokenStore) Delete(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM one_time_tokens WHERE token = ?`, token)
	if err != nil {
		return &trailguide.StoreError{Collection: "one_time_tokens", Op: "delete", Err: err}
	}
	return nil
}
