package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

type releaseStore struct {
	pool *pgxpool.Pool
}

const releaseColumns = "version, release_notes, bundle_path, bundle_size, submitted_dt, published_dt"

func scanRelease(scanner rowScanner) (*trailguide.Release, error) {
	var r trailguide.Release
	if err := scanner.Scan(
		&r.Version, &r.ReleaseNotes, &r.BundlePath, &r.BundleSize, &r.SubmittedDT, &r.PublishedDT,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *releaseStore) List(ctx context.Context) ([]*trailguide.Release, error) {
	rows, err := s.pool.Query(ctx,
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
	r, err := scanRelease(s.pool.QueryRow(ctx,
		`SELECT `+releaseColumns+` FROM releases WHERE version = $1`, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &trailguide.NotFoundError{Kind: "release", ID: fmt.Sprintf("%d", version)}
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "releases", Op: "get", Err: err}
	}
	return r, nil
}

func (s *releaseStore) Latest(ctx context.Context) (*trailguide.Release, error) {
	r, err := scanRelease(s.pool.QueryRow(ctx,
		`SELECT `+releaseColumns+` FROM releases ORDER BY version DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, trailguide.ErrNotFound
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "releases", Op: "latest", Err: err}
	}
	return r, nil
}

func (s *releaseStore) Create(ctx context.Context, r *trailguide.Release) (*trailguide.Release, error) {
	var version int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO releases (release_notes, bundle_path, bundle_size, submitted_dt, published_dt)
		 VALUES ($1, $2, 0, $3, NULL)
		 RETURNING version`,
		r.ReleaseNotes, r.BundlePath, r.SubmittedDT,
	).Scan(&version)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "releases", Op: "create", Err: err}
	}
	return s.Get(ctx, version)
}

func (s *releaseStore) Update(ctx context.Context, r *trailguide.Release) (*trailguide.Release, error) {
	res, err := s.pool.Exec(ctx,
		`UPDATE releases SET release_notes = $1, published_dt = $2 WHERE version = $3`,
		r.ReleaseNotes, r.PublishedDT, r.Version)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "releases", Op: "update", Err: err}
	}
	if res.RowsAffected() == 0 {
		return nil, &trailguide.NotFoundError{Kind: "release", ID: fmt.Sprintf("%d", r.Version)}
	}
	return s.Get(ctx, r.Version)
}

func (s *releaseStore) SetBundleSize(ctx context.Context, version int, size int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE releases SET bundle_size = $1 WHERE version = $2`, size, version)
	if err != nil {
		return &trailguide.StoreError{Collection: "releases", Op: "set bundle size", Err: err}
	}
	return nil
}

func (s *releaseStore) Remove(ctx context.Context, version int) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM releases WHERE version = $1`, version)
	if err != nil {
		return &trailguide.StoreError{Collection: "releases", Op: "remove", Err: err}
	}
	return nil
}

type sectionStore struct {
	pool *pgxpool.Pool
}

func (s *sectionStore) List(ctx context.Context) ([]*trailguide.Section, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, rank FROM sections ORDER BY rank, id`)
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
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, rank FROM sections WHERE id = $1`, id,
	).Scan(&sec.ID, &sec.Title, &sec.Rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &trailguide.NotFoundError{Kind: "section", ID: id}
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "sections", Op: "get", Err: err}
	}
	return &sec, nil
}

func (s *sectionStore) Set(ctx context.Context, sec *trailguide.Section) (*trailguide.Section, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sections (id, title, rank) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET title = excluded.title, rank = excluded.rank`,
		sec.ID, sec.Title, sec.Rank)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "sections", Op: "set", Err: err}
	}
	return s.Get(ctx, sec.ID)
}

type categoryStore struct {
	pool *pgxpool.Pool
}

func (s *categoryStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM categories ORDER BY rank, id`)
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &trailguide.StoreError{Collection: "categories", Op: "replace", Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM categories`); err != nil {
		return &trailguide.StoreError{Collection: "categories", Op: "replace", Err: err}
	}
	for i, id := range ids {
		if _, err := tx.Exec(ctx,
			`INSERT INTO categories (id, rank) VALUES ($1, $2)`, id, i); err != nil {
			return &trailguide.StoreError{Collection: "categories", Op: "replace", Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &trailguide.StoreError{Collection: "categories", Op: "replace", Err: err}
	}
	return nil
}

type layerStore struct {
	pool *pgxpool.Pool
}

func scanLayer(scanner rowScanner) (*trailguide.Layer, error) {
	var (
		l       trailguide.Layer
		geojson []byte
	)
	if err := scanner.Scan(&l.ID, &l.Name, &geojson, &l.Rank); err != nil {
		return nil, err
	}
	l.GeoJSON = json.RawMessage(geojson)
	return &l, nil
}

func (s *layerStore) List(ctx context.Context) ([]*trailguide.Layer, error) {
	rows, err := s.pool.Query(ctx,
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
	l, err := scanLayer(s.pool.QueryRow(ctx,
		`SELECT id, name, geojson, rank FROM layers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &trailguide.NotFoundError{Kind: "layer", ID: id}
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "layers", Op: "get", Err: err}
	}
	return l, nil
}

func (s *layerStore) Set(ctx context.Context, l *trailguide.Layer) (*trailguide.Layer, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO layers (id, name, geojson, rank) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, geojson = excluded.geojson, rank = excluded.rank`,
		l.ID, l.Name, []byte(l.GeoJSON), l.Rank)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "layers", Op: "set", Err: err}
	}
	return s.Get(ctx, l.ID)
}

func (s *layerStore) Delete(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM layers WHERE id = $1`, id)
	if err != nil {
		return &trailguide.StoreError{Collection: "layers", Op: "delete", Err: err}
	}
	if res.RowsAffected() == 0 {
		return &trailguide.NotFoundError{Kind: "layer", ID: id}
	}
	return nil
}

type settingsStore struct {
	pool *pgxpool.Pool
}

func (s *settingsStore) Get(ctx context.Context) (trailguide.Settings, error) {
	rows, err := s.pool.Query(ctx, `SELECT setting_key, setting_value FROM settings`)
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

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *settingsStore) Merge(ctx context.Context, in trailguide.Settings) (trailguide.Settings, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "settings", Op: "merge", Err: err}
	}
	defer tx.Rollback(ctx)

	for key, value := range in {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, &trailguide.StoreError{Collection: "settings", Op: "merge", Err: err}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO settings (setting_key, setting_value) VALUES ($1, $2)
			 ON CONFLICT (setting_key) DO UPDATE SET setting_value = excluded.setting_value`,
			key, string(raw)); err != nil {
			return nil, &trailguide.StoreError{Collection: "settings", Op: "merge", Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &trailguide.StoreError{Collection: "settings", Op: "merge", Err: err}
	}
	return s.Get(ctx)
}

type feedbackStore struct {
	pool *pgxpool.Pool
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
	rows, err := s.pool.Query(ctx,
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
	f, err := scanFeedback(s.pool.QueryRow(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &trailguide.NotFoundError{Kind: "feedback item", ID: id}
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "feedback", Op: "get", Err: err}
	}
	return f, nil
}

func (s *feedbackStore) Set(ctx context.Context, f *trailguide.FeedbackItem) (*trailguide.FeedbackItem, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback (id, from_name, from_email, content, submitted) VALUES ($1, $2, $3, $4, $5)
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
	pool *pgxpool.Pool
}

func (s *tokenStore) Get(ctx context.Context, token string) (*trailguide.OneTimeToken, error) {
	var t trailguide.OneTimeToken
	err := s.pool.QueryRow(ctx,
		`SELECT token, scope, expiry FROM one_time_tokens WHERE token = $1`, token,
	).Scan(&t.Token, &t.Scope, &t.Expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, trailguide.ErrNotFound
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "one_time_tokens", Op: "get", Err: err}
	}
	return &t, nil
}

func (s *tokenStore) Set(ctx context.Context, t *trailguide.OneTimeToken) (*trailguide.OneTimeToken, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO one_time_tokens (token, scope, expiry) VALUES ($1, $2, $3)
		 ON CONFLICT (token) DO UPDATE SET scope = excluded.scope, expiry = excluded.expiry`,
		t.Token, t.Scope, t.Expiry)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "one_time_tokens", Op: "set", Err: err}
	}
	return s.Get(ctx, t.Token)
}

func (s *tokenStore) Delete(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM one_time_tokens WHERE token = $1`, token)
	if err != nil {
		return &trailguide.StoreError{Collection: "one_time_tokens", Op: "delete", Err: err}
	}
	return nil
}
