package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

// assetStore implements trailguide.AssetStore. Usage counts are derived at
// query time by joining each collection's usage edges against its current,
// non-deleted revisions; superseded revisions never contribute.
type assetStore struct {
	db          *sql.DB
	collections []trailguide.CollectionSpec
}

const assetColumns = "id, asset_type, file_name, file_size, sha1_checksum, deleted"

func scanAsset(scanner rowScanner) (*trailguide.Asset, error) {
	var (
		a       trailguide.Asset
		deleted int
	)
	if err := scanner.Scan(&a.ID, &a.AssetType, &a.FileName, &a.FileSize, &a.SHA1Checksum, &deleted); err != nil {
		return nil, err
	}
	a.Deleted = deleted != 0
	return &a, nil
}

// usageCounts computes, per asset, the number of objects whose current
// revision references it: across all non-deleted objects, and restricted to
// enabled objects. Collections without an enabled flag (modals) count toward
// both, since every current modal ships in every bundle.
func (s *assetStore) usageCounts(ctx context.Context) (all, enabled map[string]int, err error) {
	all = make(map[string]int)
	enabled = make(map[string]int)

	for _, spec := range s.collections {
		base := fmt.Sprintf(`SELECT u.asset_id, COUNT(*)
			FROM %s_asset_usage u
			JOIN %s_current c ON u.object_id = c.id AND u.revision = c.revision
			JOIN %s o ON o.id = c.id AND o.revision = c.revision
			WHERE o.deleted = 0`, spec.Name, spec.Name, spec.Name)

		if err := s.countInto(ctx, base+" GROUP BY u.asset_id", all); err != nil {
			return nil, nil, err
		}

		enabledQuery := base
		if spec.HasEnabled {
			enabledQuery += " AND o.enabled = 1"
		}
		if err := s.countInto(ctx, enabledQuery+" GROUP BY u.asset_id", enabled); err != nil {
			return nil, nil, err
		}
	}
	return all, enabled, nil
}

func (s *assetStore) countInto(ctx context.Context, query string, counts map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return &trailguide.StoreError{Collection: "assets", Op: "usage counts", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			assetID string
			n       int
		)
		if err := rows.Scan(&assetID, &n); err != nil {
			return &trailguide.StoreError{Collection: "assets", Op: "usage counts", Err: err}
		}
		counts[assetID] += n
	}
	return rows.Err()
}

func withUsage(a *trailguide.Asset, all, enabled map[string]int) *trailguide.AssetWithUsage {
	return &trailguide.AssetWithUsage{
		Asset:              *a,
		TimesUsedByAll:     all[a.ID],
		TimesUsedByEnabled: enabled[a.ID],
	}
}

func (s *assetStore) List(ctx context.Context) ([]*trailguide.AssetWithUsage, error) {
	all, enabled, err := s.usageCounts(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE deleted = 0 ORDER BY file_name`)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "assets", Op: "list", Err: err}
	}
	defer rows.Close()

	var result []*trailguide.AssetWithUsage
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, &trailguide.StoreError{Collection: "assets", Op: "list", Err: err}
		}
		result = append(result, withUsage(a, all, enabled))
	}
	return result, rows.Err()
}

func (s *assetStore) ListUsed(ctx context.Context, onlyEnabled bool) ([]*trailguide.AssetWithUsage, error) {
	assets, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	used := make([]*trailguide.AssetWithUsage, 0, len(assets))
	for _, a := range assets {
		if (onlyEnabled && a.TimesUsedByEnabled > 0) || (!onlyEnabled && a.TimesUsedByAll > 0) {
			used = append(used, a)
		}
	}
	return used, nil
}

func (s *assetStore) Get(ctx context.Context, id string) (*trailguide.AssetWithUsage, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &trailguide.NotFoundError{Kind: "asset", ID: id}
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "assets", Op: "get", Err: err}
	}

	all, enabled, err := s.usageCounts(ctx)
	if err != nil {
		return nil, err
	}
	return withUsage(a, all, enabled), nil
}

func (s *assetStore) Set(ctx context.Context, a *trailguide.Asset) (*trailguide.Asset, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (id, asset_type, file_name, file_size, sha1_checksum, deleted)
		 VALUES (?, ?, ?, ?, ?, 0)
		 ON CONFLICT (id) DO UPDATE SET
			asset_type = excluded.asset_type,
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			sha1_checksum = excluded.sha1_checksum`,
		a.ID, string(a.AssetType), a.FileName, a.FileSize, a.SHA1Checksum)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "assets", Op: "set", Err: err}
	}

	stored, err := scanAsset(s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE id = ?`, a.ID))
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "assets", Op: "set", Err: err}
	}
	return stored, nil
}

func (s *assetStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE assets SET deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return &trailguide.StoreError{Collection: "assets", Op: "delete", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &trailguide.StoreError{Collection: "assets", Op: "delete", Err: err}
	}
	if affected == 0 {
		return &trailguide.NotFoundError{Kind: "asset", ID: id}
	}
	return nil
}

func (s *assetStore) FindByChecksum(ctx context.Context, sha1 string) (*trailguide.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE sha1_checksum = ? AND deleted = 0 ORDER BY id LIMIT 1`,
		sha1))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trailguide.ErrNotFound
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: "assets", Op: "find by checksum", Err: err}
	}
	return a, nil
}
