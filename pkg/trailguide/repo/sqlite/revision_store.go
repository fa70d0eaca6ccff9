package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

// revisionStore implements trailguide.RevisionStore for one content
// collection. Each collection owns three tables: <name> holds the immutable
// revision rows, <name>_current the mutable id -> latest-revision pointer,
// and <name>_asset_usage the per-revision asset reference edges.
type revisionStore struct {
	db   *sql.DB
	spec trailguide.CollectionSpec
}

const revisionColumns = "o.id, o.doc, o.revision, o.revision_dt, o.revision_message, o.deleted"

func (s *revisionStore) orderClause() string {
	if s.spec.OrderBy != "" {
		return " ORDER BY o.rank, o.id"
	}
	return " ORDER BY o.id"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevisionRow(scanner rowScanner) (*trailguide.RevisionRow, error) {
	var (
		row     trailguide.RevisionRow
		doc     string
		deleted int
	)
	if err := scanner.Scan(
		&row.ID, &doc, &row.Revision.Number,
		&row.Revision.Timestamp, &row.Revision.Message, &deleted,
	); err != nil {
		return nil, err
	}
	row.Doc = json.RawMessage(doc)
	row.Deleted = deleted != 0
	return &row, nil
}

func (s *revisionStore) GetOne(ctx context.Context, id string, opts trailguide.GetOptions) (*trailguide.RevisionRow, error) {
	var (
		query string
		args  []any
	)

	if opts.Revision > 0 {
		query = fmt.Sprintf(
			`SELECT %s FROM %s o WHERE o.id = ? AND o.revision = ?`,
			revisionColumns, s.spec.Name)
		args = []any{id, opts.Revision}
	} else {
		query = fmt.Sprintf(
			`SELECT %s FROM %s o JOIN %s_current c ON o.id = c.id AND o.revision = c.revision
			 WHERE o.id = ?`,
			revisionColumns, s.spec.Name, s.spec.Name)
		args = []any{id}
	}
	if !opts.IncludeDeleted {
		query += " AND o.deleted = 0"
	}

	row, err := scanRevisionRow(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trailguide.ErrNotFound
	}
	if err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "get", Err: err}
	}
	return row, nil
}

func (s *revisionStore) GetAll(ctx context.Context, opts trailguide.ListOptions) ([]*trailguide.RevisionRow, error) {
	query, args := s.listQuery("", opts)
	return s.queryRows(ctx, "list", query, args)
}

func (s *revisionStore) Search(ctx context.Context, query string, opts trailguide.ListOptions) ([]*trailguide.RevisionRow, error) {
	sqlQuery, args := s.listQuery(query, opts)
	return s.queryRows(ctx, "search", sqlQuery, args)
}

// listQuery builds the current-revision listing, optionally narrowed to rows
// whose id or searchable document fields contain search as a substring.
func (s *revisionStore) listQuery(search string, opts trailguide.ListOptions) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)

	fmt.Fprintf(&b,
		`SELECT %s FROM %s o JOIN %s_current c ON o.id = c.id AND o.revision = c.revision WHERE 1 = 1`,
		revisionColumns, s.spec.Name, s.spec.Name)

	if !opts.IncludeDeleted {
		b.WriteString(" AND o.deleted = 0")
	}
	if opts.EnabledOnly && s.spec.HasEnabled {
		b.WriteString(" AND o.enabled = 1")
	}

	if search != "" {
		pattern := likePattern(search)
		clauses := []string{`LOWER(o.id) LIKE ? ESCAPE '\'`}
		args = append(args, pattern)
		for _, field := range s.spec.Searchable {
			clauses = append(clauses,
				fmt.Sprintf(`LOWER(json_extract(o.doc, '$.%s')) LIKE ? ESCAPE '\'`, field))
			args = append(args, pattern)
		}
		b.WriteString(" AND (" + strings.Join(clauses, " OR ") + ")")
	}

	b.WriteString(s.orderClause())
	return b.String(), args
}

func (s *revisionStore) queryRows(ctx context.Context, op, query string, args []any) ([]*trailguide.RevisionRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: op, Err: err}
	}
	defer rows.Close()

	var result []*trailguide.RevisionRow
	for rows.Next() {
		row, err := scanRevisionRow(rows)
		if err != nil {
			return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: op, Err: err}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: op, Err: err}
	}
	return result, nil
}

// Set writes one new revision. The transaction opens in immediate mode (see
// Open), so the revision-number read, the row insert, the current-pointer
// update, and the usage-edge replacement cannot interleave with another
// writer; two concurrent Sets for the same id serialize and receive
// consecutive revision numbers.
func (s *revisionStore) Set(ctx context.Context, rec trailguide.RevisionRecord) (*trailguide.RevisionRow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "set", Err: err}
	}
	defer tx.Rollback()

	next, err := s.nextRevision(ctx, tx, rec.ID)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "set", Err: err}
	}

	row, err := s.insertRevision(ctx, tx, rec, next)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "set", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "set", Err: err}
	}
	return row, nil
}

func (s *revisionStore) nextRevision(ctx context.Context, tx *sql.Tx, id string) (int, error) {
	var current int
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT revision FROM %s_current WHERE id = ?`, s.spec.Name), id,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return current + 1, nil
}

func (s *revisionStore) insertRevision(
	ctx context.Context, tx *sql.Tx, rec trailguide.RevisionRecord, revision int,
) (*trailguide.RevisionRow, error) {
	message := rec.Message
	if message == "" {
		switch {
		case rec.Deleted:
			message = "deleted"
		case revision == 1:
			message = "created"
		default:
			message = "updated"
		}
	}
	timestamp := trailguide.UTCTimestamp(time.Now())

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, revision, doc, enabled, rank, revision_dt, revision_message, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.spec.Name),
		rec.ID, revision, string(rec.Doc),
		nullableBool(rec.Enabled), nullableInt(rec.Rank),
		timestamp, message, boolToInt(rec.Deleted),
	); err != nil {
		return nil, fmt.Errorf("insert revision: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s_current (id, revision) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET revision = excluded.revision`, s.spec.Name),
		rec.ID, revision,
	); err != nil {
		return nil, fmt.Errorf("update current pointer: %w", err)
	}

	// Replace-then-insert keeps extraction idempotent; the rows for a
	// revision are fixed once its transaction commits.
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s_asset_usage WHERE object_id = ? AND revision = ?`, s.spec.Name),
		rec.ID, revision,
	); err != nil {
		return nil, fmt.Errorf("clear usage edges: %w", err)
	}
	for _, assetID := range rec.AssetRefs {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s_asset_usage (object_id, revision, asset_id) VALUES (?, ?, ?)`,
				s.spec.Name),
			rec.ID, revision, assetID,
		); err != nil {
			return nil, fmt.Errorf("insert usage edge: %w", err)
		}
	}

	return &trailguide.RevisionRow{
		ID:  rec.ID,
		Doc: rec.Doc,
		Revision: trailguide.Revision{
			Number:    revision,
			Timestamp: timestamp,
			Message:   message,
		},
		Deleted: rec.Deleted,
	}, nil
}

// Delete writes a soft-delete revision carrying the object's last content and
// a copy of its usage edges. Absent or already-deleted objects are a no-op.
func (s *revisionStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}
	defer tx.Rollback()

	var (
		doc      string
		revision int
		enabled  sql.NullInt64
		rank     sql.NullInt64
		deleted  int
	)
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT o.doc, o.revision, o.enabled, o.rank, o.deleted
			FROM %s o JOIN %s_current c ON o.id = c.id AND o.revision = c.revision
			WHERE o.id = ?`, s.spec.Name, s.spec.Name),
		id,
	).Scan(&doc, &revision, &enabled, &rank, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}
	if deleted != 0 {
		return nil
	}

	next := revision + 1
	timestamp := trailguide.UTCTimestamp(time.Now())

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, revision, doc, enabled, rank, revision_dt, revision_message, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)`, s.spec.Name),
		id, next, doc, nullValue(enabled), nullValue(rank), timestamp, "deleted",
	); err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s_current SET revision = ? WHERE id = ?`, s.spec.Name),
		next, id,
	); err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}

	// Content is unchanged, so the delete revision inherits the previous
	// revision's edge set.
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s_asset_usage (object_id, revision, asset_id)
			SELECT object_id, ?, asset_id FROM %s_asset_usage WHERE object_id = ? AND revision = ?`,
			s.spec.Name, s.spec.Name),
		next, id, revision,
	); err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}
	return nil
}

// AssetUsage lists the objects whose current, non-deleted revision references
// assetID, split by enabled state for collections with an enabled flag.
func (s *revisionStore) AssetUsage(ctx context.Context, assetID string) (*trailguide.AssetUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT o.id, o.enabled
			FROM %s o
			JOIN %s_current c ON o.id = c.id AND o.revision = c.revision
			JOIN %s_asset_usage u ON u.object_id = o.id AND u.revision = o.revision
			WHERE u.asset_id = ? AND o.deleted = 0
			ORDER BY o.id`, s.spec.Name, s.spec.Name, s.spec.Name),
		assetID,
	)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "asset usage", Err: err}
	}
	defer rows.Close()

	usage := &trailguide.AssetUsage{Active: []string{}}
	if s.spec.HasEnabled {
		usage.Inactive = []string{}
	}

	for rows.Next() {
		var (
			id      string
			enabled sql.NullInt64
		)
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "asset usage", Err: err}
		}
		if s.spec.HasEnabled && (!enabled.Valid || enabled.Int64 == 0) {
			usage.Inactive = append(usage.Inactive, id)
		} else {
			usage.Active = append(usage.Active, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "asset usage", Err: err}
	}
	return usage, nil
}

func nullValue(v sql.NullInt64) any {
	if !v.Valid {
		return nil
	}
	return v.Int64
}
