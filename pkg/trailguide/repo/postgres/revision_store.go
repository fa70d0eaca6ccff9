package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide"
)

// revisionStore implements trailguide.RevisionStore on PostgreSQL. The table
// layout mirrors the sqlite package; writers for the same object serialize on
// a transaction-scoped advisory lock so revision numbers stay gapless under
// concurrency.
type revisionStore struct {
	pool *pgxpool.Pool
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
		row trailguide.RevisionRow
		doc []byte
	)
	if err := scanner.Scan(
		&row.ID, &doc, &row.Revision.Number,
		&row.Revision.Timestamp, &row.Revision.Message, &row.Deleted,
	); err != nil {
		return nil, err
	}
	row.Doc = json.RawMessage(doc)
	return &row, nil
}

func (s *revisionStore) GetOne(ctx context.Context, id string, opts trailguide.GetOptions) (*trailguide.RevisionRow, error) {
	var (
		query string
		args  []any
	)

	if opts.Revision > 0 {
		query = fmt.Sprintf(
			`SELECT %s FROM %s o WHERE o.id = $1 AND o.revision = $2`,
			revisionColumns, s.spec.Name)
		args = []any{id, opts.Revision}
	} else {
		query = fmt.Sprintf(
			`SELECT %s FROM %s o JOIN %s_current c ON o.id = c.id AND o.revision = c.revision
			 WHERE o.id = $1`,
			revisionColumns, s.spec.Name, s.spec.Name)
		args = []any{id}
	}
	if !opts.IncludeDeleted {
		query += " AND NOT o.deleted"
	}

	row, err := scanRevisionRow(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *revisionStore) listQuery(search string, opts trailguide.ListOptions) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)

	fmt.Fprintf(&b,
		`SELECT %s FROM %s o JOIN %s_current c ON o.id = c.id AND o.revision = c.revision WHERE TRUE`,
		revisionColumns, s.spec.Name, s.spec.Name)

	if !opts.IncludeDeleted {
		b.WriteString(" AND NOT o.deleted")
	}
	if opts.EnabledOnly && s.spec.HasEnabled {
		b.WriteString(" AND o.enabled")
	}

	if search != "" {
		args = append(args, likePattern(search))
		clauses := []string{`o.id ILIKE $1`}
		for _, field := range s.spec.Searchable {
			clauses = append(clauses, fmt.Sprintf(`o.doc->>'%s' ILIKE $1`, field))
		}
		b.WriteString(" AND (" + strings.Join(clauses, " OR ") + ")")
	}

	b.WriteString(s.orderClause())
	return b.String(), args
}

func (s *revisionStore) queryRows(ctx context.Context, op, query string, args []any) ([]*trailguide.RevisionRow, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

// lockObject takes a transaction-scoped advisory lock on (collection, id);
// released automatically at commit or rollback.
func (s *revisionStore) lockObject(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, s.spec.Name+":"+id)
	return err
}

func (s *revisionStore) Set(ctx context.Context, rec trailguide.RevisionRecord) (*trailguide.RevisionRow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "set", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := s.lockObject(ctx, tx, rec.ID); err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "set", Err: err}
	}

	next, err := s.nextRevision(ctx, tx, rec.ID)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "set", Err: err}
	}

	row, err := s.insertRevision(ctx, tx, rec, next)
	if err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "set", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "set", Err: err}
	}
	return row, nil
}

func (s *revisionStore) nextRevision(ctx context.Context, tx pgx.Tx, id string) (int, error) {
	var current int
	err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT revision FROM %s_current WHERE id = $1`, s.spec.Name), id,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return current + 1, nil
}

func (s *revisionStore) insertRevision(
	ctx context.Context, tx pgx.Tx, rec trailguide.RevisionRecord, revision int,
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

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, revision, doc, enabled, rank, revision_dt, revision_message, deleted)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.spec.Name),
		rec.ID, revision, []byte(rec.Doc), rec.Enabled, rec.Rank,
		timestamp, message, rec.Deleted,
	); err != nil {
		return nil, fmt.Errorf("insert revision: %w", err)
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s_current (id, revision) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET revision = excluded.revision`, s.spec.Name),
		rec.ID, revision,
	); err != nil {
		return nil, fmt.Errorf("update current pointer: %w", err)
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s_asset_usage WHERE object_id = $1 AND revision = $2`, s.spec.Name),
		rec.ID, revision,
	); err != nil {
		return nil, fmt.Errorf("clear usage edges: %w", err)
	}
	for _, assetID := range rec.AssetRefs {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s_asset_usage (object_id, revision, asset_id) VALUES ($1, $2, $3)`,
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

func (s *revisionStore) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := s.lockObject(ctx, tx, id); err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}

	var (
		doc      []byte
		revision int
		enabled  *bool
		rank     *int
		deleted  bool
	)
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT o.doc, o.revision, o.enabled, o.rank, o.deleted
			FROM %s o JOIN %s_current c ON o.id = c.id AND o.revision = c.revision
			WHERE o.id = $1`, s.spec.Name, s.spec.Name),
		id,
	).Scan(&doc, &revision, &enabled, &rank, &deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}
	if deleted {
		return nil
	}

	next := revision + 1
	timestamp := trailguide.UTCTimestamp(time.Now())

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, revision, doc, enabled, rank, revision_dt, revision_message, deleted)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)`, s.spec.Name),
		id, next, doc, enabled, rank, timestamp, "deleted",
	); err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s_current SET revision = $1 WHERE id = $2`, s.spec.Name),
		next, id,
	); err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s_asset_usage (object_id, revision, asset_id)
			SELECT object_id, $1, asset_id FROM %s_asset_usage WHERE object_id = $2 AND revision = $3`,
			s.spec.Name, s.spec.Name),
		next, id, revision,
	); err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &trailguide.StoreError{Collection: s.spec.Name, Op: "delete", Err: err}
	}
	return nil
}

func (s *revisionStore) AssetUsage(ctx context.Context, assetID string) (*trailguide.AssetUsage, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT o.id, o.enabled
			FROM %s o
			JOIN %s_current c ON o.id = c.id AND o.revision = c.revision
			JOIN %s_asset_usage u ON u.object_id = o.id AND u.revision = o.revision
			WHERE u.asset_id = $1 AND NOT o.deleted
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
			enabled *bool
		)
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, &trailguide.StoreError{Collection: s.spec.Name, Op: "asset usage", Err: err}
		}
		if s.spec.HasEnabled && (enabled == nil || !*enabled) {
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

func likePattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	return "%" + escaped + "%"
}
